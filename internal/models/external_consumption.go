package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExternalConsumptionRecord расход ингредиента, записанный внешней подсистемой
// (производство коктейлей). Ядро читает (item_id, quantity_used, is_merged)
// и записывает обратно только поля слияния
type ExternalConsumptionRecord struct {
	ID              string          `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID         string          `json:"hotel_id" gorm:"type:uuid;not null;index"`
	ItemID          *string         `json:"item_id" gorm:"type:uuid;index"` // NULL: ингредиент не привязан к складу
	Source          string          `json:"source" gorm:"type:varchar(50);not null;default:'cocktails';uniqueIndex:idx_consumption_source_ref"`
	SourceReference string          `json:"source_reference" gorm:"type:varchar(255);not null;uniqueIndex:idx_consumption_source_ref"`
	Description     string          `json:"description" gorm:"type:varchar(255)"`
	QuantityUsed    decimal.Decimal `json:"quantity_used" gorm:"type:decimal(20,4);not null"` // В порциях
	ProducedAt      time.Time       `json:"produced_at" gorm:"index"`
	IsMerged        bool            `json:"is_merged" gorm:"default:false;index"`
	MergedAt        *time.Time      `json:"merged_at"`
	MergedBy        *string         `json:"merged_by" gorm:"type:uuid"`
	StocktakeID     *string         `json:"stocktake_id" gorm:"type:uuid;index"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (ExternalConsumptionRecord) TableName() string {
	return "external_consumption_records"
}

// BeforeCreate генерирует UUID
func (r *ExternalConsumptionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
