package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockSnapshot остаток позиции на закрытие периода.
// Единственный источник остатка на открытие следующего периода.
// Категория, коэффициент и цена: копии на момент закрытия, а не ссылки
type StockSnapshot struct {
	ID                  string          `json:"id" gorm:"type:uuid;primaryKey"`
	PeriodID            string          `json:"period_id" gorm:"type:uuid;not null;uniqueIndex:idx_snapshots_period_item"`
	ItemID              string          `json:"item_id" gorm:"type:uuid;not null;uniqueIndex:idx_snapshots_period_item"`
	Category            StockCategory   `json:"category" gorm:"type:varchar(20);not null"`
	PackagingFactor     decimal.Decimal `json:"packaging_factor" gorm:"type:decimal(20,4);not null"`
	CostPerServing      decimal.Decimal `json:"cost_per_serving" gorm:"type:decimal(20,4);default:0"`
	ClosingFullUnits    decimal.Decimal `json:"closing_full_units" gorm:"type:decimal(20,4);not null"`
	ClosingPartialUnits decimal.Decimal `json:"closing_partial_units" gorm:"type:decimal(20,4);not null"`
	TotalServings       decimal.Decimal `json:"total_servings" gorm:"type:decimal(20,4);not null"`
	CreatedAt           time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (StockSnapshot) TableName() string {
	return "stock_snapshots"
}

// BeforeCreate генерирует UUID
func (s *StockSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
