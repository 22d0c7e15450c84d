package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockCategory категория товара бара/погреба
type StockCategory string

const (
	CategoryDraught  StockCategory = "Draught"
	CategoryBottled  StockCategory = "Bottled" // "Дюжина": ящик из 12 бутылок
	CategorySpirits  StockCategory = "Spirits"
	CategoryWine     StockCategory = "Wine"
	CategoryMinerals StockCategory = "Minerals"
)

// AllCategories возвращает категории в порядке отображения
func AllCategories() []StockCategory {
	return []StockCategory{CategoryDraught, CategoryBottled, CategorySpirits, CategoryWine, CategoryMinerals}
}

// IsValid проверяет, что категория известна
func (c StockCategory) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// StockItem представляет позицию номенклатуры бара
type StockItem struct {
	ID       string        `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID  string        `json:"hotel_id" gorm:"type:uuid;not null;uniqueIndex:idx_stock_items_hotel_sku"`
	SKU      string        `json:"sku" gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_items_hotel_sku"`
	Name     string        `json:"name" gorm:"type:varchar(255);not null"`
	Category StockCategory `json:"category" gorm:"type:varchar(20);not null;index"`
	// Порций в одной полной единице (кега, ящик, бутылка)
	PackagingFactor decimal.Decimal `json:"packaging_factor" gorm:"type:decimal(20,4);not null"`
	UnitCost        decimal.Decimal `json:"unit_cost" gorm:"type:decimal(20,4);default:0"`  // За полную единицу
	MenuPrice       decimal.Decimal `json:"menu_price" gorm:"type:decimal(20,4);default:0"` // За порцию
	ParLevel        decimal.Decimal `json:"par_level" gorm:"type:decimal(20,4);default:0"`  // В порциях
	IsActive        bool            `json:"is_active" gorm:"default:true;index"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt       gorm.DeletedAt  `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName указывает имя таблицы
func (StockItem) TableName() string {
	return "stock_items"
}

// BeforeCreate генерирует UUID
func (i *StockItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// CostPerServing себестоимость одной порции
func (i *StockItem) CostPerServing() decimal.Decimal {
	if i.PackagingFactor.IsZero() {
		return decimal.Zero
	}
	return i.UnitCost.DivRound(i.PackagingFactor, 4)
}
