package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StocktakeStatus статус инвентаризации
type StocktakeStatus string

const (
	StocktakeDraft    StocktakeStatus = "DRAFT"
	StocktakeApproved StocktakeStatus = "APPROVED" // Терминальный: строки только для чтения
)

// Stocktake рабочий документ инвентаризации за период (один на период)
type Stocktake struct {
	ID          string          `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID     string          `json:"hotel_id" gorm:"type:uuid;not null;uniqueIndex:idx_stocktakes_hotel_range"`
	PeriodID    string          `json:"period_id" gorm:"type:uuid;not null;uniqueIndex"`
	PeriodStart time.Time       `json:"period_start" gorm:"type:date;not null;uniqueIndex:idx_stocktakes_hotel_range"`
	PeriodEnd   time.Time       `json:"period_end" gorm:"type:date;not null;uniqueIndex:idx_stocktakes_hotel_range"`
	Status      StocktakeStatus `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	ApprovedAt  *time.Time      `json:"approved_at"`
	ApprovedBy  *string         `json:"approved_by" gorm:"type:uuid"`
	Notes       string          `json:"notes" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	Lines []StocktakeLine `json:"lines,omitempty" gorm:"foreignKey:StocktakeID"`
}

// TableName указывает имя таблицы
func (Stocktake) TableName() string {
	return "stocktakes"
}

// BeforeCreate генерирует UUID
func (s *Stocktake) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = StocktakeDraft
	}
	return nil
}

// IsLocked true, если документ утвержден и не принимает записи
func (s *Stocktake) IsLocked() bool {
	return s.Status == StocktakeApproved
}

// StocktakeLine строка инвентаризации: одна на (stocktake, item).
// Все количества в порциях. Продажи (SalesQty) носят информационный характер
// и в ожидаемый остаток не входят
type StocktakeLine struct {
	ID          string `json:"id" gorm:"type:uuid;primaryKey"`
	StocktakeID string `json:"stocktake_id" gorm:"type:uuid;not null;uniqueIndex:idx_stocktake_lines_item"`
	ItemID      string `json:"item_id" gorm:"type:uuid;not null;uniqueIndex:idx_stocktake_lines_item"`

	// Копии атрибутов позиции на момент заполнения
	ItemName        string          `json:"item_name" gorm:"type:varchar(255)"`
	Category        StockCategory   `json:"category" gorm:"type:varchar(20);not null;index"`
	PackagingFactor decimal.Decimal `json:"packaging_factor" gorm:"type:decimal(20,4);not null"`
	CostPerServing  decimal.Decimal `json:"cost_per_serving" gorm:"type:decimal(20,4);default:0"`
	MenuPrice       decimal.Decimal `json:"menu_price" gorm:"type:decimal(20,4);default:0"`

	OpeningQty           decimal.Decimal  `json:"opening_qty" gorm:"type:decimal(20,4);not null;default:0"`
	Purchases            decimal.Decimal  `json:"purchases" gorm:"type:decimal(20,4);not null;default:0"`
	Waste                decimal.Decimal  `json:"waste" gorm:"type:decimal(20,4);not null;default:0"`
	SalesQty             decimal.Decimal  `json:"sales_qty" gorm:"type:decimal(20,4);not null;default:0"`
	ManualSalesQty       *decimal.Decimal `json:"manual_sales_qty" gorm:"type:decimal(20,4)"` // Замещает SalesQty в отчетах, журнал не трогает
	MergedConsumptionQty decimal.Decimal  `json:"merged_consumption_qty" gorm:"type:decimal(20,4);not null;default:0"`

	// Сырой ввод персонала
	CountedFullUnits    decimal.Decimal `json:"counted_full_units" gorm:"type:decimal(20,4);not null;default:0"`
	CountedPartialUnits decimal.Decimal `json:"counted_partial_units" gorm:"type:decimal(20,4);not null;default:0"`
	IsCounted           bool            `json:"is_counted" gorm:"default:false"`
	CountedAt           *time.Time      `json:"counted_at"`
	CountedBy           *string         `json:"counted_by" gorm:"type:uuid"`

	// Производные поля (пересчитываются при каждой записи)
	CountedQty  decimal.Decimal `json:"counted_qty" gorm:"type:decimal(20,4);not null;default:0"`
	ExpectedQty decimal.Decimal `json:"expected_qty" gorm:"type:decimal(20,4);not null;default:0"`
	VarianceQty decimal.Decimal `json:"variance_qty" gorm:"type:decimal(20,4);not null;default:0"`

	// Ручные денежные значения (первый уровень приоритета в финансовом расчете)
	ManualPurchasesValue *decimal.Decimal `json:"manual_purchases_value" gorm:"type:decimal(20,4)"`
	ManualWasteValue     *decimal.Decimal `json:"manual_waste_value" gorm:"type:decimal(20,4)"`
	ManualSalesValue     *decimal.Decimal `json:"manual_sales_value" gorm:"type:decimal(20,4)"`

	Version   int       `json:"version" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (StocktakeLine) TableName() string {
	return "stocktake_lines"
}

// BeforeCreate генерирует UUID
func (l *StocktakeLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// EffectiveSalesQty продажи для отчетов: ручное значение, иначе сумма движений SALE
func (l *StocktakeLine) EffectiveSalesQty() decimal.Decimal {
	if l.ManualSalesQty != nil {
		return *l.ManualSalesQty
	}
	return l.SalesQty
}

// HasManualCost true, если задано хотя бы одно ручное значение затрат
func (l *StocktakeLine) HasManualCost() bool {
	return l.ManualPurchasesValue != nil || l.ManualWasteValue != nil
}
