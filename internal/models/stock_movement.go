package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementType тип движения по журналу
type MovementType string

const (
	MovementPurchase            MovementType = "PURCHASE"
	MovementSale                MovementType = "SALE"
	MovementWaste               MovementType = "WASTE"
	MovementTransferIn          MovementType = "TRANSFER_IN"
	MovementTransferOut         MovementType = "TRANSFER_OUT"
	MovementAdjustment          MovementType = "ADJUSTMENT"
	MovementExternalConsumption MovementType = "EXTERNAL_CONSUMPTION"
)

// AllMovementTypes возвращает все типы движений
func AllMovementTypes() []MovementType {
	return []MovementType{
		MovementPurchase, MovementSale, MovementWaste, MovementTransferIn,
		MovementTransferOut, MovementAdjustment, MovementExternalConsumption,
	}
}

// IsValid проверяет, что тип движения известен
func (t MovementType) IsValid() bool {
	for _, known := range AllMovementTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ErrMovementImmutable журнал движений только дописывается
var ErrMovementImmutable = errors.New("движение журнала нельзя изменить или удалить")

// StockMovement запись журнала движений (только добавление).
// Исправления: новые движения с компенсирующим знаком
type StockMovement struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	PeriodID     string          `json:"period_id" gorm:"type:uuid;not null;index:idx_movements_period_item"`
	ItemID       string          `json:"item_id" gorm:"type:uuid;not null;index:idx_movements_period_item"`
	MovementType MovementType    `json:"movement_type" gorm:"type:varchar(30);not null;index"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:decimal(20,4);not null"` // В порциях, со знаком
	UnitCost     decimal.Decimal `json:"unit_cost" gorm:"type:decimal(20,4);default:0"` // За порцию
	Reference    string          `json:"reference" gorm:"type:varchar(255)"`
	StaffID      string          `json:"staff_id" gorm:"type:uuid"`
	ReversesID   *string         `json:"reverses_id" gorm:"type:uuid;index"` // Сторнируемое движение
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (StockMovement) TableName() string {
	return "stock_movements"
}

// BeforeCreate генерирует UUID
func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// BeforeUpdate запрещает изменение записи журнала
func (m *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return ErrMovementImmutable
}

// BeforeDelete запрещает удаление записи журнала
func (m *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return ErrMovementImmutable
}

// Value денежная оценка движения
func (m *StockMovement) Value() decimal.Decimal {
	return m.Quantity.Mul(m.UnitCost)
}
