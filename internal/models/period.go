package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Period учетный период отеля. Периоды не пересекаются; уникальность
// обеспечивается индексом (hotel_id, start_date, end_date)
type Period struct {
	ID         string     `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID    string     `json:"hotel_id" gorm:"type:uuid;not null;uniqueIndex:idx_periods_hotel_range"`
	StartDate  time.Time  `json:"start_date" gorm:"type:date;not null;uniqueIndex:idx_periods_hotel_range"`
	EndDate    time.Time  `json:"end_date" gorm:"type:date;not null;uniqueIndex:idx_periods_hotel_range"`
	IsClosed   bool       `json:"is_closed" gorm:"default:false;index"`
	ClosedAt   *time.Time `json:"closed_at"`
	ClosedBy   *string    `json:"closed_by" gorm:"type:uuid"`
	ReopenedAt *time.Time `json:"reopened_at"`
	ReopenedBy *string    `json:"reopened_by" gorm:"type:uuid"`
	// Ручные итоги периода (второй уровень приоритета в финансовом расчете)
	ManualSalesAmount     *decimal.Decimal `json:"manual_sales_amount" gorm:"type:decimal(20,4)"`
	ManualPurchasesAmount *decimal.Decimal `json:"manual_purchases_amount" gorm:"type:decimal(20,4)"`
	CreatedAt             time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Period) TableName() string {
	return "periods"
}

// BeforeCreate генерирует UUID
func (p *Period) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// PeriodReopenGrant выданное сотруднику право переоткрывать периоды.
// Активно, пока RevokedAt пуст
type PeriodReopenGrant struct {
	ID        string     `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID   string     `json:"hotel_id" gorm:"type:uuid;not null;index"`
	StaffID   string     `json:"staff_id" gorm:"type:uuid;not null;index"`
	GrantedBy string     `json:"granted_by" gorm:"type:uuid;not null"`
	GrantedAt time.Time  `json:"granted_at" gorm:"autoCreateTime"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`
	RevokedBy *string    `json:"revoked_by" gorm:"type:uuid"`
}

// TableName указывает имя таблицы
func (PeriodReopenGrant) TableName() string {
	return "period_reopen_grants"
}

// BeforeCreate генерирует UUID
func (g *PeriodReopenGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}
