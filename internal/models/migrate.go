package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AllModels таблицы сервиса в порядке создания
func AllModels() []interface{} {
	return []interface{}{
		&Hotel{},
		&Staff{},
		&StockItem{},
		&Period{},
		&PeriodReopenGrant{},
		&StockSnapshot{},
		&Stocktake{},
		&StocktakeLine{},
		&StockMovement{},
		&ExternalConsumptionRecord{},
	}
}

// AutoMigrate создает таблицы и уникальные индексы в БД
func AutoMigrate(db *gorm.DB) error {
	for _, model := range AllModels() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto migrate %T: %w", model, err)
		}
	}

	// Поиск предыдущего периода отеля
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_periods_hotel_end ON periods (hotel_id, end_date DESC)`).Error; err != nil {
		return fmt.Errorf("create idx_periods_hotel_end: %w", err)
	}
	return nil
}
