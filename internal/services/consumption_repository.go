package services

import (
	"context"
	"fmt"
	"time"

	"hotelstock/server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConsumptionRecordRepository узкий доступ к записям расхода внешней подсистемы.
// Ядро читает (item_id, quantity_used, is_merged) и пишет только поля слияния
type ConsumptionRecordRepository interface {
	Get(ctx context.Context, id string) (*models.ExternalConsumptionRecord, error)
	LockForMerge(tx *gorm.DB, id string) (*models.ExternalConsumptionRecord, error)
	ListUnmerged(ctx context.Context, hotelID string, producedBefore time.Time) ([]models.ExternalConsumptionRecord, error)
	MarkMerged(tx *gorm.DB, id, stocktakeID, staffID string, at time.Time) (bool, error)
	Ingest(ctx context.Context, record *models.ExternalConsumptionRecord) (bool, error)
}

// GormConsumptionRepository реализация ConsumptionRecordRepository на gorm
type GormConsumptionRepository struct {
	db *gorm.DB
}

// NewGormConsumptionRepository создает репозиторий записей расхода
func NewGormConsumptionRepository(db *gorm.DB) *GormConsumptionRepository {
	return &GormConsumptionRepository{db: db}
}

// Get возвращает запись по ID
func (r *GormConsumptionRepository) Get(ctx context.Context, id string) (*models.ExternalConsumptionRecord, error) {
	var record models.ExternalConsumptionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "запись расхода")
	}
	return &record, nil
}

// LockForMerge блокирует запись до конца транзакции tx
func (r *GormConsumptionRepository) LockForMerge(tx *gorm.DB, id string) (*models.ExternalConsumptionRecord, error) {
	var record models.ExternalConsumptionRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "запись расхода")
	}
	return &record, nil
}

// ListUnmerged неслитые записи отеля, произведенные до producedBefore
func (r *GormConsumptionRepository) ListUnmerged(ctx context.Context, hotelID string, producedBefore time.Time) ([]models.ExternalConsumptionRecord, error) {
	var records []models.ExternalConsumptionRecord
	err := r.db.WithContext(ctx).
		Where("hotel_id = ? AND is_merged = ? AND produced_at < ?", hotelID, false, producedBefore).
		Order("produced_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("неслитые записи расхода: %w", err)
	}
	return records, nil
}

// MarkMerged атомарно переводит is_merged false→true. false, если запись уже слита
func (r *GormConsumptionRepository) MarkMerged(tx *gorm.DB, id, stocktakeID, staffID string, at time.Time) (bool, error) {
	result := tx.Model(&models.ExternalConsumptionRecord{}).
		Where("id = ? AND is_merged = ?", id, false).
		Updates(map[string]interface{}{
			"is_merged":    true,
			"merged_at":    at,
			"merged_by":    staffID,
			"stocktake_id": stocktakeID,
		})
	if result.Error != nil {
		return false, fmt.Errorf("отметка слияния: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Ingest сохраняет запись; повтор (source, source_reference) игнорируется
func (r *GormConsumptionRepository) Ingest(ctx context.Context, record *models.ExternalConsumptionRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_reference"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, fmt.Errorf("сохранение записи расхода: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
