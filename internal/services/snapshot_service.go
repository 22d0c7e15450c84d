package services

import (
	"context"
	"errors"
	"fmt"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SnapshotService хранит остатки на закрытие периодов и отдает остатки на открытие
type SnapshotService struct {
	db *gorm.DB
}

// NewSnapshotService создает новый экземпляр SnapshotService
func NewSnapshotService(db *gorm.DB) *SnapshotService {
	return &SnapshotService{db: db}
}

// previousPeriod последний период отеля, закончившийся до начала period; nil, если такого нет
func previousPeriod(tx *gorm.DB, period *models.Period) (*models.Period, error) {
	var prev models.Period
	err := tx.Where("hotel_id = ? AND end_date < ?", period.HotelID, period.StartDate).
		Order("end_date DESC").
		First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("поиск предыдущего периода: %w", err)
	}
	return &prev, nil
}

// ResolveOpening остатки на открытие по предыдущему периоду и его снимкам.
// Незакрытый предыдущий период или отсутствие снимка дают ноль
func ResolveOpening(prev *models.Period, snapshots []models.StockSnapshot, itemIDs []string) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(itemIDs))
	for _, id := range itemIDs {
		result[id] = decimal.Zero
	}
	if prev == nil || !prev.IsClosed {
		return result
	}
	for _, snap := range snapshots {
		if snap.PeriodID != prev.ID {
			continue
		}
		if _, wanted := result[snap.ItemID]; wanted {
			result[snap.ItemID] = snap.TotalServings
		}
	}
	return result
}

func (s *SnapshotService) openingBalances(tx *gorm.DB, period *models.Period, itemIDs []string) (map[string]decimal.Decimal, error) {
	prev, err := previousPeriod(tx, period)
	if err != nil {
		return nil, err
	}

	var snapshots []models.StockSnapshot
	if prev != nil && prev.IsClosed && len(itemIDs) > 0 {
		if err := tx.Where("period_id = ? AND item_id IN ?", prev.ID, itemIDs).Find(&snapshots).Error; err != nil {
			return nil, fmt.Errorf("загрузка снимков периода %s: %w", prev.ID, err)
		}
	}
	return ResolveOpening(prev, snapshots, itemIDs), nil
}

// OpeningBalances остатки на открытие для набора позиций
func (s *SnapshotService) OpeningBalances(ctx context.Context, periodID string, itemIDs []string) (map[string]decimal.Decimal, error) {
	var period models.Period
	if err := s.db.WithContext(ctx).First(&period, "id = ?", periodID).Error; err != nil {
		return nil, notFoundOr(err, "период")
	}
	return s.openingBalances(s.db.WithContext(ctx), &period, itemIDs)
}

// GetOpeningBalance остаток позиции на открытие периода
func (s *SnapshotService) GetOpeningBalance(ctx context.Context, itemID, periodID string) (decimal.Decimal, error) {
	balances, err := s.OpeningBalances(ctx, periodID, []string{itemID})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[itemID], nil
}

// ListSnapshots снимки периода
func (s *SnapshotService) ListSnapshots(ctx context.Context, periodID string) ([]models.StockSnapshot, error) {
	var snapshots []models.StockSnapshot
	if err := s.db.WithContext(ctx).Where("period_id = ?", periodID).Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("загрузка снимков: %w", err)
	}
	return snapshots, nil
}

// BuildSnapshots снимки из посчитанных значений строк инвентаризации
func BuildSnapshots(periodID string, lines []models.StocktakeLine) ([]models.StockSnapshot, error) {
	snapshots := make([]models.StockSnapshot, 0, len(lines))
	for _, line := range lines {
		total, err := ToServings(line.Category, line.PackagingFactor, line.CountedFullUnits, line.CountedPartialUnits)
		if err != nil {
			return nil, fmt.Errorf("строка %s: %w", line.ID, err)
		}
		snapshots = append(snapshots, models.StockSnapshot{
			PeriodID:            periodID,
			ItemID:              line.ItemID,
			Category:            line.Category,
			PackagingFactor:     line.PackagingFactor,
			CostPerServing:      line.CostPerServing,
			ClosingFullUnits:    line.CountedFullUnits,
			ClosingPartialUnits: line.CountedPartialUnits,
			TotalServings:       total,
		})
	}
	return snapshots, nil
}

// ReplaceSnapshots полностью заменяет снимки периода внутри транзакции tx
func (s *SnapshotService) ReplaceSnapshots(tx *gorm.DB, periodID string, lines []models.StocktakeLine) (int, error) {
	snapshots, err := BuildSnapshots(periodID, lines)
	if err != nil {
		return 0, err
	}
	if err := tx.Where("period_id = ?", periodID).Delete(&models.StockSnapshot{}).Error; err != nil {
		return 0, fmt.Errorf("удаление снимков: %w", err)
	}
	if len(snapshots) == 0 {
		return 0, nil
	}
	if err := tx.CreateInBatches(&snapshots, 200).Error; err != nil {
		return 0, fmt.Errorf("запись снимков: %w", err)
	}
	return len(snapshots), nil
}

// CheckIntegrity блокирует запись в период, у которого есть снимки, но который ни разу не закрывался
func (s *SnapshotService) CheckIntegrity(tx *gorm.DB, periodID string) error {
	var count int64
	err := tx.Model(&models.StockSnapshot{}).
		Joins("JOIN periods ON periods.id = stock_snapshots.period_id").
		Where("stock_snapshots.period_id = ? AND periods.closed_at IS NULL", periodID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("проверка целостности периода: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("период %s: %w", periodID, ErrPeriodIntegrity)
	}
	return nil
}
