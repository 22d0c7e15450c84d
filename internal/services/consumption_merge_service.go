package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConsumptionMergeService сливает расход ингредиентов коктейлей в журнал и инвентаризацию.
// Каждая запись сливается не более одного раза
type ConsumptionMergeService struct {
	db         *gorm.DB
	records    ConsumptionRecordRepository
	snapshots  *SnapshotService
	stocktakes *StocktakeService
	publisher  EventPublisher
}

// MergeResult результат слияния одной записи. AlreadyMerged: повтор без изменений
type MergeResult struct {
	RecordID      string          `json:"record_id"`
	LineID        string          `json:"line_id,omitempty"`
	ItemID        string          `json:"item_id,omitempty"`
	MovementID    string          `json:"movement_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Value         decimal.Decimal `json:"value"`
	AlreadyMerged bool            `json:"already_merged"`
}

// LineMergeTotals итоги слияния по строке
type LineMergeTotals struct {
	LineID   string          `json:"line_id"`
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Records  int             `json:"records"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// MergeSummary итоги MergeAll для интерфейса
type MergeSummary struct {
	StocktakeID   string            `json:"stocktake_id"`
	Merged        int               `json:"merged"`
	Skipped       int               `json:"skipped"`
	NotLinked     int               `json:"not_linked"`
	TotalQuantity decimal.Decimal   `json:"total_quantity"`
	TotalValue    decimal.Decimal   `json:"total_value"`
	ByLine        []LineMergeTotals `json:"by_line"`
}

// PendingConsumption неслитая запись с предпросмотром влияния на строку
type PendingConsumption struct {
	Record            models.ExternalConsumptionRecord `json:"record"`
	Linked            bool                             `json:"linked"`
	LineID            string                           `json:"line_id,omitempty"`
	ItemName          string                           `json:"item_name,omitempty"`
	ProjectedExpected decimal.Decimal                  `json:"projected_expected_qty"`
	ProjectedVariance decimal.Decimal                  `json:"projected_variance_qty"`
}

// NewConsumptionMergeService создает новый экземпляр ConsumptionMergeService
func NewConsumptionMergeService(db *gorm.DB, records ConsumptionRecordRepository, snapshots *SnapshotService, stocktakes *StocktakeService) *ConsumptionMergeService {
	return &ConsumptionMergeService{db: db, records: records, snapshots: snapshots, stocktakes: stocktakes}
}

// SetPublisher устанавливает получателя событий
func (s *ConsumptionMergeService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// MergeOne сливает запись в инвентаризацию одной транзакцией: проверка флага,
// движение EXTERNAL_CONSUMPTION, обновление строки и отметка слияния
func (s *ConsumptionMergeService) MergeOne(ctx context.Context, recordID, stocktakeID, staffID string) (*MergeResult, error) {
	if err := requireStaff(staffID); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	record, err := s.records.LockForMerge(tx, recordID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if record.IsMerged {
		tx.Rollback()
		return &MergeResult{RecordID: record.ID, Quantity: decimal.Zero, Value: decimal.Zero, AlreadyMerged: true}, nil
	}

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&stocktake, "id = ?", stocktakeID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "инвентаризация")
	}
	if stocktake.IsLocked() {
		tx.Rollback()
		return nil, ErrStocktakeLocked
	}
	if record.HotelID != stocktake.HotelID || record.ItemID == nil {
		tx.Rollback()
		return nil, ErrNotLinked
	}
	if err := s.snapshots.CheckIntegrity(tx, stocktake.PeriodID); err != nil {
		tx.Rollback()
		return nil, err
	}

	var line models.StocktakeLine
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stocktake_id = ? AND item_id = ?", stocktake.ID, *record.ItemID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, ErrNotLinked
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("загрузка строки: %w", err)
	}

	movement := &models.StockMovement{
		PeriodID:     stocktake.PeriodID,
		ItemID:       line.ItemID,
		MovementType: models.MovementExternalConsumption,
		Quantity:     record.QuantityUsed,
		UnitCost:     line.CostPerServing,
		Reference:    record.Source + ":" + record.SourceReference,
		StaffID:      staffID,
	}
	if err := tx.Create(movement).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("запись движения: %w", err)
	}
	if err := s.stocktakes.ApplyMovement(tx, &line, movement); err != nil {
		tx.Rollback()
		return nil, err
	}

	marked, err := s.records.MarkMerged(tx, record.ID, stocktake.ID, staffID, time.Now().UTC())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !marked {
		tx.Rollback()
		return &MergeResult{RecordID: record.ID, Quantity: decimal.Zero, Value: decimal.Zero, AlreadyMerged: true}, nil
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	result := &MergeResult{
		RecordID:   record.ID,
		LineID:     line.ID,
		ItemID:     line.ItemID,
		MovementID: movement.ID,
		Quantity:   movement.Quantity,
		Value:      movement.Value(),
	}

	config.GetLogger().WithFields(logrus.Fields{
		"record_id":    record.ID,
		"stocktake_id": stocktake.ID,
		"line_id":      line.ID,
		"quantity":     result.Quantity.String(),
	}).Info("Расход слит в инвентаризацию")

	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventConsumptionMerged,
		HotelID:     stocktake.HotelID,
		StocktakeID: stocktake.ID,
		PeriodID:    stocktake.PeriodID,
		LineID:      line.ID,
		Payload: map[string]interface{}{
			"record_id": record.ID,
			"quantity":  result.Quantity.String(),
			"value":     result.Value.String(),
		},
	})
	s.stocktakes.afterLineWrite(ctx, &stocktake, &line)
	return result, nil
}

// MergeAll сливает неслитые записи отеля, чья позиция есть среди строк инвентаризации.
// Остальные записи не рассматриваются и в итоги не попадают. Каждая запись в своей
// транзакции; слитые параллельно пропускаются, NotLinked считает строки, пропавшие между
// выборкой и слиянием
func (s *ConsumptionMergeService) MergeAll(ctx context.Context, stocktakeID, staffID string) (*MergeSummary, error) {
	if err := requireStaff(staffID); err != nil {
		return nil, err
	}
	stocktake, err := s.stocktakes.GetStocktake(ctx, stocktakeID)
	if err != nil {
		return nil, err
	}
	if stocktake.IsLocked() {
		return nil, ErrStocktakeLocked
	}

	lines, err := s.stocktakes.GetLines(ctx, stocktakeID, "")
	if err != nil {
		return nil, err
	}
	lineByItem := make(map[string]*models.StocktakeLine, len(lines))
	for i := range lines {
		lineByItem[lines[i].ItemID] = &lines[i]
	}

	records, err := s.records.ListUnmerged(ctx, stocktake.HotelID, periodCutoff(stocktake.PeriodEnd))
	if err != nil {
		return nil, err
	}

	summary := &MergeSummary{
		StocktakeID:   stocktake.ID,
		TotalQuantity: decimal.Zero,
		TotalValue:    decimal.Zero,
		ByLine:        []LineMergeTotals{},
	}
	byLine := make(map[string]*LineMergeTotals)
	var order []string

	for _, record := range records {
		if record.ItemID == nil || lineByItem[*record.ItemID] == nil {
			continue
		}
		result, err := s.MergeOne(ctx, record.ID, stocktake.ID, staffID)
		switch {
		case errors.Is(err, ErrNotLinked):
			summary.NotLinked++
			continue
		case err != nil:
			config.LogError(config.GetLogger(), "services", "MergeAll", "merge record",
				map[string]interface{}{"record_id": record.ID, "stocktake_id": stocktake.ID}, err)
			return summary, err
		case result.AlreadyMerged:
			summary.Skipped++
			continue
		}

		summary.Merged++
		summary.TotalQuantity = summary.TotalQuantity.Add(result.Quantity)
		summary.TotalValue = summary.TotalValue.Add(result.Value)
		totals, ok := byLine[result.LineID]
		if !ok {
			totals = &LineMergeTotals{
				LineID:   result.LineID,
				ItemID:   result.ItemID,
				ItemName: lineByItem[result.ItemID].ItemName,
				Quantity: decimal.Zero,
				Value:    decimal.Zero,
			}
			byLine[result.LineID] = totals
			order = append(order, result.LineID)
		}
		totals.Records++
		totals.Quantity = totals.Quantity.Add(result.Quantity)
		totals.Value = totals.Value.Add(result.Value)
	}

	for _, lineID := range order {
		summary.ByLine = append(summary.ByLine, *byLine[lineID])
	}

	config.GetLogger().WithFields(logrus.Fields{
		"stocktake_id": stocktake.ID,
		"merged":       summary.Merged,
		"skipped":      summary.Skipped,
		"not_linked":   summary.NotLinked,
	}).Info("Слияние расхода завершено")
	return summary, nil
}

// PendingForStocktake неслитые записи с предпросмотром ожидаемого остатка строки
func (s *ConsumptionMergeService) PendingForStocktake(ctx context.Context, stocktakeID string) ([]PendingConsumption, error) {
	stocktake, err := s.stocktakes.GetStocktake(ctx, stocktakeID)
	if err != nil {
		return nil, err
	}
	lines, err := s.stocktakes.GetLines(ctx, stocktakeID, "")
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListUnmerged(ctx, stocktake.HotelID, periodCutoff(stocktake.PeriodEnd))
	if err != nil {
		return nil, err
	}
	return BuildPendingPreview(lines, records), nil
}

// BuildPendingPreview накапливает слияния по строкам: каждая следующая запись
// той же позиции показывает остаток после всех предыдущих
func BuildPendingPreview(lines []models.StocktakeLine, records []models.ExternalConsumptionRecord) []PendingConsumption {
	projected := make(map[string]models.StocktakeLine, len(lines))
	for _, line := range lines {
		projected[line.ItemID] = line
	}

	result := make([]PendingConsumption, 0, len(records))
	for _, record := range records {
		pending := PendingConsumption{Record: record}
		if record.ItemID != nil {
			if line, ok := projected[*record.ItemID]; ok {
				line.Purchases = line.Purchases.Add(record.QuantityUsed)
				line.ExpectedQty = line.OpeningQty.Add(line.Purchases).Sub(line.Waste)
				line.VarianceQty = line.CountedQty.Sub(line.ExpectedQty)
				projected[*record.ItemID] = line

				pending.Linked = true
				pending.LineID = line.ID
				pending.ItemName = line.ItemName
				pending.ProjectedExpected = line.ExpectedQty
				pending.ProjectedVariance = line.VarianceQty
			}
		}
		result = append(result, pending)
	}
	return result
}

// Ingest сохраняет запись внешней подсистемы. false, если запись уже была получена
func (s *ConsumptionMergeService) Ingest(ctx context.Context, record *models.ExternalConsumptionRecord) (bool, error) {
	record.SourceReference = strings.TrimSpace(record.SourceReference)
	if record.HotelID == "" {
		return false, newValidationError("hotel_id", "обязательно")
	}
	if record.SourceReference == "" {
		return false, newValidationError("source_reference", "обязательно")
	}
	if !record.QuantityUsed.IsPositive() {
		return false, newValidationError("quantity_used", "должно быть больше 0")
	}
	if record.Source == "" {
		record.Source = "cocktails"
	}
	if record.ProducedAt.IsZero() {
		record.ProducedAt = time.Now().UTC()
	}
	record.IsMerged = false
	record.MergedAt = nil
	record.MergedBy = nil
	record.StocktakeID = nil

	created, err := s.records.Ingest(ctx, record)
	if err != nil {
		return false, err
	}
	if created {
		config.GetLogger().WithFields(logrus.Fields{
			"record_id":        record.ID,
			"source":           record.Source,
			"source_reference": record.SourceReference,
		}).Debug("Запись расхода получена")
	}
	return created, nil
}

// periodCutoff начало дня, следующего за концом периода
func periodCutoff(end time.Time) time.Time {
	return truncateDay(end).AddDate(0, 0, 1)
}
