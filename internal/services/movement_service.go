package services

import (
	"context"
	"fmt"
	"strings"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovementService журнал движений: только добавление, исправления через сторно
type MovementService struct {
	db         *gorm.DB
	snapshots  *SnapshotService
	stocktakes *StocktakeService
	publisher  EventPublisher
}

// MovementInput данные нового движения
type MovementInput struct {
	PeriodID   string              `json:"period_id" binding:"required"`
	ItemID     string              `json:"item_id" binding:"required"`
	Type       models.MovementType `json:"movement_type" binding:"required,movement_type"`
	Quantity   decimal.Decimal     `json:"quantity"`
	UnitCost   decimal.Decimal     `json:"unit_cost"`
	Reference  string              `json:"reference"`
	StaffID    string              `json:"-"`
	ReversesID *string             `json:"-"`
}

// MovementFilter фильтр истории движений
type MovementFilter struct {
	PeriodID string
	ItemID   string
	Type     models.MovementType
}

// NewMovementService создает новый экземпляр MovementService
func NewMovementService(db *gorm.DB, snapshots *SnapshotService, stocktakes *StocktakeService) *MovementService {
	return &MovementService{db: db, snapshots: snapshots, stocktakes: stocktakes}
}

// SetPublisher устанавливает получателя событий
func (s *MovementService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// Record добавляет движение и, если у позиции есть строка в черновой
// инвентаризации периода, относит его в корзину строки в той же транзакции
func (s *MovementService) Record(ctx context.Context, in MovementInput) (*models.StockMovement, error) {
	if !in.Type.IsValid() {
		return nil, newValidationError("movement_type", "неизвестный тип движения %q", in.Type)
	}
	if in.Quantity.IsZero() {
		return nil, newValidationError("quantity", "не может быть нулевым")
	}
	if err := requireStaff(in.StaffID); err != nil {
		return nil, err
	}
	if in.UnitCost.IsNegative() {
		return nil, newValidationError("unit_cost", "не может быть отрицательной")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var period models.Period
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&period, "id = ?", in.PeriodID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "период")
	}
	if period.IsClosed {
		tx.Rollback()
		return nil, fmt.Errorf("период закрыт: %w", ErrStocktakeLocked)
	}
	if err := s.snapshots.CheckIntegrity(tx, period.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	var item models.StockItem
	if err := tx.First(&item, "id = ?", in.ItemID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "позиция")
	}
	if item.HotelID != period.HotelID {
		tx.Rollback()
		return nil, newValidationError("item_id", "позиция принадлежит другому отелю")
	}

	if in.ReversesID != nil {
		if err := s.checkReversible(tx, *in.ReversesID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	unitCost := in.UnitCost
	if unitCost.IsZero() {
		unitCost = item.CostPerServing()
	}
	movement := &models.StockMovement{
		PeriodID:     period.ID,
		ItemID:       item.ID,
		MovementType: in.Type,
		Quantity:     in.Quantity,
		UnitCost:     unitCost,
		Reference:    strings.TrimSpace(in.Reference),
		StaffID:      in.StaffID,
		ReversesID:   in.ReversesID,
	}

	stocktake, line, err := lockDraftLine(tx, period.ID, item.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(movement).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("запись движения: %w", err)
	}
	if line != nil {
		if err := s.stocktakes.ApplyMovement(tx, line, movement); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"movement_id": movement.ID,
		"period_id":   period.ID,
		"item_id":     item.ID,
		"type":        movement.MovementType,
		"quantity":    movement.Quantity.String(),
	}).Info("Движение записано")

	event := StockEvent{
		Type:     EventMovementRecorded,
		HotelID:  period.HotelID,
		PeriodID: period.ID,
		Payload: map[string]interface{}{
			"movement_id":   movement.ID,
			"item_id":       item.ID,
			"movement_type": movement.MovementType,
			"quantity":      movement.Quantity.String(),
		},
	}
	if stocktake != nil {
		event.StocktakeID = stocktake.ID
	}
	emitEvent(ctx, s.publisher, event)
	switch {
	case line != nil:
		s.stocktakes.afterLineWrite(ctx, stocktake, line)
	case stocktake != nil:
		// Строки нет, но движение попадает в себестоимость сводки
		s.stocktakes.cache.invalidate(ctx, stocktake.ID)
	}
	return movement, nil
}

// checkReversible блокирует исходное движение и проверяет, что сторно еще не было
func (s *MovementService) checkReversible(tx *gorm.DB, originalID string) error {
	var original models.StockMovement
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&original, "id = ?", originalID).Error; err != nil {
		return notFoundOr(err, "исходное движение")
	}
	var reversals int64
	if err := tx.Model(&models.StockMovement{}).Where("reverses_id = ?", originalID).Count(&reversals).Error; err != nil {
		return fmt.Errorf("проверка сторно: %w", err)
	}
	if reversals > 0 {
		return newValidationError("movement_id", "движение %s уже сторнировано", originalID)
	}
	return nil
}

// GetMovement возвращает движение по ID
func (s *MovementService) GetMovement(ctx context.Context, id string) (*models.StockMovement, error) {
	var movement models.StockMovement
	if err := s.db.WithContext(ctx).First(&movement, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "движение")
	}
	return &movement, nil
}

// Reverse добавляет движение с обратным знаком к исходному
func (s *MovementService) Reverse(ctx context.Context, movementID, staffID, reason string) (*models.StockMovement, error) {
	original, err := s.GetMovement(ctx, movementID)
	if err != nil {
		return nil, err
	}

	reference := "сторно " + original.ID
	if reason = strings.TrimSpace(reason); reason != "" {
		reference += ": " + reason
	}
	return s.Record(ctx, MovementInput{
		PeriodID:   original.PeriodID,
		ItemID:     original.ItemID,
		Type:       original.MovementType,
		Quantity:   original.Quantity.Neg(),
		UnitCost:   original.UnitCost,
		Reference:  reference,
		StaffID:    staffID,
		ReversesID: &original.ID,
	})
}

// History движения периода в порядке записи
func (s *MovementService) History(ctx context.Context, filter MovementFilter) ([]models.StockMovement, error) {
	query := s.db.WithContext(ctx).Where("period_id = ?", filter.PeriodID)
	if filter.ItemID != "" {
		query = query.Where("item_id = ?", filter.ItemID)
	}
	if filter.Type != "" {
		query = query.Where("movement_type = ?", filter.Type)
	}

	var movements []models.StockMovement
	if err := query.Order("created_at").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("история движений: %w", err)
	}
	return movements, nil
}

// TotalsByType суммы движений позиции за период по типам
func (s *MovementService) TotalsByType(ctx context.Context, periodID, itemID string) (map[models.MovementType]decimal.Decimal, error) {
	var rows []struct {
		MovementType models.MovementType
		Total        decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.StockMovement{}).
		Select("movement_type, COALESCE(SUM(quantity), 0) AS total").
		Where("period_id = ? AND item_id = ?", periodID, itemID).
		Group("movement_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("итоги движений: %w", err)
	}

	totals := make(map[models.MovementType]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.MovementType] = row.Total
	}
	return totals, nil
}
