package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StocktakeService рабочий документ инвентаризации: строки, подсчеты, утверждение
type StocktakeService struct {
	db        *gorm.DB
	snapshots *SnapshotService
	publisher EventPublisher
	cache     *SummaryCacheStore
}

// ApproveResult результат утверждения
type ApproveResult struct {
	Stocktake       *models.Stocktake `json:"stocktake"`
	AlreadyApproved bool              `json:"already_approved"`
}

// ManualValuesInput ручные денежные значения строки; nil очищает значение
type ManualValuesInput struct {
	Purchases *decimal.Decimal `json:"manual_purchases_value"`
	Waste     *decimal.Decimal `json:"manual_waste_value"`
	Sales     *decimal.Decimal `json:"manual_sales_value"`
}

// NewStocktakeService создает новый экземпляр StocktakeService
func NewStocktakeService(db *gorm.DB, snapshots *SnapshotService) *StocktakeService {
	return &StocktakeService{db: db, snapshots: snapshots}
}

// SetPublisher устанавливает получателя событий
func (s *StocktakeService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SetSummaryCache устанавливает кэш сводок
func (s *StocktakeService) SetSummaryCache(cache *SummaryCacheStore) {
	s.cache = cache
}

// CreateStocktake создает инвентаризацию периода (одна на период)
func (s *StocktakeService) CreateStocktake(ctx context.Context, periodID string, notes string) (*models.Stocktake, error) {
	db := s.db.WithContext(ctx)

	var period models.Period
	if err := db.First(&period, "id = ?", periodID).Error; err != nil {
		return nil, notFoundOr(err, "период")
	}

	var existing int64
	if err := db.Model(&models.Stocktake{}).Where("period_id = ?", periodID).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("проверка инвентаризации: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateStocktake
	}

	stocktake := &models.Stocktake{
		HotelID:     period.HotelID,
		PeriodID:    period.ID,
		PeriodStart: period.StartDate,
		PeriodEnd:   period.EndDate,
		Status:      models.StocktakeDraft,
		Notes:       notes,
	}
	if err := db.Create(stocktake).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateStocktake
		}
		return nil, fmt.Errorf("создание инвентаризации: %w", err)
	}
	return stocktake, nil
}

// GetStocktake возвращает инвентаризацию по ID
func (s *StocktakeService) GetStocktake(ctx context.Context, id string) (*models.Stocktake, error) {
	var stocktake models.Stocktake
	if err := s.db.WithContext(ctx).First(&stocktake, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "инвентаризация")
	}
	return &stocktake, nil
}

// ListStocktakes инвентаризации отеля, новые первыми
func (s *StocktakeService) ListStocktakes(ctx context.Context, hotelID string) ([]models.Stocktake, error) {
	var stocktakes []models.Stocktake
	if err := s.db.WithContext(ctx).Where("hotel_id = ?", hotelID).Order("period_start DESC").Find(&stocktakes).Error; err != nil {
		return nil, fmt.Errorf("список инвентаризаций: %w", err)
	}
	return stocktakes, nil
}

// GetLines строки инвентаризации, опционально одной категории
func (s *StocktakeService) GetLines(ctx context.Context, stocktakeID string, category models.StockCategory) ([]models.StocktakeLine, error) {
	query := s.db.WithContext(ctx).Where("stocktake_id = ?", stocktakeID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var lines []models.StocktakeLine
	if err := query.Order("category, item_name").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("загрузка строк: %w", err)
	}
	return lines, nil
}

// GetLine возвращает строку по ID
func (s *StocktakeService) GetLine(ctx context.Context, id string) (*models.StocktakeLine, error) {
	var line models.StocktakeLine
	if err := s.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "строка инвентаризации")
	}
	return &line, nil
}

// newLine строка для позиции с остатком на открытие; движения применяются отдельно
func newLine(stocktakeID string, item *models.StockItem, opening decimal.Decimal) models.StocktakeLine {
	return models.StocktakeLine{
		StocktakeID:     stocktakeID,
		ItemID:          item.ID,
		ItemName:        item.Name,
		Category:        item.Category,
		PackagingFactor: item.PackagingFactor,
		CostPerServing:  item.CostPerServing(),
		MenuPrice:       item.MenuPrice,
		OpeningQty:      opening,
	}
}

// buildLine строка с корзинами из уже записанных движений позиции
func buildLine(stocktakeID string, item *models.StockItem, opening decimal.Decimal, movements []models.StockMovement) (models.StocktakeLine, error) {
	line := newLine(stocktakeID, item, opening)
	for _, m := range movements {
		if err := applyBucket(&line, m.MovementType, m.Quantity); err != nil {
			return line, err
		}
	}
	if err := RecomputeLine(&line); err != nil {
		return line, err
	}
	return line, nil
}

// Populate создает по строке на каждую активную позицию отеля.
// Остаток на открытие берется только из снимков предыдущего закрытого периода
func (s *StocktakeService) Populate(ctx context.Context, stocktakeID string) (*models.Stocktake, int, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stocktake, "id = ?", stocktakeID).Error; err != nil {
		tx.Rollback()
		return nil, 0, notFoundOr(err, "инвентаризация")
	}
	if stocktake.IsLocked() {
		tx.Rollback()
		return nil, 0, ErrStocktakeLocked
	}

	var existing int64
	if err := tx.Model(&models.StocktakeLine{}).Where("stocktake_id = ?", stocktakeID).Count(&existing).Error; err != nil {
		tx.Rollback()
		return nil, 0, fmt.Errorf("проверка строк: %w", err)
	}
	if existing > 0 {
		tx.Rollback()
		return nil, 0, ErrAlreadyPopulated
	}

	var period models.Period
	if err := tx.First(&period, "id = ?", stocktake.PeriodID).Error; err != nil {
		tx.Rollback()
		return nil, 0, notFoundOr(err, "период")
	}
	if err := s.snapshots.CheckIntegrity(tx, period.ID); err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	var items []models.StockItem
	if err := tx.Where("hotel_id = ? AND is_active = ?", stocktake.HotelID, true).Order("category, name").Find(&items).Error; err != nil {
		tx.Rollback()
		return nil, 0, fmt.Errorf("загрузка позиций: %w", err)
	}
	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}

	opening, err := s.snapshots.openingBalances(tx, &period, itemIDs)
	if err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	var movements []models.StockMovement
	if err := tx.Where("period_id = ?", period.ID).Order("created_at").Find(&movements).Error; err != nil {
		tx.Rollback()
		return nil, 0, fmt.Errorf("загрузка движений: %w", err)
	}
	byItem := groupMovementsByItem(movements)

	lines := make([]models.StocktakeLine, 0, len(items))
	for i := range items {
		line, err := buildLine(stocktake.ID, &items[i], opening[items[i].ID], byItem[items[i].ID])
		if err != nil {
			tx.Rollback()
			return nil, 0, fmt.Errorf("позиция %s: %w", items[i].ID, err)
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		if err := tx.CreateInBatches(&lines, 200).Error; err != nil {
			tx.Rollback()
			return nil, 0, fmt.Errorf("создание строк: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"stocktake_id": stocktake.ID,
		"period_id":    period.ID,
		"lines":        len(lines),
	}).Info("Инвентаризация заполнена")

	s.cache.invalidate(ctx, stocktake.ID)
	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventStocktakePopulated,
		HotelID:     stocktake.HotelID,
		StocktakeID: stocktake.ID,
		PeriodID:    stocktake.PeriodID,
		Payload:     map[string]interface{}{"line_count": len(lines)},
	})
	return &stocktake, len(lines), nil
}

// AddItemLine добавляет строку для позиции, созданной после заполнения
func (s *StocktakeService) AddItemLine(ctx context.Context, stocktakeID, itemID string) (*models.StocktakeLine, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&stocktake, "id = ?", stocktakeID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "инвентаризация")
	}
	if stocktake.IsLocked() {
		tx.Rollback()
		return nil, ErrStocktakeLocked
	}

	var item models.StockItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "позиция")
	}
	if item.HotelID != stocktake.HotelID {
		tx.Rollback()
		return nil, newValidationError("item_id", "позиция принадлежит другому отелю")
	}

	var existing int64
	if err := tx.Model(&models.StocktakeLine{}).Where("stocktake_id = ? AND item_id = ?", stocktakeID, itemID).Count(&existing).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("проверка строки: %w", err)
	}
	if existing > 0 {
		tx.Rollback()
		return nil, ErrDuplicateLine
	}

	var period models.Period
	if err := tx.First(&period, "id = ?", stocktake.PeriodID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "период")
	}
	if err := s.snapshots.CheckIntegrity(tx, period.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	opening, err := s.snapshots.openingBalances(tx, &period, []string{itemID})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var movements []models.StockMovement
	if err := tx.Where("period_id = ? AND item_id = ?", period.ID, itemID).Order("created_at").Find(&movements).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("загрузка движений: %w", err)
	}

	line, err := buildLine(stocktake.ID, &item, opening[itemID], movements)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&line).Error; err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return nil, ErrDuplicateLine
		}
		return nil, fmt.Errorf("создание строки: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.afterLineWrite(ctx, &stocktake, &line)
	return &line, nil
}

// lockLineForWrite блокирует инвентаризацию на чтение и строку на запись.
// Порядок блокировок одинаков во всех операциях: инвентаризация, затем строка
func (s *StocktakeService) lockLineForWrite(tx *gorm.DB, lineID string) (*models.Stocktake, *models.StocktakeLine, error) {
	var line models.StocktakeLine
	if err := tx.Select("id", "stocktake_id").First(&line, "id = ?", lineID).Error; err != nil {
		return nil, nil, notFoundOr(err, "строка инвентаризации")
	}

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&stocktake, "id = ?", line.StocktakeID).Error; err != nil {
		return nil, nil, notFoundOr(err, "инвентаризация")
	}
	if stocktake.IsLocked() {
		return nil, nil, ErrStocktakeLocked
	}
	if err := s.snapshots.CheckIntegrity(tx, stocktake.PeriodID); err != nil {
		return nil, nil, err
	}

	var locked models.StocktakeLine
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, "id = ?", lineID).Error; err != nil {
		return nil, nil, notFoundOr(err, "строка инвентаризации")
	}
	return &stocktake, &locked, nil
}

// mutateLine выполняет изменение строки под блокировкой и сохраняет пересчитанные поля
func (s *StocktakeService) mutateLine(ctx context.Context, lineID string, mutate func(line *models.StocktakeLine) error) (*models.StocktakeLine, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	stocktake, line, err := s.lockLineForWrite(tx, lineID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := mutate(line); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeLine(line); err != nil {
		tx.Rollback()
		return nil, err
	}
	line.Version++
	if err := tx.Save(line).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("сохранение строки: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.afterLineWrite(ctx, stocktake, line)
	return line, nil
}

// RecordCount сохраняет подсчет персонала и пересчитывает counted/expected/variance.
// Одновременные записи в одну строку выполняются по очереди, побеждает последняя
func (s *StocktakeService) RecordCount(ctx context.Context, lineID string, full, partial decimal.Decimal, staffID string) (*models.StocktakeLine, error) {
	return s.mutateLine(ctx, lineID, func(line *models.StocktakeLine) error {
		if err := ValidateUnits(line.Category, line.PackagingFactor, full, partial); err != nil {
			return err
		}
		now := time.Now().UTC()
		line.CountedFullUnits = full
		line.CountedPartialUnits = partial
		line.IsCounted = true
		line.CountedAt = &now
		if staffID != "" {
			line.CountedBy = &staffID
		}
		return nil
	})
}

// SetSalesQty задает ручное количество продаж строки; nil возвращает сумму движений SALE.
// Сумма движений (SalesQty) остается нетронутой. На ожидаемый остаток и расхождение не влияет
func (s *StocktakeService) SetSalesQty(ctx context.Context, lineID string, qty *decimal.Decimal) (*models.StocktakeLine, error) {
	if qty != nil && qty.IsNegative() {
		return nil, newValidationError("sales_qty", "не может быть отрицательным")
	}
	return s.mutateLine(ctx, lineID, func(line *models.StocktakeLine) error {
		line.ManualSalesQty = qty
		return nil
	})
}

// SetManualValues задает ручные денежные значения строки
func (s *StocktakeService) SetManualValues(ctx context.Context, lineID string, in ManualValuesInput) (*models.StocktakeLine, error) {
	for field, value := range map[string]*decimal.Decimal{
		"manual_purchases_value": in.Purchases,
		"manual_waste_value":     in.Waste,
		"manual_sales_value":     in.Sales,
	} {
		if value != nil && value.IsNegative() {
			return nil, newValidationError(field, "не может быть отрицательным")
		}
	}
	return s.mutateLine(ctx, lineID, func(line *models.StocktakeLine) error {
		line.ManualPurchasesValue = in.Purchases
		line.ManualWasteValue = in.Waste
		line.ManualSalesValue = in.Sales
		return nil
	})
}

// ApplyMovement относит движение в корзину заблокированной строки и сохраняет ее в tx
func (s *StocktakeService) ApplyMovement(tx *gorm.DB, line *models.StocktakeLine, movement *models.StockMovement) error {
	if err := applyBucket(line, movement.MovementType, movement.Quantity); err != nil {
		return err
	}
	if err := RecomputeLine(line); err != nil {
		return err
	}
	line.Version++
	if err := tx.Save(line).Error; err != nil {
		return fmt.Errorf("сохранение строки: %w", err)
	}
	return nil
}

// Approve переводит инвентаризацию в APPROVED. Повторный вызов возвращает AlreadyApproved
func (s *StocktakeService) Approve(ctx context.Context, stocktakeID string, staffID string) (*ApproveResult, error) {
	if err := requireStaff(staffID); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stocktake, "id = ?", stocktakeID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "инвентаризация")
	}
	if stocktake.IsLocked() {
		tx.Rollback()
		return &ApproveResult{Stocktake: &stocktake, AlreadyApproved: true}, nil
	}
	if err := s.snapshots.CheckIntegrity(tx, stocktake.PeriodID); err != nil {
		tx.Rollback()
		return nil, err
	}

	var hotel models.Hotel
	if err := tx.First(&hotel, "id = ?", stocktake.HotelID).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "отель")
	}
	if hotel.RequireFullCount {
		var uncounted int64
		if err := tx.Model(&models.StocktakeLine{}).
			Joins("JOIN stock_items ON stock_items.id = stocktake_lines.item_id").
			Where("stocktake_lines.stocktake_id = ? AND stocktake_lines.is_counted = ?", stocktakeID, false).
			Where("stock_items.is_active = ? AND stock_items.deleted_at IS NULL", true).
			Count(&uncounted).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("проверка подсчетов: %w", err)
		}
		if uncounted > 0 {
			tx.Rollback()
			return nil, newValidationError("lines", "не посчитано позиций: %d", uncounted)
		}
	}

	now := time.Now().UTC()
	if err := tx.Model(&stocktake).Updates(map[string]interface{}{
		"status":      models.StocktakeApproved,
		"approved_at": now,
		"approved_by": staffID,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("утверждение инвентаризации: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	stocktake.Status = models.StocktakeApproved
	stocktake.ApprovedAt = &now
	stocktake.ApprovedBy = &staffID

	config.GetLogger().WithFields(logrus.Fields{
		"stocktake_id": stocktake.ID,
		"staff_id":     staffID,
	}).Info("Инвентаризация утверждена")

	s.cache.invalidate(ctx, stocktake.ID)
	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventStocktakeApproved,
		HotelID:     stocktake.HotelID,
		StocktakeID: stocktake.ID,
		PeriodID:    stocktake.PeriodID,
		Payload:     map[string]interface{}{"approved_by": staffID},
	})
	return &ApproveResult{Stocktake: &stocktake}, nil
}

// afterLineWrite сбрасывает кэш сводки и публикует событие об изменении строки
func (s *StocktakeService) afterLineWrite(ctx context.Context, stocktake *models.Stocktake, line *models.StocktakeLine) {
	s.cache.invalidate(ctx, stocktake.ID)
	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventLineUpdated,
		HotelID:     stocktake.HotelID,
		StocktakeID: stocktake.ID,
		PeriodID:    stocktake.PeriodID,
		LineID:      line.ID,
		Payload:     LinePayload(line),
	})
}

// LinePayload представление строки для событий и ответов API
func LinePayload(line *models.StocktakeLine) map[string]interface{} {
	full, partial := ToDisplay(line.Category, line.PackagingFactor, line.CountedQty)
	return map[string]interface{}{
		"line_id":          line.ID,
		"item_id":          line.ItemID,
		"item_name":        line.ItemName,
		"category":         line.Category,
		"opening_qty":      line.OpeningQty.String(),
		"purchases":        line.Purchases.String(),
		"waste":            line.Waste.String(),
		"sales_qty":        line.EffectiveSalesQty().String(),
		"movement_sales":   line.SalesQty.String(),
		"manual_sales_qty": line.ManualSalesQty,
		"counted_qty":      line.CountedQty.String(),
		"expected_qty":     line.ExpectedQty.String(),
		"variance_qty":     line.VarianceQty.String(),
		"counted_full":     full.String(),
		"counted_partial":  partial.String(),
		"counted_display":  FormatDisplay(line.Category, line.PackagingFactor, line.CountedQty),
		"expected_display": FormatDisplay(line.Category, line.PackagingFactor, line.ExpectedQty),
		"variance_display": FormatDisplay(line.Category, line.PackagingFactor, line.VarianceQty),
		"is_counted":       line.IsCounted,
		"version":          line.Version,
	}
}

func groupMovementsByItem(movements []models.StockMovement) map[string][]models.StockMovement {
	byItem := make(map[string][]models.StockMovement)
	for _, m := range movements {
		byItem[m.ItemID] = append(byItem[m.ItemID], m)
	}
	return byItem
}

// lockDraftLine блокирует строку позиции в черновой инвентаризации периода.
// Возвращает nil без ошибки, если инвентаризации или строки нет
func lockDraftLine(tx *gorm.DB, periodID, itemID string) (*models.Stocktake, *models.StocktakeLine, error) {
	var stocktake models.Stocktake
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("period_id = ?", periodID).First(&stocktake).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка инвентаризации: %w", err)
	}
	if stocktake.IsLocked() {
		return &stocktake, nil, ErrStocktakeLocked
	}

	var line models.StocktakeLine
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stocktake_id = ? AND item_id = ?", stocktake.ID, itemID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &stocktake, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка строки: %w", err)
	}
	return &stocktake, &line, nil
}
