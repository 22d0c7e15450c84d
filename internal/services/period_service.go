package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/models"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PeriodService управляет учетными периодами: создание, закрытие, переоткрытие
type PeriodService struct {
	db        *gorm.DB
	snapshots *SnapshotService
	locker    *redislock.Client
	lockTTL   time.Duration
	publisher EventPublisher
	cache     *SummaryCacheStore
}

// CloseResult результат закрытия периода
type CloseResult struct {
	Period        *models.Period `json:"period"`
	AlreadyClosed bool           `json:"already_closed"`
	SnapshotCount int            `json:"snapshot_count"`
}

// NewPeriodService создает новый экземпляр PeriodService
func NewPeriodService(db *gorm.DB, snapshots *SnapshotService) *PeriodService {
	return &PeriodService{db: db, snapshots: snapshots, lockTTL: 30 * time.Second}
}

// SetLocker устанавливает распределенную блокировку закрытия периода
func (s *PeriodService) SetLocker(locker *redislock.Client, ttl time.Duration) {
	s.locker = locker
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// SetPublisher устанавливает получателя событий
func (s *PeriodService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SetSummaryCache устанавливает кэш сводок
func (s *PeriodService) SetSummaryCache(cache *SummaryCacheStore) {
	s.cache = cache
}

// CreatePeriod создает период отеля. Даты усекаются до дня
func (s *PeriodService) CreatePeriod(ctx context.Context, hotelID string, start, end time.Time) (*models.Period, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, newValidationError("end_date", "не может быть раньше start_date")
	}

	db := s.db.WithContext(ctx)
	var hotel models.Hotel
	if err := db.First(&hotel, "id = ?", hotelID).Error; err != nil {
		return nil, notFoundOr(err, "отель")
	}

	var existing int64
	if err := db.Model(&models.Period{}).
		Where("hotel_id = ? AND start_date = ? AND end_date = ?", hotelID, start, end).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("проверка периода: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicatePeriod
	}

	period := &models.Period{HotelID: hotelID, StartDate: start, EndDate: end}
	if err := db.Create(period).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePeriod
		}
		return nil, fmt.Errorf("создание периода: %w", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"period_id": period.ID,
		"hotel_id":  hotelID,
		"start":     start.Format("2006-01-02"),
		"end":       end.Format("2006-01-02"),
	}).Info("Период создан")
	return period, nil
}

// GetPeriod возвращает период по ID
func (s *PeriodService) GetPeriod(ctx context.Context, id string) (*models.Period, error) {
	var period models.Period
	if err := s.db.WithContext(ctx).First(&period, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "период")
	}
	return &period, nil
}

// ListPeriods периоды отеля, новые первыми
func (s *PeriodService) ListPeriods(ctx context.Context, hotelID string) ([]models.Period, error) {
	var periods []models.Period
	if err := s.db.WithContext(ctx).Where("hotel_id = ?", hotelID).Order("start_date DESC").Find(&periods).Error; err != nil {
		return nil, fmt.Errorf("список периодов: %w", err)
	}
	return periods, nil
}

// PreviousPeriod период, предшествующий данному; nil, если его нет
func (s *PeriodService) PreviousPeriod(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	return previousPeriod(s.db.WithContext(ctx), period)
}

// SetManualTotals задает ручные итоги периода; nil очищает значение
func (s *PeriodService) SetManualTotals(ctx context.Context, id string, sales, purchases *decimal.Decimal) (*models.Period, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var period models.Period
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&period, "id = ?", id).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "период")
	}
	if period.IsClosed {
		tx.Rollback()
		return nil, fmt.Errorf("период закрыт: %w", ErrStocktakeLocked)
	}

	updates := map[string]interface{}{
		"manual_sales_amount":     sales,
		"manual_purchases_amount": purchases,
	}
	if err := tx.Model(&period).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("сохранение ручных итогов: %w", err)
	}
	var stocktake models.Stocktake
	stocktakeErr := tx.Where("period_id = ?", id).First(&stocktake).Error
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	period.ManualSalesAmount = sales
	period.ManualPurchasesAmount = purchases
	if stocktakeErr == nil {
		s.cache.invalidate(ctx, stocktake.ID)
	}
	return &period, nil
}

// ClosePeriod запечатывает период: требует утвержденную инвентаризацию,
// переписывает снимки из посчитанных значений и ставит is_closed.
// Повторное закрытие возвращает AlreadyClosed без ошибки
func (s *PeriodService) ClosePeriod(ctx context.Context, id string, staffID string) (*CloseResult, error) {
	if err := requireStaff(staffID); err != nil {
		return nil, err
	}
	logger := config.GetLogger()

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "period-close:"+id, s.lockTTL, nil)
		switch {
		case err == nil:
			defer lock.Release(context.Background())
		case errors.Is(err, redislock.ErrNotObtained):
			logger.WithField("period_id", id).Warn("Закрытие периода уже выполняется, ждем блокировку строки")
		default:
			logger.WithError(err).WithField("period_id", id).Warn("Redis-блокировка недоступна, продолжаем без нее")
		}
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var period models.Period
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&period, "id = ?", id).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "период")
	}
	if period.IsClosed {
		tx.Rollback()
		return &CloseResult{Period: &period, AlreadyClosed: true}, nil
	}

	var stocktake models.Stocktake
	if err := tx.Where("period_id = ?", id).First(&stocktake).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStocktakeNotApproved
		}
		return nil, fmt.Errorf("загрузка инвентаризации: %w", err)
	}
	if stocktake.Status != models.StocktakeApproved {
		tx.Rollback()
		return nil, ErrStocktakeNotApproved
	}
	if err := s.snapshots.CheckIntegrity(tx, id); err != nil {
		tx.Rollback()
		return nil, err
	}

	var lines []models.StocktakeLine
	if err := tx.Where("stocktake_id = ?", stocktake.ID).Find(&lines).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("загрузка строк: %w", err)
	}
	count, err := s.snapshots.ReplaceSnapshots(tx, id, lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.Model(&period).Updates(map[string]interface{}{
		"is_closed": true,
		"closed_at": now,
		"closed_by": staffID,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("закрытие периода: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	period.IsClosed = true
	period.ClosedAt = &now
	period.ClosedBy = &staffID

	logger.WithFields(logrus.Fields{
		"period_id":    id,
		"stocktake_id": stocktake.ID,
		"snapshots":    count,
		"staff_id":     staffID,
	}).Info("Период закрыт")

	s.cache.invalidate(ctx, stocktake.ID)
	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventPeriodClosed,
		HotelID:     period.HotelID,
		PeriodID:    id,
		StocktakeID: stocktake.ID,
		Payload:     map[string]interface{}{"snapshot_count": count, "closed_by": staffID},
	})
	return &CloseResult{Period: &period, SnapshotCount: count}, nil
}

// ReopenPeriod снимает is_closed. Требует активного права на переоткрытие.
// Снимки сохраняются до следующего закрытия, инвентаризация возвращается в DRAFT
func (s *PeriodService) ReopenPeriod(ctx context.Context, id string, staffID string) (*models.Period, error) {
	if err := requireStaff(staffID); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var period models.Period
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&period, "id = ?", id).Error; err != nil {
		tx.Rollback()
		return nil, notFoundOr(err, "период")
	}

	var grants int64
	if err := tx.Model(&models.PeriodReopenGrant{}).
		Where("hotel_id = ? AND staff_id = ? AND revoked_at IS NULL", period.HotelID, staffID).
		Count(&grants).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("проверка права переоткрытия: %w", err)
	}
	if grants == 0 {
		tx.Rollback()
		return nil, ErrPermissionDenied
	}

	if !period.IsClosed {
		tx.Rollback()
		return &period, nil
	}

	now := time.Now().UTC()
	if err := tx.Model(&period).Updates(map[string]interface{}{
		"is_closed":   false,
		"reopened_at": now,
		"reopened_by": staffID,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("переоткрытие периода: %w", err)
	}

	var stocktake models.Stocktake
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("period_id = ?", id).First(&stocktake).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, fmt.Errorf("загрузка инвентаризации: %w", err)
	}
	if stocktake.ID != "" {
		if err := tx.Model(&stocktake).Updates(map[string]interface{}{
			"status":      models.StocktakeDraft,
			"approved_at": nil,
			"approved_by": nil,
		}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("возврат инвентаризации в черновик: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	period.IsClosed = false
	period.ReopenedAt = &now
	period.ReopenedBy = &staffID

	config.GetLogger().WithFields(logrus.Fields{
		"period_id": id,
		"staff_id":  staffID,
	}).Info("Период переоткрыт")

	s.cache.invalidate(ctx, stocktake.ID)
	emitEvent(ctx, s.publisher, StockEvent{
		Type:        EventPeriodReopened,
		HotelID:     period.HotelID,
		PeriodID:    id,
		StocktakeID: stocktake.ID,
		Payload:     map[string]interface{}{"reopened_by": staffID},
	})
	return &period, nil
}

// GrantReopenPermission выдает сотруднику право переоткрывать периоды.
// Выдавать может только суперпользователь или менеджер (в том числе себе)
func (s *PeriodService) GrantReopenPermission(ctx context.Context, grantorID, granteeID string) (*models.PeriodReopenGrant, error) {
	db := s.db.WithContext(ctx)
	grantor, grantee, err := s.loadGrantParties(db, grantorID, granteeID)
	if err != nil {
		return nil, err
	}

	var existing models.PeriodReopenGrant
	err = db.Where("hotel_id = ? AND staff_id = ? AND revoked_at IS NULL", grantee.HotelID, grantee.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("проверка права переоткрытия: %w", err)
	}

	grant := &models.PeriodReopenGrant{
		HotelID:   grantee.HotelID,
		StaffID:   grantee.ID,
		GrantedBy: grantor.ID,
	}
	if err := db.Create(grant).Error; err != nil {
		return nil, fmt.Errorf("выдача права переоткрытия: %w", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"grantor_id": grantor.ID,
		"grantee_id": grantee.ID,
		"hotel_id":   grantee.HotelID,
	}).Info("Выдано право переоткрытия периодов")
	return grant, nil
}

// RevokeReopenPermission отзывает активное право переоткрытия
func (s *PeriodService) RevokeReopenPermission(ctx context.Context, grantorID, granteeID string) error {
	db := s.db.WithContext(ctx)
	grantor, grantee, err := s.loadGrantParties(db, grantorID, granteeID)
	if err != nil {
		return err
	}

	result := db.Model(&models.PeriodReopenGrant{}).
		Where("hotel_id = ? AND staff_id = ? AND revoked_at IS NULL", grantee.HotelID, grantee.ID).
		Updates(map[string]interface{}{"revoked_at": time.Now().UTC(), "revoked_by": grantor.ID})
	if result.Error != nil {
		return fmt.Errorf("отзыв права переоткрытия: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("активное право переоткрытия: %w", ErrNotFound)
	}
	return nil
}

// ListReopenGrants активные права переоткрытия отеля
func (s *PeriodService) ListReopenGrants(ctx context.Context, hotelID string) ([]models.PeriodReopenGrant, error) {
	var grants []models.PeriodReopenGrant
	if err := s.db.WithContext(ctx).Where("hotel_id = ? AND revoked_at IS NULL", hotelID).
		Order("granted_at").Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("список прав переоткрытия: %w", err)
	}
	return grants, nil
}

func (s *PeriodService) loadGrantParties(db *gorm.DB, grantorID, granteeID string) (*models.Staff, *models.Staff, error) {
	var grantor, grantee models.Staff
	if err := db.First(&grantor, "id = ?", grantorID).Error; err != nil {
		return nil, nil, notFoundOr(err, "сотрудник")
	}
	if !grantor.CanGrantReopen() {
		return nil, nil, ErrPermissionDenied
	}
	if err := db.First(&grantee, "id = ?", granteeID).Error; err != nil {
		return nil, nil, notFoundOr(err, "сотрудник")
	}
	if !grantor.IsSuperuser && grantor.HotelID != grantee.HotelID {
		return nil, nil, ErrPermissionDenied
	}
	return &grantor, &grantee, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
