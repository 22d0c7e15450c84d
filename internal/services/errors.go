package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("запись не найдена")
	ErrDuplicatePeriod      = errors.New("период с такими датами уже существует")
	ErrDuplicateStocktake   = errors.New("инвентаризация для периода уже создана")
	ErrDuplicateLine        = errors.New("строка для позиции уже есть в инвентаризации")
	ErrAlreadyPopulated     = errors.New("инвентаризация уже заполнена")
	ErrStocktakeLocked      = errors.New("инвентаризация утверждена и закрыта для изменений")
	ErrStocktakeNotApproved = errors.New("инвентаризация периода не утверждена")
	ErrNotLinked            = errors.New("запись расхода не привязана к складской позиции")
	ErrPermissionDenied     = errors.New("недостаточно прав")
	ErrPeriodIntegrity      = errors.New("нарушена целостность периода: снимки остатков у незакрытого периода")
)

// ValidationError ошибка входных данных с указанием поля и нарушенного ограничения
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("поле %s: %s", e.Field, e.Constraint)
}

func newValidationError(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Constraint: fmt.Sprintf(format, args...)}
}

// IsValidationError проверяет, что err (или вложенная ошибка) является ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// isUniqueViolation распознает нарушение уникального индекса (с TranslateError и без)
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFoundOr приводит gorm.ErrRecordNotFound к ErrNotFound
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// requireStaff проверяет, что операция выполняется от имени сотрудника
func requireStaff(staffID string) error {
	if staffID == "" {
		return newValidationError("staff_id", "обязательно")
	}
	return nil
}
