package api

import (
	"context"
	"errors"
	"net/http"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError переводит ошибку сервиса в HTTP-ответ
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Ошибка валидации",
			"code":       "validation_error",
			"field":      ve.Field,
			"constraint": ve.Constraint,
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Не найдено", "code": "not_found", "details": err.Error()})
	case errors.Is(err, services.ErrDuplicatePeriod):
		c.JSON(http.StatusConflict, gin.H{"error": "Период уже существует", "code": "duplicate_period", "details": err.Error()})
	case errors.Is(err, services.ErrDuplicateStocktake):
		c.JSON(http.StatusConflict, gin.H{"error": "Инвентаризация уже существует", "code": "duplicate_stocktake", "details": err.Error()})
	case errors.Is(err, services.ErrDuplicateLine):
		c.JSON(http.StatusConflict, gin.H{"error": "Строка уже существует", "code": "duplicate_line", "details": err.Error()})
	case errors.Is(err, services.ErrAlreadyPopulated):
		c.JSON(http.StatusConflict, gin.H{"error": "Инвентаризация уже заполнена", "code": "already_populated", "details": err.Error()})
	case errors.Is(err, services.ErrStocktakeNotApproved):
		c.JSON(http.StatusConflict, gin.H{"error": "Инвентаризация не утверждена", "code": "stocktake_not_approved", "details": err.Error()})
	case errors.Is(err, services.ErrStocktakeLocked):
		c.JSON(http.StatusLocked, gin.H{"error": "Инвентаризация закрыта для изменений", "code": "stocktake_locked", "details": err.Error()})
	case errors.Is(err, services.ErrNotLinked):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Запись не привязана к позиции", "code": "not_linked", "details": err.Error()})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Недостаточно прав", "code": "permission_denied", "details": err.Error()})
	case errors.Is(err, services.ErrPeriodIntegrity):
		config.LogError(config.GetLogger(), "api", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Нарушена целостность периода", "code": "period_integrity", "details": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Превышено время ожидания", "code": "timeout"})
	default:
		config.LogError(config.GetLogger(), "api", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка", "code": "internal", "details": err.Error()})
	}
}

// badRequest ответ на неверное тело или параметры запроса
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Неверные параметры запроса",
		"code":    "bad_request",
		"details": err.Error(),
	})
}
