package api

import (
	"net/http"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
)

// MovementController управляет API endpoints журнала движений
type MovementController struct {
	movements *services.MovementService
	periods   *services.PeriodService
}

// NewMovementController создает новый контроллер движений
func NewMovementController(movements *services.MovementService, periods *services.PeriodService) *MovementController {
	return &MovementController{movements: movements, periods: periods}
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

// RecordMovement добавляет движение в журнал
// POST /api/v1/hotels/:hotel_id/movements
func (mc *MovementController) RecordMovement(c *gin.Context) {
	var in services.MovementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if !mc.periodInHotel(c, in.PeriodID) {
		return
	}
	in.StaffID = staffIDFrom(c)
	in.ReversesID = nil

	movement, err := mc.movements.Record(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// History движения периода
// GET /api/v1/hotels/:hotel_id/movements?period_id=xxx&item_id=yyy&type=WASTE
func (mc *MovementController) History(c *gin.Context) {
	filter := services.MovementFilter{
		PeriodID: c.Query("period_id"),
		ItemID:   c.Query("item_id"),
		Type:     models.MovementType(c.Query("type")),
	}
	if filter.PeriodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Требуется period_id", "code": "bad_request"})
		return
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный тип движения", "code": "bad_request"})
		return
	}
	if !mc.periodInHotel(c, filter.PeriodID) {
		return
	}

	movements, err := mc.movements.History(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "count": len(movements)})
}

// Totals суммы движений позиции за период по типам
// GET /api/v1/hotels/:hotel_id/movements/totals?period_id=xxx&item_id=yyy
func (mc *MovementController) Totals(c *gin.Context) {
	periodID, itemID := c.Query("period_id"), c.Query("item_id")
	if periodID == "" || itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Требуются period_id и item_id", "code": "bad_request"})
		return
	}
	if !mc.periodInHotel(c, periodID) {
		return
	}
	totals, err := mc.movements.TotalsByType(c.Request.Context(), periodID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_id": periodID, "item_id": itemID, "totals": totals})
}

// Reverse сторнирует движение новым движением с обратным знаком
// POST /api/v1/hotels/:hotel_id/movements/:id/reverse
func (mc *MovementController) Reverse(c *gin.Context) {
	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err)
		return
	}
	original, err := mc.movements.GetMovement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !mc.periodInHotel(c, original.PeriodID) {
		return
	}

	movement, err := mc.movements.Reverse(c.Request.Context(), original.ID, staffIDFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (mc *MovementController) periodInHotel(c *gin.Context, periodID string) bool {
	period, err := mc.periods.GetPeriod(c.Request.Context(), periodID)
	if err != nil {
		respondError(c, err)
		return false
	}
	return sameHotel(c, period.HotelID)
}
