package api

import (
	"net/http"
	"time"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// PeriodController управляет API endpoints учетных периодов
type PeriodController struct {
	periods   *services.PeriodService
	snapshots *services.SnapshotService
}

// NewPeriodController создает новый контроллер периодов
func NewPeriodController(periods *services.PeriodService, snapshots *services.SnapshotService) *PeriodController {
	return &PeriodController{periods: periods, snapshots: snapshots}
}

type createPeriodRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type manualTotalsRequest struct {
	Sales     *decimal.Decimal `json:"manual_sales_amount"`
	Purchases *decimal.Decimal `json:"manual_purchases_amount"`
}

type reopenGrantRequest struct {
	StaffID string `json:"staff_id" binding:"required,uuid"`
}

// ListPeriods возвращает периоды отеля
// GET /api/v1/hotels/:hotel_id/periods
func (pc *PeriodController) ListPeriods(c *gin.Context) {
	periods, err := pc.periods.ListPeriods(c.Request.Context(), c.Param("hotel_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods, "count": len(periods)})
}

// CreatePeriod создает период
// POST /api/v1/hotels/:hotel_id/periods
func (pc *PeriodController) CreatePeriod(c *gin.Context) {
	var req createPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	period, err := pc.periods.CreatePeriod(c.Request.Context(), c.Param("hotel_id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

// GetPeriod возвращает период и предыдущий период отеля
// GET /api/v1/hotels/:hotel_id/periods/:id
func (pc *PeriodController) GetPeriod(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	previous, err := pc.periods.PreviousPeriod(c.Request.Context(), period.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "previous": previous})
}

// ListSnapshots возвращает снимки остатков закрытого периода
// GET /api/v1/hotels/:hotel_id/periods/:id/snapshots
func (pc *PeriodController) ListSnapshots(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	snapshots, err := pc.snapshots.ListSnapshots(c.Request.Context(), period.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

// OpeningBalance остаток позиции на открытие периода (из снимка предыдущего закрытого периода)
// GET /api/v1/hotels/:hotel_id/periods/:id/opening-balance?item_id=
func (pc *PeriodController) OpeningBalance(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	itemID := c.Query("item_id")
	if itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Не указан item_id"})
		return
	}
	balance, err := pc.snapshots.GetOpeningBalance(c.Request.Context(), itemID, period.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_id": period.ID, "item_id": itemID, "opening_qty": balance})
}

// ClosePeriod закрывает период и фиксирует остатки
// POST /api/v1/hotels/:hotel_id/periods/:id/close
func (pc *PeriodController) ClosePeriod(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	result, err := pc.periods.ClosePeriod(c.Request.Context(), period.ID, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReopenPeriod переоткрывает закрытый период
// POST /api/v1/hotels/:hotel_id/periods/:id/reopen
func (pc *PeriodController) ReopenPeriod(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	reopened, err := pc.periods.ReopenPeriod(c.Request.Context(), period.ID, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reopened)
}

// SetManualTotals задает ручные итоги продаж и закупок периода
// PUT /api/v1/hotels/:hotel_id/periods/:id/manual-totals
func (pc *PeriodController) SetManualTotals(c *gin.Context) {
	var req manualTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	updated, err := pc.periods.SetManualTotals(c.Request.Context(), period.ID, req.Sales, req.Purchases)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ListReopenGrants активные права переоткрытия в отеле периода
// GET /api/v1/hotels/:hotel_id/periods/:id/reopen-grants
func (pc *PeriodController) ListReopenGrants(c *gin.Context) {
	period, ok := pc.loadPeriod(c)
	if !ok {
		return
	}
	grants, err := pc.periods.ListReopenGrants(c.Request.Context(), period.HotelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants, "count": len(grants)})
}

// GrantReopen выдает сотруднику право переоткрытия
// POST /api/v1/hotels/:hotel_id/periods/:id/reopen-grants
func (pc *PeriodController) GrantReopen(c *gin.Context) {
	var req reopenGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, ok := pc.loadPeriod(c); !ok {
		return
	}
	grant, err := pc.periods.GrantReopenPermission(c.Request.Context(), staffIDFrom(c), req.StaffID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// RevokeReopen отзывает право переоткрытия
// DELETE /api/v1/hotels/:hotel_id/periods/:id/reopen-grants/:staff_id
func (pc *PeriodController) RevokeReopen(c *gin.Context) {
	if _, ok := pc.loadPeriod(c); !ok {
		return
	}
	if err := pc.periods.RevokeReopenPermission(c.Request.Context(), staffIDFrom(c), c.Param("staff_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Право переоткрытия отозвано"})
}

func (pc *PeriodController) loadPeriod(c *gin.Context) (*models.Period, bool) {
	period, err := pc.periods.GetPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !sameHotel(c, period.HotelID) {
		return nil, false
	}
	return period, true
}
