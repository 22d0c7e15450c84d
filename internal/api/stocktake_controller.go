package api

import (
	"net/http"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// StocktakeController управляет API endpoints инвентаризаций и их строк
type StocktakeController struct {
	stocktakes *services.StocktakeService
	periods    *services.PeriodService
	merges     *services.ConsumptionMergeService
}

// NewStocktakeController создает новый контроллер инвентаризаций
func NewStocktakeController(stocktakes *services.StocktakeService, periods *services.PeriodService, merges *services.ConsumptionMergeService) *StocktakeController {
	return &StocktakeController{stocktakes: stocktakes, periods: periods, merges: merges}
}

type createStocktakeRequest struct {
	PeriodID string `json:"period_id" binding:"required,uuid"`
	Notes    string `json:"notes"`
}

type addLineRequest struct {
	ItemID string `json:"item_id" binding:"required,uuid"`
}

type mergeRequest struct {
	RecordID string `json:"record_id" binding:"required,uuid"`
}

type countRequest struct {
	FullUnits    decimal.Decimal `json:"full_units"`
	PartialUnits decimal.Decimal `json:"partial_units"`
}

type salesRequest struct {
	SalesQty *decimal.Decimal `json:"sales_qty"` // null возвращает сумму движений SALE
}

// ListStocktakes возвращает инвентаризации отеля
// GET /api/v1/hotels/:hotel_id/stocktakes
func (sc *StocktakeController) ListStocktakes(c *gin.Context) {
	stocktakes, err := sc.stocktakes.ListStocktakes(c.Request.Context(), c.Param("hotel_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocktakes": stocktakes, "count": len(stocktakes)})
}

// CreateStocktake создает инвентаризацию периода
// POST /api/v1/hotels/:hotel_id/stocktakes
func (sc *StocktakeController) CreateStocktake(c *gin.Context) {
	var req createStocktakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, err := sc.periods.GetPeriod(c.Request.Context(), req.PeriodID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !sameHotel(c, period.HotelID) {
		return
	}
	stocktake, err := sc.stocktakes.CreateStocktake(c.Request.Context(), period.ID, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stocktake)
}

// GetStocktake возвращает инвентаризацию
// GET /api/v1/hotels/:hotel_id/stocktakes/:id
func (sc *StocktakeController) GetStocktake(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stocktake)
}

// Populate создает строки для всех активных позиций
// POST /api/v1/hotels/:hotel_id/stocktakes/:id/populate
func (sc *StocktakeController) Populate(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	populated, count, err := sc.stocktakes.Populate(c.Request.Context(), stocktake.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocktake": populated, "lines_created": count})
}

// Approve утверждает инвентаризацию
// POST /api/v1/hotels/:hotel_id/stocktakes/:id/approve
func (sc *StocktakeController) Approve(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	result, err := sc.stocktakes.Approve(c.Request.Context(), stocktake.ID, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Summary итоги инвентаризации с финансовыми показателями
// GET /api/v1/hotels/:hotel_id/stocktakes/:id/summary
func (sc *StocktakeController) Summary(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	summary, err := sc.stocktakes.Summary(c.Request.Context(), stocktake.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Categories итоги по категориям
// GET /api/v1/hotels/:hotel_id/stocktakes/:id/categories
func (sc *StocktakeController) Categories(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	categories, err := sc.stocktakes.CategoryBreakdown(c.Request.Context(), stocktake.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetLines строки инвентаризации
// GET /api/v1/hotels/:hotel_id/stocktakes/:id/lines?category=Draught
func (sc *StocktakeController) GetLines(c *gin.Context) {
	category := models.StockCategory(c.Query("category"))
	if category != "" && !category.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестная категория", "code": "bad_request"})
		return
	}
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	lines, err := sc.stocktakes.GetLines(c.Request.Context(), stocktake.ID, category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines, "count": len(lines)})
}

// AddLine добавляет строку для позиции, созданной после заполнения
// POST /api/v1/hotels/:hotel_id/stocktakes/:id/lines
func (sc *StocktakeController) AddLine(c *gin.Context) {
	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	line, err := sc.stocktakes.AddItemLine(c.Request.Context(), stocktake.ID, req.ItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

// Merge сливает одну запись расхода в строку
// POST /api/v1/hotels/:hotel_id/stocktakes/:id/merge
func (sc *StocktakeController) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	result, err := sc.merges.MergeOne(c.Request.Context(), req.RecordID, stocktake.ID, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MergeAll сливает все несмерженные записи периода
// POST /api/v1/hotels/:hotel_id/stocktakes/:id/merge-all
func (sc *StocktakeController) MergeAll(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	summary, err := sc.merges.MergeAll(c.Request.Context(), stocktake.ID, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// PendingConsumption записи расхода, ожидающие слияния, с предпросмотром строк
// GET /api/v1/hotels/:hotel_id/stocktakes/:id/pending-consumption
func (sc *StocktakeController) PendingConsumption(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	pending, err := sc.merges.PendingForStocktake(c.Request.Context(), stocktake.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": pending, "count": len(pending)})
}

// LedgerCheck сверяет корзины строк с журналом движений
// GET /api/v1/hotels/:hotel_id/stocktakes/:id/ledger-check
func (sc *StocktakeController) LedgerCheck(c *gin.Context) {
	stocktake, ok := sc.loadStocktake(c)
	if !ok {
		return
	}
	report, err := sc.stocktakes.VerifyLedger(c.Request.Context(), stocktake.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RecordCount записывает подсчет строки
// PUT /api/v1/hotels/:hotel_id/stocktake-lines/:id/count
func (sc *StocktakeController) RecordCount(c *gin.Context) {
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !sc.lineInHotel(c) {
		return
	}
	line, err := sc.stocktakes.RecordCount(c.Request.Context(), c.Param("id"), req.FullUnits, req.PartialUnits, staffIDFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// SetSales записывает количество продаж строки
// PUT /api/v1/hotels/:hotel_id/stocktake-lines/:id/sales
func (sc *StocktakeController) SetSales(c *gin.Context) {
	var req salesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !sc.lineInHotel(c) {
		return
	}
	line, err := sc.stocktakes.SetSalesQty(c.Request.Context(), c.Param("id"), req.SalesQty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// SetManualValues задает ручные денежные значения строки
// PUT /api/v1/hotels/:hotel_id/stocktake-lines/:id/manual-values
func (sc *StocktakeController) SetManualValues(c *gin.Context) {
	var req services.ManualValuesInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !sc.lineInHotel(c) {
		return
	}
	line, err := sc.stocktakes.SetManualValues(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (sc *StocktakeController) loadStocktake(c *gin.Context) (*models.Stocktake, bool) {
	stocktake, err := sc.stocktakes.GetStocktake(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !sameHotel(c, stocktake.HotelID) {
		return nil, false
	}
	return stocktake, true
}

func (sc *StocktakeController) lineInHotel(c *gin.Context) bool {
	line, err := sc.stocktakes.GetLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return false
	}
	stocktake, err := sc.stocktakes.GetStocktake(c.Request.Context(), line.StocktakeID)
	if err != nil {
		respondError(c, err)
		return false
	}
	return sameHotel(c, stocktake.HotelID)
}
