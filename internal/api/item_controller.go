package api

import (
	"net/http"
	"strconv"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin"
)

// ItemController управляет API endpoints позиций склада
type ItemController struct {
	items *services.StockItemService
}

// NewItemController создает новый контроллер позиций
func NewItemController(items *services.StockItemService) *ItemController {
	return &ItemController{items: items}
}

// ListItems возвращает позиции отеля
// GET /api/v1/hotels/:hotel_id/items?category=Spirits&active=true
func (ic *ItemController) ListItems(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	category := models.StockCategory(c.Query("category"))
	if category != "" && !category.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестная категория", "code": "bad_request"})
		return
	}

	items, err := ic.items.ListItems(c.Request.Context(), c.Param("hotel_id"), category, activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// CreateItem создает позицию
// POST /api/v1/hotels/:hotel_id/items
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in services.CreateItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.HotelID = c.Param("hotel_id")

	item, err := ic.items.CreateItem(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetItem возвращает позицию
// GET /api/v1/hotels/:hotel_id/items/:id
func (ic *ItemController) GetItem(c *gin.Context) {
	item, err := ic.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !sameHotel(c, item.HotelID) {
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateItem меняет цену, себестоимость, норму или активность
// PATCH /api/v1/hotels/:hotel_id/items/:id
func (ic *ItemController) UpdateItem(c *gin.Context) {
	var in services.UpdateItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	existing, err := ic.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !sameHotel(c, existing.HotelID) {
		return
	}

	item, err := ic.items.UpdateItem(c.Request.Context(), existing.ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ListCategories таблица категорий с правилами пересчета
// GET /api/v1/categories
func (ic *ItemController) ListCategories(c *gin.Context) {
	categories := ic.items.ListCategories()
	c.JSON(http.StatusOK, gin.H{"categories": categories, "count": len(categories)})
}
