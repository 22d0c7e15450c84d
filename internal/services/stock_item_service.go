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
)

// StockItemService справочник позиций бара и категорий
type StockItemService struct {
	db *gorm.DB
}

// NewStockItemService создает новый экземпляр StockItemService
func NewStockItemService(db *gorm.DB) *StockItemService {
	return &StockItemService{db: db}
}

// CreateItemInput данные новой позиции
type CreateItemInput struct {
	HotelID         string               `json:"hotel_id"`
	SKU             string               `json:"sku" binding:"required"`
	Name            string               `json:"name" binding:"required"`
	Category        models.StockCategory `json:"category" binding:"required,stock_category"`
	PackagingFactor decimal.Decimal      `json:"packaging_factor"`
	UnitCost        decimal.Decimal      `json:"unit_cost"`
	MenuPrice       decimal.Decimal      `json:"menu_price"`
	ParLevel        decimal.Decimal      `json:"par_level"`
}

// UpdateItemInput изменяемые поля позиции; nil означает без изменений
type UpdateItemInput struct {
	Name      *string          `json:"name"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
	MenuPrice *decimal.Decimal `json:"menu_price"`
	ParLevel  *decimal.Decimal `json:"par_level"`
	IsActive  *bool            `json:"is_active"`
}

// CreateItem создает позицию. Нулевой коэффициент берется из правила категории
func (s *StockItemService) CreateItem(ctx context.Context, in CreateItemInput) (*models.StockItem, error) {
	rule, err := RuleFor(in.Category)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SKU) == "" {
		return nil, newValidationError("sku", "обязательно")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, newValidationError("name", "обязательно")
	}

	factor := in.PackagingFactor
	if factor.IsZero() {
		factor = rule.DefaultFactor
	}
	if !factor.IsPositive() {
		return nil, newValidationError("packaging_factor", "должен быть больше 0")
	}
	if rule.Partial == PartialLooseUnits && !factor.IsInteger() {
		return nil, newValidationError("packaging_factor", "для категории %s нужно целое число бутылок в ящике", in.Category)
	}
	if err := validateMoney(map[string]decimal.Decimal{"unit_cost": in.UnitCost, "menu_price": in.MenuPrice, "par_level": in.ParLevel}); err != nil {
		return nil, err
	}

	item := &models.StockItem{
		HotelID:         in.HotelID,
		SKU:             strings.TrimSpace(in.SKU),
		Name:            strings.TrimSpace(in.Name),
		Category:        in.Category,
		PackagingFactor: factor,
		UnitCost:        in.UnitCost,
		MenuPrice:       in.MenuPrice,
		ParLevel:        in.ParLevel,
		IsActive:        true,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, newValidationError("sku", "%q уже используется в отеле", item.SKU)
		}
		return nil, fmt.Errorf("создание позиции: %w", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"item_id":  item.ID,
		"hotel_id": item.HotelID,
		"category": item.Category,
	}).Info("Позиция создана")
	return item, nil
}

// UpdateItem меняет цену, себестоимость, норматив или активность позиции.
// Строки и снимки хранят копии, поэтому история не меняется
func (s *StockItemService) UpdateItem(ctx context.Context, id string, in UpdateItemInput) (*models.StockItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, newValidationError("name", "обязательно")
		}
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	money := map[string]decimal.Decimal{}
	if in.UnitCost != nil {
		money["unit_cost"] = *in.UnitCost
		updates["unit_cost"] = *in.UnitCost
	}
	if in.MenuPrice != nil {
		money["menu_price"] = *in.MenuPrice
		updates["menu_price"] = *in.MenuPrice
	}
	if in.ParLevel != nil {
		money["par_level"] = *in.ParLevel
		updates["par_level"] = *in.ParLevel
	}
	if err := validateMoney(money); err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return item, nil
	}

	if err := s.db.WithContext(ctx).Model(item).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("обновление позиции: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem возвращает позицию по ID
func (s *StockItemService) GetItem(ctx context.Context, id string) (*models.StockItem, error) {
	var item models.StockItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "позиция")
	}
	return &item, nil
}

// FindBySKU ищет позицию отеля по артикулу
func (s *StockItemService) FindBySKU(ctx context.Context, hotelID, sku string) (*models.StockItem, error) {
	var item models.StockItem
	if err := s.db.WithContext(ctx).Where("hotel_id = ? AND sku = ?", hotelID, sku).First(&item).Error; err != nil {
		return nil, notFoundOr(err, "позиция")
	}
	return &item, nil
}

// ListItems позиции отеля с фильтром по категории и активности
func (s *StockItemService) ListItems(ctx context.Context, hotelID string, category models.StockCategory, activeOnly bool) ([]models.StockItem, error) {
	query := s.db.WithContext(ctx).Where("hotel_id = ?", hotelID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var items []models.StockItem
	if err := query.Order("category, name").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("список позиций: %w", err)
	}
	return items, nil
}

// CategoryInfo категория с правилом пересчета и диапазоном неполной единицы
type CategoryInfo struct {
	CategoryRule
	PartialRange string `json:"partial_range"`
}

// ListCategories таблица категорий в порядке отображения
func (s *StockItemService) ListCategories() []CategoryInfo {
	result := make([]CategoryInfo, 0, len(categoryRules))
	for _, category := range models.AllCategories() {
		rule := categoryRules[category]
		result = append(result, CategoryInfo{
			CategoryRule: rule,
			PartialRange: PartialRange(category, rule.DefaultFactor),
		})
	}
	return result
}

func validateMoney(values map[string]decimal.Decimal) error {
	for field, value := range values {
		if value.IsNegative() {
			return newValidationError(field, "не может быть отрицательным")
		}
	}
	return nil
}
