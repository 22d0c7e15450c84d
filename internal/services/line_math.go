package services

import (
	"fmt"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

// RecomputeLine пересчитывает производные поля строки из ее сохраненных значений.
// Продажи в ожидаемый остаток не входят
func RecomputeLine(line *models.StocktakeLine) error {
	counted, err := ToServings(line.Category, line.PackagingFactor, line.CountedFullUnits, line.CountedPartialUnits)
	if err != nil {
		return err
	}
	line.CountedQty = counted
	line.ExpectedQty = line.OpeningQty.Add(line.Purchases).Sub(line.Waste)
	line.VarianceQty = line.CountedQty.Sub(line.ExpectedQty)
	return nil
}

// applyBucket относит количество движения в корзину строки
func applyBucket(line *models.StocktakeLine, movementType models.MovementType, qty decimal.Decimal) error {
	switch movementType {
	case models.MovementPurchase, models.MovementTransferIn, models.MovementAdjustment:
		line.Purchases = line.Purchases.Add(qty)
	case models.MovementExternalConsumption:
		line.Purchases = line.Purchases.Add(qty)
		line.MergedConsumptionQty = line.MergedConsumptionQty.Add(qty)
	case models.MovementWaste, models.MovementTransferOut:
		line.Waste = line.Waste.Add(qty)
	case models.MovementSale:
		line.SalesQty = line.SalesQty.Add(qty)
	default:
		return newValidationError("movement_type", "неизвестный тип движения %q", movementType)
	}
	return nil
}

// LineBuckets суммы корзин строки, выведенные из журнала движений
type LineBuckets struct {
	Purchases            decimal.Decimal `json:"purchases"`
	Waste                decimal.Decimal `json:"waste"`
	SalesQty             decimal.Decimal `json:"sales_qty"`
	MergedConsumptionQty decimal.Decimal `json:"merged_consumption_qty"`
}

// DeriveBuckets сворачивает движения одной позиции в корзины строки
func DeriveBuckets(movements []models.StockMovement) (LineBuckets, error) {
	var scratch models.StocktakeLine
	for _, m := range movements {
		if err := applyBucket(&scratch, m.MovementType, m.Quantity); err != nil {
			return LineBuckets{}, fmt.Errorf("движение %s: %w", m.ID, err)
		}
	}
	return LineBuckets{
		Purchases:            scratch.Purchases,
		Waste:                scratch.Waste,
		SalesQty:             scratch.SalesQty,
		MergedConsumptionQty: scratch.MergedConsumptionQty,
	}, nil
}

// Matches сравнивает корзины с сохраненной строкой. Ручные продажи хранятся
// отдельно (ManualSalesQty) и не сверяются
func (b LineBuckets) Matches(line *models.StocktakeLine) bool {
	return b.Purchases.Equal(line.Purchases) &&
		b.Waste.Equal(line.Waste) &&
		b.SalesQty.Equal(line.SalesQty) &&
		b.MergedConsumptionQty.Equal(line.MergedConsumptionQty)
}
