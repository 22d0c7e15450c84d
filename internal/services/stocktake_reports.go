package services

import (
	"context"
	"fmt"
	"sort"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

// QuantityTotals суммы количеств (в порциях) и их стоимость
type QuantityTotals struct {
	OpeningQty    decimal.Decimal `json:"opening_qty"`
	Purchases     decimal.Decimal `json:"purchases"`
	Waste         decimal.Decimal `json:"waste"`
	SalesQty      decimal.Decimal `json:"sales_qty"`
	ExpectedQty   decimal.Decimal `json:"expected_qty"`
	CountedQty    decimal.Decimal `json:"counted_qty"`
	VarianceQty   decimal.Decimal `json:"variance_qty"`
	OpeningValue  decimal.Decimal `json:"opening_value"`
	ExpectedValue decimal.Decimal `json:"expected_value"`
	CountedValue  decimal.Decimal `json:"counted_value"`
	VarianceValue decimal.Decimal `json:"variance_value"`
}

func (t *QuantityTotals) add(line *models.StocktakeLine) {
	cost := line.CostPerServing
	t.OpeningQty = t.OpeningQty.Add(line.OpeningQty)
	t.Purchases = t.Purchases.Add(line.Purchases)
	t.Waste = t.Waste.Add(line.Waste)
	t.SalesQty = t.SalesQty.Add(line.EffectiveSalesQty())
	t.ExpectedQty = t.ExpectedQty.Add(line.ExpectedQty)
	t.CountedQty = t.CountedQty.Add(line.CountedQty)
	t.VarianceQty = t.VarianceQty.Add(line.VarianceQty)
	t.OpeningValue = t.OpeningValue.Add(line.OpeningQty.Mul(cost))
	t.ExpectedValue = t.ExpectedValue.Add(line.ExpectedQty.Mul(cost))
	t.CountedValue = t.CountedValue.Add(line.CountedQty.Mul(cost))
	t.VarianceValue = t.VarianceValue.Add(line.VarianceQty.Mul(cost))
}

// StocktakeSummary сводка инвентаризации: итоги, стоимость и финансовые показатели
type StocktakeSummary struct {
	StocktakeID  string                 `json:"stocktake_id"`
	PeriodID     string                 `json:"period_id"`
	Status       models.StocktakeStatus `json:"status"`
	LineCount    int                    `json:"line_count"`
	CountedLines int                    `json:"counted_lines"`
	Totals       QuantityTotals         `json:"totals"`
	Financials   FinancialSummary       `json:"financials"`
}

// CategoryTotals итоги одной категории
type CategoryTotals struct {
	Category  models.StockCategory `json:"category"`
	LineCount int                  `json:"line_count"`
	Totals    QuantityTotals       `json:"totals"`
	Revenue   decimal.Decimal      `json:"revenue"`
}

// LedgerMismatch строка, корзины которой не совпадают с журналом движений
type LedgerMismatch struct {
	LineID string      `json:"line_id"`
	ItemID string      `json:"item_id"`
	Ledger LineBuckets `json:"ledger"`
	Stored LineBuckets `json:"stored"`
}

// LedgerReport результат сверки строк с журналом движений
type LedgerReport struct {
	StocktakeID  string           `json:"stocktake_id"`
	LinesChecked int              `json:"lines_checked"`
	Consistent   bool             `json:"consistent"`
	Mismatches   []LedgerMismatch `json:"mismatches"`
}

// BuildSummary сводка из строк, периода и движений периода
func BuildSummary(stocktake *models.Stocktake, period *models.Period, lines []models.StocktakeLine, movements []models.StockMovement) *StocktakeSummary {
	summary := &StocktakeSummary{
		StocktakeID: stocktake.ID,
		PeriodID:    stocktake.PeriodID,
		Status:      stocktake.Status,
		LineCount:   len(lines),
	}
	for i := range lines {
		summary.Totals.add(&lines[i])
		if lines[i].IsCounted {
			summary.CountedLines++
		}
	}
	summary.Financials = ResolveFinancials(FinancialInput{
		Lines:                 lines,
		PeriodManualSales:     period.ManualSalesAmount,
		PeriodManualPurchases: period.ManualPurchasesAmount,
		Movements:             movements,
	})
	return summary
}

// BuildCategoryBreakdown итоги по категориям в порядке отображения
func BuildCategoryBreakdown(lines []models.StocktakeLine) []CategoryTotals {
	byCategory := make(map[models.StockCategory]*CategoryTotals)
	for i := range lines {
		line := &lines[i]
		totals, ok := byCategory[line.Category]
		if !ok {
			totals = &CategoryTotals{Category: line.Category}
			byCategory[line.Category] = totals
		}
		totals.LineCount++
		totals.Totals.add(line)
		totals.Revenue = totals.Revenue.Add(line.EffectiveSalesQty().Mul(line.MenuPrice))
	}

	order := make(map[models.StockCategory]int)
	for i, category := range models.AllCategories() {
		order[category] = i
	}
	result := make([]CategoryTotals, 0, len(byCategory))
	for _, totals := range byCategory {
		result = append(result, *totals)
	}
	sort.Slice(result, func(i, j int) bool {
		return order[result[i].Category] < order[result[j].Category]
	})
	return result
}

// CompareLedger выводит корзины каждой строки из движений и сравнивает с сохраненными
func CompareLedger(stocktakeID string, lines []models.StocktakeLine, movements []models.StockMovement) (*LedgerReport, error) {
	byItem := groupMovementsByItem(movements)
	report := &LedgerReport{StocktakeID: stocktakeID, LinesChecked: len(lines), Mismatches: []LedgerMismatch{}}
	for i := range lines {
		line := &lines[i]
		derived, err := DeriveBuckets(byItem[line.ItemID])
		if err != nil {
			return nil, err
		}
		if !derived.Matches(line) {
			report.Mismatches = append(report.Mismatches, LedgerMismatch{
				LineID: line.ID,
				ItemID: line.ItemID,
				Ledger: derived,
				Stored: LineBuckets{
					Purchases:            line.Purchases,
					Waste:                line.Waste,
					SalesQty:             line.SalesQty,
					MergedConsumptionQty: line.MergedConsumptionQty,
				},
			})
		}
	}
	report.Consistent = len(report.Mismatches) == 0
	return report, nil
}

// loadReportData загружает инвентаризацию, период, строки и движения периода
func (s *StocktakeService) loadReportData(ctx context.Context, stocktakeID string) (*models.Stocktake, *models.Period, []models.StocktakeLine, []models.StockMovement, error) {
	stocktake, err := s.GetStocktake(ctx, stocktakeID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	db := s.db.WithContext(ctx)

	var period models.Period
	if err := db.First(&period, "id = ?", stocktake.PeriodID).Error; err != nil {
		return nil, nil, nil, nil, notFoundOr(err, "период")
	}
	lines, err := s.GetLines(ctx, stocktakeID, "")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	var movements []models.StockMovement
	if err := db.Where("period_id = ?", period.ID).Order("created_at").Find(&movements).Error; err != nil {
		return nil, nil, nil, nil, fmt.Errorf("загрузка движений: %w", err)
	}
	return stocktake, &period, lines, movements, nil
}

// Summary сводка инвентаризации (кэшируется в Redis до следующего изменения)
func (s *StocktakeService) Summary(ctx context.Context, stocktakeID string) (*StocktakeSummary, error) {
	if cached, ok := s.cache.get(ctx, stocktakeID); ok {
		return cached, nil
	}
	stocktake, period, lines, movements, err := s.loadReportData(ctx, stocktakeID)
	if err != nil {
		return nil, err
	}
	summary := BuildSummary(stocktake, period, lines, movements)
	s.cache.put(ctx, summary)
	return summary, nil
}

// CategoryBreakdown итоги инвентаризации по категориям
func (s *StocktakeService) CategoryBreakdown(ctx context.Context, stocktakeID string) ([]CategoryTotals, error) {
	if _, err := s.GetStocktake(ctx, stocktakeID); err != nil {
		return nil, err
	}
	lines, err := s.GetLines(ctx, stocktakeID, "")
	if err != nil {
		return nil, err
	}
	return BuildCategoryBreakdown(lines), nil
}

// VerifyLedger сверяет корзины строк с журналом движений периода
func (s *StocktakeService) VerifyLedger(ctx context.Context, stocktakeID string) (*LedgerReport, error) {
	stocktake, _, lines, movements, err := s.loadReportData(ctx, stocktakeID)
	if err != nil {
		return nil, err
	}
	return CompareLedger(stocktake.ID, lines, movements)
}
