package services

import (
	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

// ValueTier источник, из которого взята сумма
type ValueTier string

const (
	TierLineManual   ValueTier = "line_manual"
	TierPeriodManual ValueTier = "period_manual"
	TierItemized     ValueTier = "itemized"
)

var hundred = decimal.NewFromInt(100)

// FinancialInput данные для расчета выручки и себестоимости инвентаризации
type FinancialInput struct {
	Lines                 []models.StocktakeLine
	PeriodManualSales     *decimal.Decimal
	PeriodManualPurchases *decimal.Decimal
	Movements             []models.StockMovement
}

// ResolvedAmount сумма и уровень, который ее дал
type ResolvedAmount struct {
	Amount decimal.Decimal `json:"amount"`
	Tier   ValueTier       `json:"tier"`
}

// FinancialSummary выручка, себестоимость и производные показатели
type FinancialSummary struct {
	Revenue            ResolvedAmount  `json:"revenue"`
	COGS               ResolvedAmount  `json:"cogs"`
	GrossProfit        decimal.Decimal `json:"gross_profit"`
	GrossProfitPercent decimal.Decimal `json:"gross_profit_percent"`
	PourCostPercent    decimal.Decimal `json:"pour_cost_percent"`
}

// ResolveRevenue ручные значения строк, затем ручной итог периода, затем продажи по меню.
// Уровни не смешиваются: выигрывает первый, где есть хотя бы одно значение
func ResolveRevenue(in FinancialInput) ResolvedAmount {
	lineTotal, found := decimal.Zero, false
	for _, line := range in.Lines {
		if line.ManualSalesValue != nil {
			lineTotal = lineTotal.Add(*line.ManualSalesValue)
			found = true
		}
	}
	if found {
		return ResolvedAmount{Amount: lineTotal, Tier: TierLineManual}
	}
	if in.PeriodManualSales != nil {
		return ResolvedAmount{Amount: *in.PeriodManualSales, Tier: TierPeriodManual}
	}
	return ResolvedAmount{Amount: ItemizedRevenue(in.Lines), Tier: TierItemized}
}

// ResolveCOGS тот же порядок уровней, что и для выручки
func ResolveCOGS(in FinancialInput) ResolvedAmount {
	lineTotal, found := decimal.Zero, false
	for _, line := range in.Lines {
		if !line.HasManualCost() {
			continue
		}
		found = true
		if line.ManualPurchasesValue != nil {
			lineTotal = lineTotal.Add(*line.ManualPurchasesValue)
		}
		if line.ManualWasteValue != nil {
			lineTotal = lineTotal.Add(*line.ManualWasteValue)
		}
	}
	if found {
		return ResolvedAmount{Amount: lineTotal, Tier: TierLineManual}
	}
	if in.PeriodManualPurchases != nil {
		return ResolvedAmount{Amount: *in.PeriodManualPurchases, Tier: TierPeriodManual}
	}
	return ResolvedAmount{Amount: ItemizedCost(in.Movements), Tier: TierItemized}
}

// ResolveFinancials считает выручку, себестоимость, валовую прибыль и pour cost
func ResolveFinancials(in FinancialInput) FinancialSummary {
	revenue := ResolveRevenue(in)
	cogs := ResolveCOGS(in)
	profit := revenue.Amount.Sub(cogs.Amount)

	summary := FinancialSummary{
		Revenue:            revenue,
		COGS:               cogs,
		GrossProfit:        profit,
		GrossProfitPercent: decimal.Zero,
		PourCostPercent:    decimal.Zero,
	}
	if !revenue.Amount.IsZero() {
		summary.GrossProfitPercent = profit.Div(revenue.Amount).Mul(hundred).Round(2)
		summary.PourCostPercent = cogs.Amount.Div(revenue.Amount).Mul(hundred).Round(2)
	}
	return summary
}

// ItemizedRevenue сумма продаж по цене меню
func ItemizedRevenue(lines []models.StocktakeLine) decimal.Decimal {
	total := decimal.Zero
	for i := range lines {
		total = total.Add(lines[i].EffectiveSalesQty().Mul(lines[i].MenuPrice))
	}
	return total
}

// ItemizedCost стоимость закупок, слитого расхода и списаний из журнала
func ItemizedCost(movements []models.StockMovement) decimal.Decimal {
	total := decimal.Zero
	for i := range movements {
		switch movements[i].MovementType {
		case models.MovementPurchase, models.MovementExternalConsumption, models.MovementWaste:
			total = total.Add(movements[i].Value())
		}
	}
	return total
}
