package services

import (
	"testing"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

func ptr(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestResolveRevenuePeriodManualBeatsItemized(t *testing.T) {
	in := FinancialInput{
		Lines: []models.StocktakeLine{
			{SalesQty: d("100"), MenuPrice: d("5")},
			{SalesQty: d("10"), MenuPrice: d("8")},
		},
		PeriodManualSales: ptr("1234.50"),
	}

	revenue := ResolveRevenue(in)
	if revenue.Tier != TierPeriodManual || !revenue.Amount.Equal(d("1234.5")) {
		t.Fatalf("expected period manual 1234.5, got %s (%s)", revenue.Amount, revenue.Tier)
	}

	in.PeriodManualSales = nil
	revenue = ResolveRevenue(in)
	if revenue.Tier != TierItemized || !revenue.Amount.Equal(d("580")) {
		t.Fatalf("expected itemized 580, got %s (%s)", revenue.Amount, revenue.Tier)
	}
}

func TestItemizedRevenueUsesManualSalesQty(t *testing.T) {
	lines := []models.StocktakeLine{
		{SalesQty: d("100"), ManualSalesQty: ptr("40"), MenuPrice: d("5")},
		{SalesQty: d("10"), MenuPrice: d("8")},
	}
	if got := ItemizedRevenue(lines); !got.Equal(d("280")) {
		t.Fatalf("expected 40*5 + 10*8 = 280, got %s", got)
	}

	lines[0].ManualSalesQty = nil
	if got := ItemizedRevenue(lines); !got.Equal(d("580")) {
		t.Fatalf("cleared manual qty must fall back to movement sales, got %s", got)
	}
	if !lines[0].SalesQty.Equal(d("100")) {
		t.Fatalf("movement sales must stay untouched, got %s", lines[0].SalesQty)
	}
}

func TestResolveRevenueLineManualWinsEntirely(t *testing.T) {
	in := FinancialInput{
		Lines: []models.StocktakeLine{
			{SalesQty: d("100"), MenuPrice: d("5"), ManualSalesValue: ptr("300")},
			{SalesQty: d("10"), MenuPrice: d("8")},
		},
		PeriodManualSales: ptr("999"),
	}
	revenue := ResolveRevenue(in)
	if revenue.Tier != TierLineManual || !revenue.Amount.Equal(d("300")) {
		t.Fatalf("expected line manual 300 without blending, got %s (%s)", revenue.Amount, revenue.Tier)
	}
}

func TestResolveCOGSTiers(t *testing.T) {
	movements := []models.StockMovement{
		{MovementType: models.MovementPurchase, Quantity: d("10"), UnitCost: d("2")},
		{MovementType: models.MovementExternalConsumption, Quantity: d("3"), UnitCost: d("1")},
		{MovementType: models.MovementWaste, Quantity: d("1"), UnitCost: d("2")},
		{MovementType: models.MovementSale, Quantity: d("50"), UnitCost: d("2")},
		{MovementType: models.MovementTransferIn, Quantity: d("5"), UnitCost: d("2")},
	}

	in := FinancialInput{Movements: movements}
	if cogs := ResolveCOGS(in); cogs.Tier != TierItemized || !cogs.Amount.Equal(d("25")) {
		t.Fatalf("expected itemized 25, got %s (%s)", cogs.Amount, cogs.Tier)
	}

	in.PeriodManualPurchases = ptr("40")
	if cogs := ResolveCOGS(in); cogs.Tier != TierPeriodManual || !cogs.Amount.Equal(d("40")) {
		t.Fatalf("expected period manual 40, got %s (%s)", cogs.Amount, cogs.Tier)
	}

	in.Lines = []models.StocktakeLine{{ManualPurchasesValue: ptr("12")}, {ManualWasteValue: ptr("3")}}
	if cogs := ResolveCOGS(in); cogs.Tier != TierLineManual || !cogs.Amount.Equal(d("15")) {
		t.Fatalf("expected line manual 15, got %s (%s)", cogs.Amount, cogs.Tier)
	}
}

func TestResolveFinancialsRatios(t *testing.T) {
	summary := ResolveFinancials(FinancialInput{
		PeriodManualSales:     ptr("200"),
		PeriodManualPurchases: ptr("50"),
	})
	if !summary.GrossProfit.Equal(d("150")) {
		t.Fatalf("expected profit 150, got %s", summary.GrossProfit)
	}
	if !summary.GrossProfitPercent.Equal(d("75")) || !summary.PourCostPercent.Equal(d("25")) {
		t.Fatalf("expected 75%% / 25%%, got %s / %s", summary.GrossProfitPercent, summary.PourCostPercent)
	}
}

func TestResolveFinancialsZeroRevenue(t *testing.T) {
	summary := ResolveFinancials(FinancialInput{PeriodManualPurchases: ptr("80")})
	if !summary.Revenue.Amount.IsZero() {
		t.Fatalf("expected zero revenue, got %s", summary.Revenue.Amount)
	}
	if !summary.GrossProfitPercent.IsZero() || !summary.PourCostPercent.IsZero() {
		t.Fatalf("ratios must be zero when revenue is zero, got %s / %s", summary.GrossProfitPercent, summary.PourCostPercent)
	}
}
