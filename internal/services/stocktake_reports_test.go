package services

import (
	"testing"

	"hotelstock/server/internal/models"
)

func reportLines() []models.StocktakeLine {
	return []models.StocktakeLine{
		{ID: "l-spirit", ItemID: "gin", Category: models.CategorySpirits, PackagingFactor: d("28"),
			CostPerServing: d("0.5"), MenuPrice: d("4"), OpeningQty: d("56"), Purchases: d("28"),
			SalesQty: d("50"), CountedQty: d("30"), ExpectedQty: d("84"), VarianceQty: d("-54"), IsCounted: true},
		{ID: "l-draught", ItemID: "lager", Category: models.CategoryDraught, PackagingFactor: d("88"),
			CostPerServing: d("1"), MenuPrice: d("5"), OpeningQty: d("10"), Waste: d("2"),
			SalesQty: d("6"), CountedQty: d("8"), ExpectedQty: d("8"), VarianceQty: d("0"), IsCounted: true},
		{ID: "l-wine", ItemID: "rioja", Category: models.CategoryWine, PackagingFactor: d("6"),
			CostPerServing: d("2"), MenuPrice: d("7")},
	}
}

func TestBuildSummaryTotalsAndFinancials(t *testing.T) {
	stocktake := &models.Stocktake{ID: "st-1", PeriodID: "p-1", Status: models.StocktakeDraft}
	period := &models.Period{ID: "p-1"}
	movements := []models.StockMovement{
		{ItemID: "gin", MovementType: models.MovementPurchase, Quantity: d("28"), UnitCost: d("0.5")},
		{ItemID: "lager", MovementType: models.MovementWaste, Quantity: d("2"), UnitCost: d("1")},
	}

	summary := BuildSummary(stocktake, period, reportLines(), movements)
	if summary.LineCount != 3 || summary.CountedLines != 2 {
		t.Fatalf("unexpected counts: %d lines, %d counted", summary.LineCount, summary.CountedLines)
	}
	if !summary.Totals.ExpectedQty.Equal(d("92")) || !summary.Totals.VarianceQty.Equal(d("-54")) {
		t.Fatalf("unexpected totals: %+v", summary.Totals)
	}
	if !summary.Totals.VarianceValue.Equal(d("-27")) {
		t.Fatalf("expected variance value -27, got %s", summary.Totals.VarianceValue)
	}
	if summary.Financials.Revenue.Tier != TierItemized || !summary.Financials.Revenue.Amount.Equal(d("230")) {
		t.Fatalf("unexpected revenue %+v", summary.Financials.Revenue)
	}
	if !summary.Financials.COGS.Amount.Equal(d("16")) {
		t.Fatalf("expected COGS 16, got %s", summary.Financials.COGS.Amount)
	}
}

func TestBuildCategoryBreakdownOrder(t *testing.T) {
	breakdown := BuildCategoryBreakdown(reportLines())
	if len(breakdown) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(breakdown))
	}
	want := []models.StockCategory{models.CategoryDraught, models.CategorySpirits, models.CategoryWine}
	for i, category := range want {
		if breakdown[i].Category != category {
			t.Fatalf("position %d: expected %s, got %s", i, category, breakdown[i].Category)
		}
	}
	if !breakdown[1].Revenue.Equal(d("200")) {
		t.Fatalf("expected spirits revenue 200, got %s", breakdown[1].Revenue)
	}
}

func TestCompareLedgerReportsDrift(t *testing.T) {
	lines := []models.StocktakeLine{
		{ID: "ok", ItemID: "a", Purchases: d("10"), Waste: d("1")},
		{ID: "drift", ItemID: "b", Purchases: d("7")},
	}
	movements := []models.StockMovement{
		{ID: "m1", ItemID: "a", MovementType: models.MovementPurchase, Quantity: d("10")},
		{ID: "m2", ItemID: "a", MovementType: models.MovementWaste, Quantity: d("1")},
		{ID: "m3", ItemID: "b", MovementType: models.MovementPurchase, Quantity: d("5")},
	}

	report, err := CompareLedger("st-1", lines, movements)
	if err != nil {
		t.Fatalf("CompareLedger: %v", err)
	}
	if report.Consistent || len(report.Mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %+v", report)
	}
	if report.Mismatches[0].LineID != "drift" || !report.Mismatches[0].Ledger.Purchases.Equal(d("5")) {
		t.Fatalf("unexpected mismatch %+v", report.Mismatches[0])
	}
}
