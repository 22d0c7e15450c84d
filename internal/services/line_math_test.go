package services

import (
	"testing"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

func draughtLine() models.StocktakeLine {
	return models.StocktakeLine{
		ID:                  "line-1",
		ItemID:              "item-1",
		Category:            models.CategoryDraught,
		PackagingFactor:     d("50"),
		OpeningQty:          d("70"),
		Purchases:           d("100"),
		Waste:               d("5"),
		CountedFullUnits:    d("3"),
		CountedPartialUnits: d("10"),
	}
}

func TestRecomputeLineExcludesSales(t *testing.T) {
	line := draughtLine()
	if err := RecomputeLine(&line); err != nil {
		t.Fatalf("RecomputeLine: %v", err)
	}
	if !line.CountedQty.Equal(d("160")) || !line.ExpectedQty.Equal(d("165")) || !line.VarianceQty.Equal(d("-5")) {
		t.Fatalf("unexpected derived fields: counted=%s expected=%s variance=%s", line.CountedQty, line.ExpectedQty, line.VarianceQty)
	}

	for _, sales := range []string{"0", "40", "1000"} {
		line.SalesQty = d(sales)
		if err := RecomputeLine(&line); err != nil {
			t.Fatalf("RecomputeLine: %v", err)
		}
		if !line.ExpectedQty.Equal(d("165")) || !line.VarianceQty.Equal(d("-5")) {
			t.Fatalf("sales %s changed expected/variance: %s / %s", sales, line.ExpectedQty, line.VarianceQty)
		}
	}
}

func TestApplyBucketMapping(t *testing.T) {
	cases := []struct {
		movementType models.MovementType
		qty          string
		purchases    string
		waste        string
		sales        string
		merged       string
	}{
		{models.MovementPurchase, "10", "10", "0", "0", "0"},
		{models.MovementTransferIn, "4", "4", "0", "0", "0"},
		{models.MovementAdjustment, "-3", "-3", "0", "0", "0"},
		{models.MovementExternalConsumption, "2.5", "2.5", "0", "0", "2.5"},
		{models.MovementWaste, "6", "0", "6", "0", "0"},
		{models.MovementTransferOut, "1", "0", "1", "0", "0"},
		{models.MovementSale, "30", "0", "0", "30", "0"},
	}

	for _, tc := range cases {
		var line models.StocktakeLine
		if err := applyBucket(&line, tc.movementType, d(tc.qty)); err != nil {
			t.Fatalf("%s: %v", tc.movementType, err)
		}
		if !line.Purchases.Equal(d(tc.purchases)) || !line.Waste.Equal(d(tc.waste)) ||
			!line.SalesQty.Equal(d(tc.sales)) || !line.MergedConsumptionQty.Equal(d(tc.merged)) {
			t.Fatalf("%s: unexpected buckets purchases=%s waste=%s sales=%s merged=%s",
				tc.movementType, line.Purchases, line.Waste, line.SalesQty, line.MergedConsumptionQty)
		}
	}

	var line models.StocktakeLine
	if err := applyBucket(&line, models.MovementType("GIFT"), d("1")); !IsValidationError(err) {
		t.Fatalf("expected ValidationError for unknown type, got %v", err)
	}
}

func TestDeriveBucketsReproducesLine(t *testing.T) {
	movements := []models.StockMovement{
		{ID: "m1", MovementType: models.MovementPurchase, Quantity: d("88")},
		{ID: "m2", MovementType: models.MovementWaste, Quantity: d("4")},
		{ID: "m3", MovementType: models.MovementExternalConsumption, Quantity: d("1.5")},
		{ID: "m4", MovementType: models.MovementPurchase, Quantity: d("-8")},
		{ID: "m5", MovementType: models.MovementSale, Quantity: d("60")},
	}

	var line models.StocktakeLine
	for _, m := range movements {
		if err := applyBucket(&line, m.MovementType, m.Quantity); err != nil {
			t.Fatalf("applyBucket: %v", err)
		}
	}

	buckets, err := DeriveBuckets(movements)
	if err != nil {
		t.Fatalf("DeriveBuckets: %v", err)
	}
	if !buckets.Purchases.Equal(d("81.5")) || !buckets.Waste.Equal(d("4")) {
		t.Fatalf("unexpected buckets: %+v", buckets)
	}
	if !buckets.Matches(&line) {
		t.Fatalf("derived buckets must match incrementally applied line")
	}

	manual := decimal.NewFromInt(999)
	line.ManualSalesQty = &manual
	if !buckets.Matches(&line) {
		t.Fatalf("manually set sales must not break ledger match")
	}
	line.SalesQty = line.SalesQty.Add(decimal.NewFromInt(1))
	if buckets.Matches(&line) {
		t.Fatalf("sales drift must be detected")
	}
	line.SalesQty = buckets.SalesQty
	line.Waste = line.Waste.Add(decimal.NewFromInt(1))
	if buckets.Matches(&line) {
		t.Fatalf("waste drift must be detected")
	}
}
