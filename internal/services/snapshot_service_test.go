package services

import (
	"testing"

	"hotelstock/server/internal/models"
)

func TestResolveOpeningUsesOnlyClosedPreviousSnapshots(t *testing.T) {
	prev := &models.Period{ID: "period-a", IsClosed: true}
	snapshots := []models.StockSnapshot{
		{PeriodID: "period-a", ItemID: "draught-x", TotalServings: d("70")},
		{PeriodID: "period-a", ItemID: "not-requested", TotalServings: d("12")},
		{PeriodID: "period-other", ItemID: "spirits-y", TotalServings: d("500")},
	}

	opening := ResolveOpening(prev, snapshots, []string{"draught-x", "spirits-y"})
	if !opening["draught-x"].Equal(d("70")) {
		t.Fatalf("expected draught carry-forward 70, got %s", opening["draught-x"])
	}
	if !opening["spirits-y"].IsZero() {
		t.Fatalf("item without prior snapshot must open at zero, got %s", opening["spirits-y"])
	}
	if _, ok := opening["not-requested"]; ok {
		t.Fatalf("unexpected balance for item outside request")
	}
}

func TestResolveOpeningZeroWithoutClosedPrevious(t *testing.T) {
	snapshots := []models.StockSnapshot{{PeriodID: "period-a", ItemID: "x", TotalServings: d("70")}}

	for name, prev := range map[string]*models.Period{
		"no previous":   nil,
		"previous open": {ID: "period-a", IsClosed: false},
	} {
		opening := ResolveOpening(prev, snapshots, []string{"x"})
		if !opening["x"].IsZero() {
			t.Fatalf("%s: expected zero opening, got %s", name, opening["x"])
		}
	}
}

func TestBuildSnapshotsFromCountedValues(t *testing.T) {
	lines := []models.StocktakeLine{
		{ID: "l1", ItemID: "x", Category: models.CategoryDraught, PackagingFactor: d("50"),
			CostPerServing: d("1.2"), CountedFullUnits: d("1"), CountedPartialUnits: d("20")},
		{ID: "l2", ItemID: "y", Category: models.CategorySpirits, PackagingFactor: d("28"),
			CountedFullUnits: d("2"), CountedPartialUnits: d("0.5")},
	}

	snapshots, err := BuildSnapshots("period-a", lines)
	if err != nil {
		t.Fatalf("BuildSnapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].PeriodID != "period-a" || !snapshots[0].TotalServings.Equal(d("70")) {
		t.Fatalf("unexpected draught snapshot: %+v", snapshots[0])
	}
	if !snapshots[0].CostPerServing.Equal(d("1.2")) {
		t.Fatalf("snapshot must copy cost per serving")
	}
	if !snapshots[1].TotalServings.Equal(d("70")) {
		t.Fatalf("expected spirits 2.5 bottles = 70 servings, got %s", snapshots[1].TotalServings)
	}
}

func TestBuildSnapshotsRejectsInvalidCount(t *testing.T) {
	lines := []models.StocktakeLine{
		{ID: "bad", ItemID: "z", Category: models.CategoryBottled, PackagingFactor: d("12"),
			CountedFullUnits: d("1"), CountedPartialUnits: d("14")},
	}
	if _, err := BuildSnapshots("period-a", lines); !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
