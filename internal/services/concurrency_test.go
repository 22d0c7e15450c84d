package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const workers = 8

func TestConcurrentMergeOneAppliesRecordOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rum := env.item(t, models.CategorySpirits, "28")
	_, stocktake, lines := env.populatedStocktake(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	record := &models.ExternalConsumptionRecord{
		HotelID:         env.hotel.ID,
		ItemID:          &rum.ID,
		SourceReference: "batch-" + uuid.NewString(),
		QuantityUsed:    d("7"),
		ProducedAt:      time.Date(2026, 7, 3, 21, 0, 0, 0, time.UTC),
	}
	if _, err := env.merges.Ingest(ctx, record); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	results := make([]*services.MergeResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.merges.MergeOne(ctx, record.ID, stocktake.ID, env.manager.ID)
		}(i)
	}
	wg.Wait()

	applied, skipped := 0, 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].AlreadyMerged {
			skipped++
			continue
		}
		applied++
		if !results[i].Quantity.Equal(d("7")) {
			t.Fatalf("applied merge must carry the record quantity, got %s", results[i].Quantity)
		}
	}
	if applied != 1 || skipped != workers-1 {
		t.Fatalf("expected 1 applied and %d already merged, got %d and %d", workers-1, applied, skipped)
	}

	var movements int64
	env.db.Model(&models.StockMovement{}).
		Where("item_id = ? AND movement_type = ?", rum.ID, models.MovementExternalConsumption).
		Count(&movements)
	if movements != 1 {
		t.Fatalf("expected exactly one consumption movement, got %d", movements)
	}
	line, err := env.stocktakes.GetLine(ctx, lineFor(t, lines, rum.ID).ID)
	if err != nil {
		t.Fatalf("GetLine: %v", err)
	}
	if !line.Purchases.Equal(d("7")) || !line.MergedConsumptionQty.Equal(d("7")) {
		t.Fatalf("line must be charged once: purchases=%s merged=%s", line.Purchases, line.MergedConsumptionQty)
	}
}

func TestConcurrentCountsOnOneLineStayConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	draught := env.item(t, models.CategoryDraught, "50")
	period, _, lines := env.populatedStocktake(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if _, err := env.movements.Record(ctx, services.MovementInput{
		PeriodID: period.ID, ItemID: draught.ID, StaffID: env.bartender.ID,
		Type: models.MovementPurchase, Quantity: d("100"),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	lineID := lineFor(t, lines, draught.ID).ID

	type count struct{ full, partial decimal.Decimal }
	submitted := make([]count, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		submitted[i] = count{full: decimal.NewFromInt(int64(i % 3)), partial: decimal.NewFromInt(int64(i * 5))}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.stocktakes.RecordCount(ctx, lineID, submitted[i].full, submitted[i].partial, env.bartender.ID)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	line, err := env.stocktakes.GetLine(ctx, lineID)
	if err != nil {
		t.Fatalf("GetLine: %v", err)
	}
	known := false
	for _, c := range submitted {
		if line.CountedFullUnits.Equal(c.full) && line.CountedPartialUnits.Equal(c.partial) {
			known = true
		}
	}
	if !known {
		t.Fatalf("stored count (%s, %s) was never submitted", line.CountedFullUnits, line.CountedPartialUnits)
	}
	servings, err := services.ToServings(line.Category, line.PackagingFactor, line.CountedFullUnits, line.CountedPartialUnits)
	if err != nil {
		t.Fatalf("ToServings: %v", err)
	}
	if !line.CountedQty.Equal(servings) {
		t.Fatalf("counted %s does not match stored units (%s servings)", line.CountedQty, servings)
	}
	if !line.ExpectedQty.Equal(d("100")) || !line.VarianceQty.Equal(servings.Sub(d("100"))) {
		t.Fatalf("expected=%s variance=%s for counted %s", line.ExpectedQty, line.VarianceQty, servings)
	}
}

func TestConcurrentCountsOnDifferentLinesBothCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bottled := env.item(t, models.CategoryBottled, "12")
	wine := env.item(t, models.CategoryWine, "6")
	_, _, lines := env.populatedStocktake(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	bottledLine := lineFor(t, lines, bottled.ID)
	wineLine := lineFor(t, lines, wine.ID)

	var wg sync.WaitGroup
	var bottledErr, wineErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, bottledErr = env.stocktakes.RecordCount(ctx, bottledLine.ID, d("2"), d("7"), env.bartender.ID)
	}()
	go func() {
		defer wg.Done()
		_, wineErr = env.stocktakes.RecordCount(ctx, wineLine.ID, d("3"), d("0.5"), env.bartender.ID)
	}()
	wg.Wait()
	if bottledErr != nil || wineErr != nil {
		t.Fatalf("RecordCount: bottled=%v wine=%v", bottledErr, wineErr)
	}

	reloaded, err := env.stocktakes.GetLines(ctx, bottledLine.StocktakeID, "")
	if err != nil {
		t.Fatalf("GetLines: %v", err)
	}
	if got := lineFor(t, reloaded, bottled.ID); !got.IsCounted || !got.CountedQty.Equal(d("31")) {
		t.Fatalf("bottled count lost: counted=%v qty=%s", got.IsCounted, got.CountedQty)
	}
	if got := lineFor(t, reloaded, wine.ID); !got.IsCounted || !got.CountedQty.Equal(d("21")) {
		t.Fatalf("wine count lost: counted=%v qty=%s", got.IsCounted, got.CountedQty)
	}
}
