package services

import (
	"errors"
	"testing"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestToServingsDraughtCarryForwardValues(t *testing.T) {
	servings, err := ToServings(models.CategoryDraught, d("50"), d("1"), d("20"))
	if err != nil {
		t.Fatalf("ToServings: %v", err)
	}
	if !servings.Equal(d("70")) {
		t.Fatalf("expected 70 servings, got %s", servings)
	}

	full, partial := ToDisplay(models.CategoryDraught, d("50"), servings)
	if !full.Equal(d("1")) || !partial.Equal(d("20")) {
		t.Fatalf("expected (1, 20), got (%s, %s)", full, partial)
	}
	if got := FormatDisplay(models.CategoryDraught, d("50"), servings); got != "1 keg + 20 pints" {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestUnitRoundTrip(t *testing.T) {
	cases := []struct {
		category models.StockCategory
		factor   string
		full     string
		partial  string
	}{
		{models.CategoryDraught, "88", "0", "0"},
		{models.CategoryDraught, "88", "3", "87.5"},
		{models.CategoryDraught, "50", "1", "20"},
		{models.CategoryDraught, "50", "1", "20.1234"},
		{models.CategoryBottled, "12", "0", "11"},
		{models.CategoryBottled, "12", "4", "0"},
		{models.CategoryBottled, "12", "7", "5"},
		{models.CategoryMinerals, "24", "2", "23"},
		{models.CategorySpirits, "28", "2", "0.35"},
		{models.CategorySpirits, "28", "0", "0.99"},
		{models.CategorySpirits, "28", "1", "0.01"},
		{models.CategoryWine, "6", "5", "0.5"},
		{models.CategoryWine, "6", "0", "0.33"},
		{models.CategoryWine, "7", "12", "0.07"},
	}

	for _, tc := range cases {
		servings, err := ToServings(tc.category, d(tc.factor), d(tc.full), d(tc.partial))
		if err != nil {
			t.Fatalf("%s %s+%s: %v", tc.category, tc.full, tc.partial, err)
		}
		full, partial := ToDisplay(tc.category, d(tc.factor), servings)
		if !full.Equal(d(tc.full)) || !partial.Equal(d(tc.partial)) {
			t.Fatalf("%s round trip: expected (%s, %s), got (%s, %s) via %s servings",
				tc.category, tc.full, tc.partial, full, partial, servings)
		}
	}
}

func TestToServingsRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name     string
		category models.StockCategory
		factor   string
		full     string
		partial  string
		field    string
	}{
		{"bottled twelve loose", models.CategoryBottled, "12", "1", "12", "partial_units"},
		{"bottled fractional loose", models.CategoryBottled, "12", "1", "2.5", "partial_units"},
		{"spirits whole bottle as partial", models.CategorySpirits, "28", "1", "1.00", "partial_units"},
		{"spirits three decimals", models.CategorySpirits, "28", "1", "0.355", "partial_units"},
		{"wine negative", models.CategoryWine, "6", "1", "-0.1", "partial_units"},
		{"draught full keg as pints", models.CategoryDraught, "50", "0", "50", "partial_units"},
		{"draught five decimals", models.CategoryDraught, "50", "1", "20.12345", "partial_units"},
		{"fractional full units", models.CategoryDraught, "50", "1.5", "0", "full_units"},
		{"negative full units", models.CategoryBottled, "12", "-1", "0", "full_units"},
		{"zero factor", models.CategoryDraught, "0", "1", "0", "packaging_factor"},
		{"unknown category", models.StockCategory("Cider"), "12", "1", "0", "category"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ToServings(tc.category, d(tc.factor), d(tc.full), d(tc.partial))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("expected field %s, got %s (%s)", tc.field, ve.Field, ve.Constraint)
			}
		})
	}
}

func TestValidationErrorNamesCategoryRange(t *testing.T) {
	err := ValidatePartial(models.CategoryBottled, d("12"), d("12"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Constraint != "для категории Bottled допустимо целое в [0, 11]" {
		t.Fatalf("unexpected constraint %q", ve.Constraint)
	}
}

func TestToDisplayRollsLooseBottlesIntoCases(t *testing.T) {
	full, partial := ToDisplay(models.CategoryBottled, d("12"), d("38"))
	if !full.Equal(d("3")) || !partial.Equal(d("2")) {
		t.Fatalf("expected (3, 2), got (%s, %s)", full, partial)
	}
	if got := FormatDisplay(models.CategoryBottled, d("12"), d("38")); got != "3 cases + 2 bottles" {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestToDisplayNegativeVariance(t *testing.T) {
	full, partial := ToDisplay(models.CategoryDraught, d("50"), d("-70"))
	if !full.Equal(d("-1")) || !partial.Equal(d("-20")) {
		t.Fatalf("expected (-1, -20), got (%s, %s)", full, partial)
	}
	if got := FormatDisplay(models.CategoryDraught, d("50"), d("-70")); got != "-1 keg + 20 pints" {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestFormatDisplaySpirits(t *testing.T) {
	servings, err := ToServings(models.CategorySpirits, d("28"), d("2"), d("0.35"))
	if err != nil {
		t.Fatalf("ToServings: %v", err)
	}
	if got := FormatDisplay(models.CategorySpirits, d("28"), servings); got != "2.35 bottles" {
		t.Fatalf("unexpected display %q", got)
	}
}
