package services

import (
	"fmt"

	"hotelstock/server/internal/models"

	"github.com/shopspring/decimal"
)

// PartialKind способ учета неполной единицы
type PartialKind string

const (
	PartialServings   PartialKind = "servings"    // Пинты: дробные, [0, коэффициент)
	PartialLooseUnits PartialKind = "loose_units" // Штучные бутылки: целые, [0, коэффициент-1]
	PartialFraction   PartialKind = "fraction"    // Доля бутылки: [0.00, 0.99]
)

var maxBottleFraction = decimal.RequireFromString("0.99")

// CategoryRule правило пересчета единиц для категории
type CategoryRule struct {
	Category      models.StockCategory `json:"category"`
	DefaultFactor decimal.Decimal      `json:"default_factor"`
	Partial       PartialKind          `json:"partial_kind"`
	FullLabel     string               `json:"full_label"`
	FullPlural    string               `json:"full_plural"`
	PartialLabel  string               `json:"partial_label"`
	PartialPlural string               `json:"partial_plural"`
}

var categoryRules = map[models.StockCategory]CategoryRule{
	models.CategoryDraught: {
		Category: models.CategoryDraught, DefaultFactor: decimal.NewFromInt(88), Partial: PartialServings,
		FullLabel: "keg", FullPlural: "kegs", PartialLabel: "pint", PartialPlural: "pints",
	},
	models.CategoryBottled: {
		Category: models.CategoryBottled, DefaultFactor: decimal.NewFromInt(12), Partial: PartialLooseUnits,
		FullLabel: "case", FullPlural: "cases", PartialLabel: "bottle", PartialPlural: "bottles",
	},
	models.CategorySpirits: {
		Category: models.CategorySpirits, DefaultFactor: decimal.NewFromInt(28), Partial: PartialFraction,
		FullLabel: "bottle", FullPlural: "bottles", PartialLabel: "bottle", PartialPlural: "bottles",
	},
	models.CategoryWine: {
		Category: models.CategoryWine, DefaultFactor: decimal.NewFromInt(6), Partial: PartialFraction,
		FullLabel: "bottle", FullPlural: "bottles", PartialLabel: "bottle", PartialPlural: "bottles",
	},
	models.CategoryMinerals: {
		Category: models.CategoryMinerals, DefaultFactor: decimal.NewFromInt(24), Partial: PartialLooseUnits,
		FullLabel: "case", FullPlural: "cases", PartialLabel: "bottle", PartialPlural: "bottles",
	},
}

// RuleFor возвращает правило категории
func RuleFor(category models.StockCategory) (CategoryRule, error) {
	rule, ok := categoryRules[category]
	if !ok {
		return CategoryRule{}, newValidationError("category", "неизвестная категория %q", category)
	}
	return rule, nil
}

// servingsScale знаков после запятой у порций в хранилище
const servingsScale = 4

// PartialRange текстовое описание допустимого диапазона неполной единицы
func PartialRange(category models.StockCategory, factor decimal.Decimal) string {
	rule, ok := categoryRules[category]
	if !ok {
		return ""
	}
	switch rule.Partial {
	case PartialLooseUnits:
		return fmt.Sprintf("целое в [0, %s]", factor.Sub(decimal.NewFromInt(1)).String())
	case PartialFraction:
		return "[0.00, 0.99] с шагом 0.01"
	default:
		return fmt.Sprintf("[0, %s) с точностью до %d знаков", factor.String(), servingsScale)
	}
}

// ValidateUnits проверяет ввод персонала: полные единицы целые и неотрицательные,
// неполная единица в диапазоне категории
func ValidateUnits(category models.StockCategory, factor, full, partial decimal.Decimal) error {
	if _, err := RuleFor(category); err != nil {
		return err
	}
	if !factor.IsPositive() {
		return newValidationError("packaging_factor", "должен быть больше 0")
	}
	if full.IsNegative() || !full.IsInteger() {
		return newValidationError("full_units", "целое неотрицательное число")
	}
	return ValidatePartial(category, factor, partial)
}

// ValidatePartial проверяет неполную единицу по правилу категории
func ValidatePartial(category models.StockCategory, factor, partial decimal.Decimal) error {
	rule, err := RuleFor(category)
	if err != nil {
		return err
	}
	inRange := !partial.IsNegative()
	switch rule.Partial {
	case PartialServings:
		// Колонка decimal(20,4): больше знаков Postgres молча округлит
		inRange = inRange && partial.LessThan(factor) && partial.Round(servingsScale).Equal(partial)
	case PartialLooseUnits:
		inRange = inRange && partial.IsInteger() && partial.LessThanOrEqual(factor.Sub(decimal.NewFromInt(1)))
	case PartialFraction:
		inRange = inRange && partial.LessThanOrEqual(maxBottleFraction) && partial.Round(2).Equal(partial)
	}
	if !inRange {
		return newValidationError("partial_units", "для категории %s допустимо %s", category, PartialRange(category, factor))
	}
	return nil
}

// ToServings переводит (полные, неполные) единицы в порции
func ToServings(category models.StockCategory, factor, full, partial decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateUnits(category, factor, full, partial); err != nil {
		return decimal.Zero, err
	}
	rule := categoryRules[category]
	servings := full.Mul(factor)
	if rule.Partial == PartialFraction {
		return servings.Add(partial.Mul(factor)), nil
	}
	return servings.Add(partial), nil
}

// ToDisplay раскладывает порции на (полные, неполные) единицы.
// Лишние штучные бутылки переходят в ящик. Для отрицательных порций знак у обеих частей
func ToDisplay(category models.StockCategory, factor, servings decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	rule, ok := categoryRules[category]
	if !ok || !factor.IsPositive() {
		return decimal.Zero, servings
	}

	abs := servings.Abs()
	full := abs.Div(factor).Floor()
	remainder := abs.Sub(full.Mul(factor))

	var partial decimal.Decimal
	if rule.Partial == PartialFraction {
		partial = remainder.DivRound(factor, 2)
		if partial.GreaterThan(maxBottleFraction) {
			full = full.Add(decimal.NewFromInt(1))
			partial = decimal.Zero
		}
	} else {
		partial = remainder
	}

	if servings.IsNegative() {
		return full.Neg(), partial.Neg()
	}
	return full, partial
}

// FormatDisplay форматирует порции для отображения: "1 keg + 20 pints", "2.35 bottles"
func FormatDisplay(category models.StockCategory, factor, servings decimal.Decimal) string {
	rule, ok := categoryRules[category]
	if !ok {
		return servings.String()
	}
	full, partial := ToDisplay(category, factor, servings)
	sign := ""
	if servings.IsNegative() {
		sign = "-"
		full, partial = full.Abs(), partial.Abs()
	}

	if rule.Partial == PartialFraction {
		bottles := full.Add(partial)
		return sign + bottles.StringFixed(2) + " " + label(bottles, rule.FullLabel, rule.FullPlural)
	}
	return fmt.Sprintf("%s%s %s + %s %s", sign,
		full.String(), label(full, rule.FullLabel, rule.FullPlural),
		partial.String(), label(partial, rule.PartialLabel, rule.PartialPlural))
}

func label(n decimal.Decimal, singular, plural string) string {
	if n.Equal(decimal.NewFromInt(1)) {
		return singular
	}
	return plural
}
