package api

import (
	"testing"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

func TestRegisteredValidators(t *testing.T) {
	if err := RegisterValidators(); err != nil {
		t.Fatalf("register validators: %v", err)
	}

	item := services.CreateItemInput{SKU: "GIN-01", Name: "Gin", Category: models.CategorySpirits}
	if err := binding.Validator.ValidateStruct(&item); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}
	item.Category = "Cider"
	if err := binding.Validator.ValidateStruct(&item); err == nil {
		t.Fatalf("unknown category must be rejected")
	}

	movement := services.MovementInput{
		PeriodID: "p1",
		ItemID:   "i1",
		Type:     models.MovementWaste,
		Quantity: decimal.NewFromInt(2),
	}
	if err := binding.Validator.ValidateStruct(&movement); err != nil {
		t.Fatalf("valid movement rejected: %v", err)
	}
	movement.Type = "GIFT"
	if err := binding.Validator.ValidateStruct(&movement); err == nil {
		t.Fatalf("unknown movement type must be rejected")
	}
}
