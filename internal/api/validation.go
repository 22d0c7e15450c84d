package api

import (
	"hotelstock/server/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators регистрирует теги stock_category и movement_type для binding
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("stock_category", func(fl validator.FieldLevel) bool {
		return models.StockCategory(fl.Field().String()).IsValid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("movement_type", func(fl validator.FieldLevel) bool {
		return models.MovementType(fl.Field().String()).IsValid()
	})
}
