// Package validator validates and sanitizes budget and transaction payloads
// before they are persisted, and provides custom validation functions for
// Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

var ymdDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// validate runs the field checks of ValidateBudget and ValidateTransaction.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	registerTags(v)
	return v
}

func registerTags(v *validator.Validate) {
	_ = v.RegisterValidation("transaction_type", validateTransactionType)
	_ = v.RegisterValidation("currency", validateCurrency)
	_ = v.RegisterValidation("role", validateRole)
	_ = v.RegisterValidation("ymd_date", validateYMDDate)
}

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerTags(v)
	}
}

func validateTransactionType(fl validator.FieldLevel) bool {
	switch models.TransactionType(fl.Field().String()) {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
		return true
	}
	return false
}

func validateCurrency(fl validator.FieldLevel) bool {
	return models.IsSupportedCurrency(fl.Field().String())
}

func validateRole(fl validator.FieldLevel) bool {
	return models.Role(fl.Field().String()).Valid()
}

func validateYMDDate(fl validator.FieldLevel) bool {
	return ymdDateRegex.MatchString(fl.Field().String())
}
