package validator

import (
	"math"
	"strings"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

// Result is the outcome of a payload validation. Errors maps a field name to
// a message meant for end users; IsValid is true iff Errors is empty.
type Result struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors"`
}

func newResult(errs map[string]string) Result {
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

func ok(value any, tag string) bool {
	return validate.Var(value, tag) == nil
}

func isNumber(f *float64) bool {
	return f != nil && !math.IsNaN(*f) && !math.IsInf(*f, 0)
}

// ValidateBudget checks name, month, year and description.
func ValidateBudget(in models.BudgetInput) Result {
	errs := make(map[string]string)

	switch {
	case !ok(strings.TrimSpace(in.Name), "required"):
		errs["name"] = "El nombre es obligatorio"
	case !ok(in.Name, "max=100"):
		errs["name"] = "El nombre es demasiado largo (máximo 100 caracteres)"
	}

	switch {
	case in.Month == nil:
		errs["month"] = "El mes es obligatorio"
	case !ok(*in.Month, "min=0,max=11"):
		errs["month"] = "Mes inválido"
	}

	switch {
	case in.Year == nil:
		errs["year"] = "El año es obligatorio"
	case !ok(*in.Year, "min=2000,max=2100"):
		errs["year"] = "Año inválido"
	}

	if !ok(in.Description, "max=500") {
		errs["description"] = "La descripción es demasiado larga (máximo 500 caracteres)"
	}

	return newResult(errs)
}

// only keeps the errors of the listed fields.
func (r Result) only(fields ...string) Result {
	errs := make(map[string]string)
	for _, f := range fields {
		if msg, found := r.Errors[f]; found {
			errs[f] = msg
		}
	}
	return newResult(errs)
}

// ValidateBudgetPatch checks the fields present in a partial update against
// the same rules as ValidateBudget. Absent fields are not checked, so values
// already stored (and escaped) never fail an unrelated update.
func ValidateBudgetPatch(p models.BudgetPatch) Result {
	in := models.BudgetInput{Month: p.Month, Year: p.Year}
	var present []string
	if p.Name != nil {
		in.Name = *p.Name
		present = append(present, "name")
	}
	if p.Description != nil {
		in.Description = *p.Description
		present = append(present, "description")
	}
	if p.Month != nil {
		present = append(present, "month")
	}
	if p.Year != nil {
		present = append(present, "year")
	}
	return ValidateBudget(in).only(present...)
}

// ValidateTransactionUpdate validates merged, the stored transaction with p
// applied. Only the patched fields are checked, plus the resulting amount
// (which may have been derived from food items) and the items whenever the
// items or the category change.
func ValidateTransactionUpdate(merged models.TransactionInput, p models.TransactionPatch) Result {
	present := []string{"amount"}
	if p.Type != nil {
		present = append(present, "type")
	}
	if p.Name != nil {
		present = append(present, "name")
	}
	if p.Category != nil {
		present = append(present, "category")
	}
	if p.Date != nil {
		present = append(present, "date")
	}
	if p.FoodItems != nil || p.Category != nil {
		present = append(present, "foodItems")
	}
	return ValidateTransaction(merged).only(present...)
}

// ValidateTransaction checks type, name, amount, category, date and, for
// grocery transactions, every food item.
func ValidateTransaction(in models.TransactionInput) Result {
	errs := make(map[string]string)

	if !ok(in.Type, "required,transaction_type") {
		errs["type"] = "Tipo de transacción inválido"
	}

	switch {
	case !ok(strings.TrimSpace(in.Name), "required"):
		errs["name"] = "El nombre es obligatorio"
	case !ok(in.Name, "max=100"):
		errs["name"] = "El nombre es demasiado largo (máximo 100 caracteres)"
	}

	switch {
	case !isNumber(in.Amount):
		errs["amount"] = "El monto es obligatorio y debe ser un número"
	case !ok(*in.Amount, "gte=0"):
		errs["amount"] = "El monto no puede ser negativo"
	case !ok(*in.Amount, "lte=1000000000"):
		errs["amount"] = "El monto es demasiado grande"
	}

	if !ok(strings.TrimSpace(in.Category), "required") {
		errs["category"] = "La categoría es obligatoria"
	}

	switch {
	case in.Date == "":
		errs["date"] = "La fecha es obligatoria"
	case !ok(in.Date, "ymd_date"):
		errs["date"] = "Formato de fecha inválido (YYYY-MM-DD)"
	}

	if in.IsGrocery() {
		for _, item := range in.FoodItems {
			if !validFoodItem(item) {
				errs["foodItems"] = "Algunos items tienen datos inválidos"
				break
			}
		}
	}

	return newResult(errs)
}

// validFoodItem requires a name and non-zero numeric price and quantity.
func validFoodItem(item models.FoodItemInput) bool {
	if !ok(strings.TrimSpace(item.Name), "required") {
		return false
	}
	if !isNumber(item.Price) || *item.Price == 0 {
		return false
	}
	return isNumber(item.Quantity) && *item.Quantity != 0
}
