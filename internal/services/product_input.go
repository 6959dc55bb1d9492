package services

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Input keys accepted from forms and JSON bodies.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldStock       = "stock"
	FieldDescription = "description"
	FieldImageURL    = "imageUrl"
)

// Limits of the products table columns.
const (
	maxStock = math.MaxInt32
	minStock = math.MinInt32
)

var (
	minPrice = decimal.RequireFromString("0.10")
	maxPrice = decimal.RequireFromString("99999999.99")
)

// fieldOrder is the order in which field errors are reported.
var fieldOrder = []string{FieldName, FieldPrice, FieldStock, FieldDescription, FieldImageURL}

// ProductInput is the typed form of a create or edit request.
type ProductInput struct {
	Name        string          `json:"name" validate:"min=2"`
	Price       decimal.Decimal `json:"price" validate:"-"`
	Stock       int             `json:"stock" validate:"gte=0,lte=2147483647"`
	Description string          `json:"description" validate:"min=5"`
	ImageURL    string          `json:"imageUrl"`
}

// FieldError is a validation failure scoped to a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation. Nothing is
// persisted when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the given field failed validation.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Map()[field]
	return ok
}

// Map returns field errors keyed by field name, ready to redisplay on a form.
func (e *ValidationError) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

var fieldLabels = map[string]string{
	FieldName:        "Name",
	FieldPrice:       "Price",
	FieldStock:       "Stock",
	FieldDescription: "Description",
	FieldImageURL:    "Image URL",
}

// newInputValidator builds a validator that reports json field names.
// Price is checked separately in decimal.
func newInputValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func ruleMessage(e validator.FieldError) string {
	label := fieldLabels[e.Field()]
	switch {
	case e.Field() == FieldStock && e.Tag() == "gte":
		return "Stock cannot be negative"
	case e.Field() == FieldStock && e.Tag() == "lte":
		return "Stock is too large"
	case e.Tag() == "min":
		return fmt.Sprintf("%s must be at least %s characters", label, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

// inputErrors accumulates at most one message per field.
type inputErrors map[string]string

func (ie inputErrors) add(field, message string) {
	if _, exists := ie[field]; !exists {
		ie[field] = message
	}
}

func (ie inputErrors) err() *ValidationError {
	if len(ie) == 0 {
		return nil
	}
	verr := &ValidationError{}
	for _, field := range fieldOrder {
		if msg, ok := ie[field]; ok {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Message: msg})
		}
	}
	return verr
}

// coerceInput converts untyped key/value input into a ProductInput. Values
// that cannot be coerced are recorded in errs. With requireAll every key,
// including imageUrl, must be present.
func coerceInput(raw map[string]interface{}, requireAll bool, errs inputErrors) ProductInput {
	var in ProductInput

	text := func(field string) (string, bool) {
		v, present := raw[field]
		if !present || v == nil {
			if requireAll {
				errs.add(field, fieldLabels[field]+" is required")
			}
			return "", false
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			errs.add(field, fieldLabels[field]+" must be text")
			return "", false
		}
		return s, true
	}

	in.Name, _ = text(FieldName)
	in.Description, _ = text(FieldDescription)
	in.ImageURL, _ = text(FieldImageURL)

	if s, ok := text(FieldPrice); ok || !requireAll {
		price, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			errs.add(FieldPrice, "Price must be a number")
		}
		in.Price = price
	}

	if s, ok := text(FieldStock); ok || !requireAll {
		stock, problem := ParseStock(s)
		if problem != "" {
			errs.add(FieldStock, problem)
		}
		in.Stock = stock
	}

	return in
}

// ParseStock converts an untyped stock value to an int within the column
// range. problem is empty on success.
func ParseStock(v interface{}) (stock int, problem string) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0, "Stock must be a number"
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	switch {
	case err != nil:
		return 0, "Stock must be a number"
	case !d.IsInteger():
		return 0, "Stock must be a whole number"
	case d.GreaterThan(decimal.NewFromInt(maxStock)):
		return 0, "Stock is too large"
	case d.LessThan(decimal.NewFromInt(minStock)):
		return 0, "Stock cannot be negative"
	}
	return int(d.IntPart()), ""
}

// checkPrice applies the price rules on the exact decimal value.
func checkPrice(price decimal.Decimal, errs inputErrors) {
	switch {
	case price.LessThan(minPrice):
		errs.add(FieldPrice, "Price must be at least 0.10")
	case price.GreaterThan(maxPrice):
		errs.add(FieldPrice, "Price must be at most 99999999.99")
	case !price.Equal(price.Round(2)):
		errs.add(FieldPrice, "Price can have at most 2 decimal places")
	}
}

// checkRules evaluates every rule on the input and records failures for
// fields that coerced cleanly.
func checkRules(v *validator.Validate, in ProductInput, errs inputErrors) error {
	checkPrice(in.Price, errs)

	err := v.Struct(in)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate product input: %w", err)
	}
	for _, e := range validationErrors {
		errs.add(e.Field(), ruleMessage(e))
	}
	return nil
}
