package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate checks i's validate tags. Failures wrap models.ErrInvalidInput and
// list every offending field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_with":
		return field + " is required with " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " failed " + fe.Tag()
	}
}
