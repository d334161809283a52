package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sefazor/ourcourses-backend/pkg/payment"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// Custom validations
	v.RegisterValidation("store_driver", validateStoreDriver)
	v.RegisterValidation("payment_currency", validatePaymentCurrency)

	return &Validator{
		validate: v,
	}
}

func (v *Validator) Struct(s interface{}) error {
	return v.validate.Struct(s)
}

// Describe flattens validation errors into one message callers can read.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), describeTag(fe)))
	}
	return strings.Join(parts, ", ")
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "gt", "min":
		return "too small"
	case "store_driver":
		return "not a supported store driver"
	case "payment_currency":
		return "not a supported payment currency"
	default:
		return "invalid"
	}
}

// Supported persistence backends
func validateStoreDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "postgres", "memory":
		return true
	}
	return false
}

func validatePaymentCurrency(fl validator.FieldLevel) bool {
	return payment.SupportedCurrency(fl.Field().String())
}
