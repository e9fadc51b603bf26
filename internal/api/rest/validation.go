package rest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mmynk/equalsplit/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator. Field names in errors are the
// JSON names.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateStruct checks v's validate tags and reports the first failure as
// apperr.ErrInvalidRequest.
func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.Newf(apperr.ErrInvalidRequest, "%s", formatFieldError(fieldErrs[0]))
	}
	return apperr.Newf(apperr.ErrInvalidRequest, "%v", err)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "max":
		return fmt.Sprintf("'%s' must be at most %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("'%s' must be a valid email", field)
	default:
		return fmt.Sprintf("'%s' failed the '%s' check", field, fe.Tag())
	}
}
