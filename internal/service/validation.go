package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
)

// Validation limits. Text length is counted in characters (runes), not bytes.
const (
	MinTextLength  = 10
	MaxTextLength  = 500
	MaxEmailLength = 255
)

// newValidator returns a validator that reports fields by their JSON name,
// so error messages use the same names the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("textlen", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(fl.Field().String())
		return n >= MinTextLength && n <= MaxTextLength
	})
	_ = v.RegisterValidation("xid", func(fl validator.FieldLevel) bool {
		_, err := xid.FromString(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError converts the first failure reported by the validator into
// an *apperror.AppError. Any other error is returned unchanged.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", field))
	case "email":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be a valid email address", field))
	case "textlen":
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be between %d and %d characters", field, MinTextLength, MaxTextLength))
	case "max":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "gte":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "lte":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	case "oneof":
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
	case "xid":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is not a valid id", field))
	default:
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is invalid", field))
	}
}

// normalizeEmail trims and lower-cases an address so one person maps to one
// author regardless of how they type it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
