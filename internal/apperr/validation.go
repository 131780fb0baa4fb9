package apperr

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FromValidator converts validator.ValidationErrors into a ValidationError
// naming the first offending field. Other errors pass through as validation
// failures with their own text.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return Validation("%s", err.Error())
	}
	fields := make([]string, 0, len(vErrs))
	for _, vErr := range vErrs {
		fields = append(fields, vErr.Namespace())
	}
	vErr := vErrs[0]
	var e *Error
	switch vErr.Tag() {
	case "required":
		e = Validation("%s value missing", vErr.Field())
	case "min", "gte":
		e = Validation("%s value is less than %s", vErr.Field(), vErr.Param())
	case "max", "lte":
		e = Validation("%s value is greater than %s", vErr.Field(), vErr.Param())
	case "oneof":
		e = Validation("%s must be one of [%s]", vErr.Field(), vErr.Param())
	default:
		e = Validation("%s is invalid (%s)", vErr.Field(), vErr.Tag())
	}
	return e.WithDetail("fields", strings.Join(fields, ","))
}
