package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
)

// RequestValidator plugs go-playground/validator into echo so handlers
// can call c.Validate on request bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator builds a RequestValidator that reports fields by their
// JSON names.
func NewValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.  Failures come back as VALIDATION
// errors naming every offending field.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.KindValidation, apperr.CodeInvalidRequest, "invalid request")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" "+describe(fe))
	}
	return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "%s", strings.Join(fields, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "gtfield":
		return "must be after " + fe.Param()
	}
	return "is invalid"
}
