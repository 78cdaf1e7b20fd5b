package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid field using its json name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects the invalid fields of a struct.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

var messages = map[string]string{
	"required":    "%s is required",
	"required_if": "%s is required",
	"email":       "%s must be a valid email",
	"min":         "%s is too short",
	"max":         "%s is too long",
	"oneof":       "%s is not supported",
}

// Validator validates structs using `validate` tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s and returns a *ValidationError listing every invalid field.
func (v *Validator) Struct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		format, ok := messages[fe.Tag()]
		if !ok {
			format = "%s is invalid"
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf(format, humanize(fe.Field())),
		})
	}
	return out
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
