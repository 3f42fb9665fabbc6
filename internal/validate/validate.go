// Package validate checks request payloads against their struct tags.
package validate

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"sams/pkg/interfaces"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so clients recognise them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Error lists each failing field with the rule it broke
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	details := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		details = append(details, field+": "+tag)
	}
	sort.Strings(details)
	return interfaces.ErrValidation.Error() + ": " + strings.Join(details, ", ")
}

// Unwrap makes errors.Is(err, interfaces.ErrValidation) hold
func (e *Error) Unwrap() error {
	return interfaces.ErrValidation
}

// Struct validates s against its validate tags
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return interfaces.Validationf("invalid input")
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Drop the leading struct type name from "SessionCreation.courseId"
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		fields[ns] = fe.Tag()
	}
	return &Error{Fields: fields}
}
