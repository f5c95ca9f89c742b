// Package validation checks decoded request payloads against the struct tags
// declared on the models shapes and reports failures field by field.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayush/task-manager/internal/models"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned for any payload that fails decoding or validation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newError(field, msg string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Message: msg}}}
}

// Validator wraps a configured validator.Validate. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// A zero Date is reported as missing by "required".
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(models.Date)
		if !ok || d.IsZero() {
			return nil
		}
		return d.String()
	}, models.Date{})
	return &Validator{v: v}
}

// Struct validates s and returns an *Error listing every failed field.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

// Decode reads one JSON document from body into dst and validates it.
func (v *Validator) Decode(body io.Reader, dst any) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return decodeError(err)
	}
	return v.Struct(dst)
}

func decodeError(err error) *Error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return newError("body", "request body is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return newError("body", "malformed JSON")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		if typeErr.Type == reflect.TypeOf(models.Date{}) {
			return newError(field, "must be a valid date in YYYY-MM-DD format")
		}
		return newError(field, "must be of type "+jsonType(typeErr.Type))
	default:
		return newError("body", err.Error())
	}
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	}
	return t.String()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "email":
		return "value is not a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// ParseID parses an integer path parameter. Any integer is accepted; ids
// that match no row are the caller's 404, not a validation failure.
func ParseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newError(name, "must be an integer")
	}
	return id, nil
}

// ParseQueryInt parses an optional non-negative integer query parameter,
// returning fallback when raw is empty.
func ParseQueryInt(name, raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newError(name, "must be an integer")
	}
	if n < 0 {
		return 0, newError(name, "must be greater than or equal to 0")
	}
	return n, nil
}
