// Package validation checks flow documents and request payloads with
// go-playground/validator plus the referential rules a flow graph needs.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is implemented by types with rules beyond their struct tags.
type Validator interface {
	Validate() error
}

// ValidationError describes one failed rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
	// Err is the sentinel behind the failure, when there is one.
	Err error `json:"-"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects every failure found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each entry to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i := range e {
		out[i] = e[i]
	}
	return out
}

// Validate is the shared validator instance with the flow rules registered.
var Validate *validator.Validate

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	Validate.RegisterValidation("node_id", validateNodeID)
	Validate.RegisterValidation("port_ref", validatePortRef)

	// Report JSON field names so errors line up with documents on disk.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct runs the tag rules on s and then its Validate method, if any.
func ValidateStruct(s interface{}) error {
	if err := Validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// formatValidationErrors converts validator errors to our format. Field
// paths drop the root type name, e.g. "nodes[0].id".
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, ValidationError{
			Field:   field,
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "node_id":
		return "must be a non-empty node id"
	case "port_ref":
		return fmt.Sprintf("must reference a port as <%s>-<portId>", fe.Param())
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// validateNodeID accepts any id a Store would accept as a preferred id.
func validateNodeID(fl validator.FieldLevel) bool {
	return fl.Field().String() != ""
}

// validatePortRef checks that a port reference starts with the node id held
// in the sibling field named by the tag parameter.
func validatePortRef(fl validator.FieldLevel) bool {
	ref := fl.Field().String()
	owner := reflect.Indirect(fl.Parent()).FieldByName(fl.Param())
	if !owner.IsValid() || owner.Kind() != reflect.String {
		return false
	}
	prefix := owner.String() + "-"
	return len(ref) > len(prefix) && strings.HasPrefix(ref, prefix)
}

// MarshalValidationErrors renders errors as the JSON body used by the API.
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	type errorResponse struct {
		Errors []ValidationError `json:"errors"`
		Count  int               `json:"count"`
	}
	return json.Marshal(errorResponse{Errors: errs, Count: len(errs)})
}
