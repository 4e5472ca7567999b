package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var genders = map[string]struct{}{
	"male":   {},
	"female": {},
	"other":  {},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(useJSONTagNames)
	_ = v.RegisterValidation("gender", validateGender)
	return v
}

// Struct validates struct by its 'validate' tags
func Struct(s any) error {
	return validate.Struct(s)
}

// Fields converts validation errors into user-friendly messages keyed by json field name
// Returns nil if err is not a validation error
func Fields(err error) map[string]string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}

	fields := make(map[string]string, len(errs))
	for _, fieldError := range errs {
		fields[fieldError.Field()] = message(fieldError)
	}
	return fields
}

// Gender reports whether value is one of known genders, case insensitive
func Gender(value string) bool {
	_, ok := genders[strings.ToLower(value)]
	return ok
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	case "email":
		return "Invalid email address"
	case "eqfield":
		return "Values do not match"
	case "gender":
		return "Gender must be male, female or other"
	default:
		return "Invalid value"
	}
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateGender(fl validator.FieldLevel) bool {
	return Gender(fl.Field().String())
}
