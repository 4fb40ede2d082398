package validator

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a request struct against its validation tags.
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// GetValidator exposes the shared instance for custom rule registration.
func GetValidator() *validator.Validate {
	return validate
}
