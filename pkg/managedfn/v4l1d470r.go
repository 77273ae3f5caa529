package managedfn

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator aware of the custom rules used by the configuration.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("scheme", SchemeValidate)

	return validate
}

// SchemeValidate ensures the given field, which is a string, is an URL with the specified
// scheme.
func SchemeValidate(fl validator.FieldLevel) bool {
	return schemeValidate(fl.Field().String(), fl.Param())
}

func schemeValidate(value, param string) bool {
	uri, err := url.Parse(value)
	if err != nil {
		return false
	}

	return uri.Scheme == param
}
