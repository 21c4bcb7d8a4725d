package service

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewValidator builds the shared validator with the custom tags used across
// request payloads.
func NewValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tag names, which cannot happen here.
	_ = v.RegisterValidation("alphanumunderscore", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}
