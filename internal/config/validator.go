package config

import (
	"github.com/go-playground/validator/v10"
	"reflect"
	"strings"
)

// NewValidator reports field errors by their query/json/yaml name rather than
// the Go field name.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"query", "json", "yaml"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return validate
}
