package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return invalid(err.Error())
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		if e.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: %s=%s", strings.ToLower(e.Field()), e.Tag(), e.Param()))
			continue
		}
		messages = append(messages, fmt.Sprintf("%s: %s", strings.ToLower(e.Field()), e.Tag()))
	}
	return invalid(strings.Join(messages, "; "))
}
