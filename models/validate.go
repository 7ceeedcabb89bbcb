package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("incident", func(fl validator.FieldLevel) bool {
		return IncidentType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the validate tags of v and turns the first failure into a
// readable message
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return errors.New(describe(verrs[0]))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "incident":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), joinIncidentTypes())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func joinIncidentTypes() string {
	names := make([]string, len(IncidentTypes))
	for i, t := range IncidentTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
