package utils

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vzahanych/area-insight/internal/model"
)

// TravelModes lists the modes accepted by the route endpoint.
var TravelModes = []string{"car", "driving", "foot", "walking", "bike", "cycling"}

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("yearmonth", validateYearMonth)
	validate.RegisterValidation("travelmode", validateTravelMode)
	validate.RegisterValidation("postcode", validatePostcode)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})
}

func GetValidator() *validator.Validate {
	return validate
}

func validateYearMonth(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.MonthLayout, fl.Field().String())
	return err == nil
}

func validateTravelMode(fl validator.FieldLevel) bool {
	mode := fl.Field().String()
	for _, m := range TravelModes {
		if m == mode {
			return true
		}
	}
	return false
}

// validatePostcode only rejects blank input; the lookup provider is the
// authority on what a real postcode is.
func validatePostcode(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Tag     string      `json:"tag"`
	Message string      `json:"message"`
}

func FormatValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validatorErrs, ok := err.(validator.ValidationErrors); ok {
		for _, err := range validatorErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Value:   err.Value(),
				Tag:     err.Tag(),
				Message: getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "postcode":
		return fmt.Sprintf("%s must not be blank", err.Field())
	case "yearmonth":
		return fmt.Sprintf("%s must be a month in YYYY-MM format", err.Field())
	case "travelmode":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), strings.Join(TravelModes, ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s is invalid", err.Field())
	}
}

func ValidateStruct(s interface{}) []ValidationError {
	err := validate.Struct(s)
	if err != nil {
		return FormatValidationErrors(err)
	}
	return nil
}
