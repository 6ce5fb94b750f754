package validator

import (
	"consultation-booking/internal/domain/entity"

	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("slotdate", validateSlotDate)
	_ = v.RegisterValidation("slottime", validateSlotTime)
	return &CustomValidator{
		validator: v,
	}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errors[field] = field + " is required"
			case "email":
				errors[field] = field + " must be a valid email address"
			case "min":
				errors[field] = field + " must be at least " + e.Param()
			case "max":
				errors[field] = field + " must be at most " + e.Param()
			case "gte":
				errors[field] = field + " must be greater than or equal to " + e.Param()
			case "lte":
				errors[field] = field + " must be less than or equal to " + e.Param()
			case "slotdate":
				errors[field] = field + " must be a date in YYYY-MM-DD format"
			case "slottime":
				errors[field] = field + " must be a time such as 2:00 PM"
			case "timezone":
				errors[field] = field + " must be an IANA timezone"
			case "iso4217":
				errors[field] = field + " must be an ISO 4217 currency code"
			case "url":
				errors[field] = field + " must be a valid URL"
			case "oneof":
				errors[field] = field + " must be one of: " + e.Param()
			default:
				errors[field] = field + " is invalid"
			}
		}
	}

	return errors
}

func validateSlotDate(fl validator.FieldLevel) bool {
	_, err := entity.ParseSlotDate(entity.NormalizeSlotDate(fl.Field().String()))
	return err == nil
}

func validateSlotTime(fl validator.FieldLevel) bool {
	_, _, err := entity.ParseSlotClock(fl.Field().String())
	return err == nil
}
