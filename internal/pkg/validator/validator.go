package validator

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/linkflow-ai/scriptflow/internal/scheduler/cron"
)

var validate *validator.Validate

var cronParser = cron.NewParser()

var eventNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// Register custom validators
	validate.RegisterValidation("cron", validateCron)
	validate.RegisterValidation("timezone", validateTimezone)
	validate.RegisterValidation("event_name", validateEventName)
}

func Get() *validator.Validate {
	return validate
}

func Validate(s interface{}) error {
	return validate.Struct(s)
}

func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// Custom validators

func validateCron(fl validator.FieldLevel) bool {
	return cronParser.Validate(fl.Field().String()) == nil
}

func validateTimezone(fl validator.FieldLevel) bool {
	tz := fl.Field().String()
	if tz == "" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func validateEventName(fl validator.FieldLevel) bool {
	return eventNameRegex.MatchString(fl.Field().String())
}

// Error formatting
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func FormatErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			errors = append(errors, ValidationError{
				Field:   toSnakeCase(e.Field()),
				Message: formatMessage(e),
			})
		}
	}

	return errors
}

// Summary joins formatted errors into one line for error messages.
func Summary(err error) string {
	formatted := FormatErrors(err)
	if len(formatted) == 0 {
		return err.Error()
	}
	parts := make([]string, len(formatted))
	for i, e := range formatted {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

func formatMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gte":
		return "Value is too small"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "cron":
		return "Invalid cron expression"
	case "timezone":
		return "Unknown timezone"
	case "event_name":
		return "Invalid event name"
	case "uuid":
		return "Invalid UUID format"
	default:
		return "Invalid value"
	}
}

func toSnakeCase(str string) string {
	var result strings.Builder
	for i, r := range str {
		if i > 0 && 'A' <= r && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
