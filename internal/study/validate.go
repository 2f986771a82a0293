package study

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"psorcast/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
		return ActivityID(fl.Field().String()).Known()
	})
	return v
}

// ValidateStruct checks struct tags on study records and reports the first
// failing fields as a validation error.
func ValidateStruct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return services.Wrap(services.ErrValidation, "study", "validate", strings.Join(parts, "; "), nil)
	}
	return services.Wrap(services.ErrValidation, "study", "validate", "", err)
}
