package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"geodash/internal/types"
)

// Validator wraps go-playground/validator so handlers can validate request
// payload structs against their `validate` tags and get an AppError back.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with JSON tag names used in messages.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct runs tag validation on s. Failures surface as a
// validation_missing_required_field AppError carrying per-field details.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return types.NewAppError(
		types.ErrCodeValidationMissingField,
		"request payload failed validation",
		err,
	).WithDetails(details)
}
