package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"wayfarer/internal/types"
)

// Validator wraps go-playground/validator to register domain-specific rules
// and translate field errors into the structured AppError taxonomy.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// plan_tier accepts any known tier name; handlers that must exclude the
	// free tier enforce that separately with a precise error code.
	_ = v.RegisterValidation("plan_tier", func(fl validator.FieldLevel) bool {
		return types.PlanTier(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		return types.BillingPeriod(fl.Field().String()).IsValid()
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a request DTO against its struct tags. It returns
// nil on success, or a *types.AppError describing the first failed field.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"request validation failed",
			err,
		)
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())

	return types.NewAppErrorWithDetails(
		codeForTag(fe.Tag()),
		"invalid value for field "+field,
		nil,
		map[string]any{
			"field": field,
			"rule":  fe.Tag(),
		},
	)
}

// codeForTag maps a validation tag to the error code clients switch on.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "email":
		return types.ErrCodeValidationInvalidEmail
	case "plan_tier":
		return types.ErrCodeValidationInvalidTier
	case "billing_period":
		return types.ErrCodeValidationInvalidPeriod
	default:
		return errCodeValidationInvalidJSON
	}
}
