package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"wayfarer/internal/types"
)

type checkoutDTO struct {
	Tier          string `json:"tier" validate:"required,plan_tier"`
	BillingPeriod string `json:"billing_period" validate:"required,billing_period"`
}

type registerDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

func validationCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	return appErr.Code
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := v.ValidateStruct(checkoutDTO{Tier: "pro", BillingPeriod: "monthly"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidateStruct_MissingField(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	code := validationCode(t, v.ValidateStruct(checkoutDTO{BillingPeriod: "monthly"}))
	if code != types.ErrCodeValidationMissingField {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationMissingField, code)
	}
}

func TestValidateStruct_UnknownTier(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	code := validationCode(t, v.ValidateStruct(checkoutDTO{Tier: "platinum", BillingPeriod: "monthly"}))
	if code != types.ErrCodeValidationInvalidTier {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationInvalidTier, code)
	}
}

func TestValidateStruct_UnknownBillingPeriod(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	code := validationCode(t, v.ValidateStruct(checkoutDTO{Tier: "pro", BillingPeriod: "weekly"}))
	if code != types.ErrCodeValidationInvalidPeriod {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationInvalidPeriod, code)
	}
}

func TestValidateStruct_InvalidEmail(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	code := validationCode(t, v.ValidateStruct(registerDTO{
		Email:    "not-an-email",
		Password: "longenough",
		Name:     "Ada",
	}))
	if code != types.ErrCodeValidationInvalidEmail {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationInvalidEmail, code)
	}
}

func TestValidateStruct_ShortPassword(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := v.ValidateStruct(registerDTO{
		Email:    "user@example.com",
		Password: "short",
		Name:     "Ada",
	})
	code := validationCode(t, err)
	if code != errCodeValidationInvalidJSON {
		t.Errorf("expected %s, got %s", errCodeValidationInvalidJSON, code)
	}

	var appErr *types.AppError
	errors.As(err, &appErr)
	if appErr.Details["field"] != "password" {
		t.Errorf("expected field detail password, got %v", appErr.Details)
	}
}
