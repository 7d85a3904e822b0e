// Package handlers contains the HTTP handler implementations for the
// Wayfarer API. Each handler file defines the service contract it needs
// locally and receives implementations via its constructor, which keeps the
// handlers decoupled from concrete service types and easy to mock in tests.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wayfarer/internal/core"
	"wayfarer/internal/types"
)

// IdentityService abstracts account registration and credential verification.
type IdentityService interface {
	Register(ctx context.Context, email, password, name string) (*types.Account, string, error)
	Login(ctx context.Context, email, password string) (*types.Account, string, error)
}

// RegisterRequest is the request body for POST /v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is the response body for successful register/login calls.
type AuthResponse struct {
	Token   string      `json:"token"`
	Account AccountView `json:"account"`
}

// AccountView is the client-facing projection of an account.
type AccountView struct {
	ID    string         `json:"id"`
	Email string         `json:"email"`
	Name  string         `json:"name"`
	Tier  types.PlanTier `json:"tier"`
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	service   IdentityService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc IdentityService, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		service:   svc,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the auth endpoints. Both are public; the chassis
// auth middleware exempts them by path.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
}

// HandleRegister handles POST /v1/auth/register. New accounts always start
// on the free tier; paid tiers are only ever reached through checkout.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	account, token, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: AuthResponse{
		Token:   token,
		Account: accountView(account),
	}})
}

// HandleLogin handles POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	account, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AuthResponse{
		Token:   token,
		Account: accountView(account),
	}})
}

func accountView(a *types.Account) AccountView {
	return AccountView{
		ID:    a.ID,
		Email: a.Email,
		Name:  a.Name,
		Tier:  a.Tier,
	}
}
