// Account and token endpoints:
//   - POST /auth/register  (create account, issue token)
//   - POST /auth/login     (verify credentials, issue token)
//   - GET  /auth/profile   (read own account; bearer token)
//   - PUT  /auth/setup     (store onboarding payload; bearer token)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate outcomes into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/http/middleware"
	"github.com/aquamind/go-tank-backend/internal/services"
)

// AuthService defines the account operations consumed by HTTP handlers.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Profile(ctx context.Context, userID string) (*domain.User, error)
	CompleteSetup(ctx context.Context, userID, setupData string) (*domain.User, error)
}

// LoginRequest is the JSON payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetupRequest carries the onboarding wizard state; the payload is stored
// verbatim.
type SetupRequest struct {
	SetupData json.RawMessage `json:"setupData"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
}

// Register handles POST /auth/register.
func (h *Handlers) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, email, and password are required")
		return
	}
	res, err := h.authSvc.Register(c.Request.Context(), req)
	switch {
	case err == nil:
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrEmailExists):
		fail(c, http.StatusBadRequest, ErrCodeConflict, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error during registration")
		return
	}
	ok(c, http.StatusCreated, AuthResponse{Message: "User created successfully", Token: res.Token, User: res.User})
}

// Login handles POST /auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	res, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error during login")
		return
	}
	ok(c, http.StatusOK, AuthResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

// Profile handles GET /auth/profile.
func (h *Handlers) Profile(c *gin.Context) {
	user, err := h.authSvc.Profile(c.Request.Context(), middleware.UserID(c))
	if errors.Is(err, services.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to load profile")
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

// Setup handles PUT /auth/setup.
func (h *Handlers) Setup(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid setup payload")
		return
	}
	user, err := h.authSvc.CompleteSetup(c.Request.Context(), middleware.UserID(c), string(req.SetupData))
	if errors.Is(err, services.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to complete setup")
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Setup completed successfully", "user": user})
}
