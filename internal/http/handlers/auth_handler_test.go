package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/services"
)

func newAuthRouter(t *testing.T, uid string) (*gin.Engine, *services.AuthService) {
	t.Helper()

	db := newHandlersDB(t)
	svc := services.NewAuthService(db, "test-secret", time.Hour, bcrypt.MinCost)
	h := New(svc, nil, nil, nil, 0)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/profile", asUser(uid), h.Profile)
	r.PUT("/auth/setup", asUser(uid), h.Setup)
	return r, svc
}

func TestRegister_CreatesAccountAndIssuesToken(t *testing.T) {
	r, svc := newAuthRouter(t, "")

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"name": "Alex", "email": "alex@example.com", "password": "secretpw",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp AuthResponse
	decodeBody(t, w, &resp)
	if resp.Message != "User created successfully" {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Token == "" || resp.User == nil || resp.User.Email != "alex@example.com" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if uid, err := svc.VerifyToken(resp.Token); err != nil || uid != resp.User.ID {
		t.Fatalf("VerifyToken = (%q, %v), want %q", uid, err, resp.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	r, _ := newAuthRouter(t, "")

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{"email": "x@y.z"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	decodeBody(t, w, &resp)
	if resp.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	r, _ := newAuthRouter(t, "")

	body := gin.H{"name": "Alex", "email": "alex@example.com", "password": "secretpw"}
	if w := doJSON(t, r, http.MethodPost, "/auth/register", body, nil); w.Code != http.StatusCreated {
		t.Fatalf("first register: %d", w.Code)
	}
	w := doJSON(t, r, http.MethodPost, "/auth/register", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	decodeBody(t, w, &resp)
	if resp.Code != ErrCodeConflict {
		t.Fatalf("code = %q, want %q", resp.Code, ErrCodeConflict)
	}
}

func TestLogin_SuccessAndBadPassword(t *testing.T) {
	r, _ := newAuthRouter(t, "")
	doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"name": "Alex", "email": "alex@example.com", "password": "secretpw",
	}, nil)

	w := doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": "alex@example.com", "password": "secretpw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	decodeBody(t, w, &resp)
	if resp.Message != "Login successful" || resp.Token == "" {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	w = doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": "alex@example.com", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", w.Code)
	}
}

func TestProfileAndSetup(t *testing.T) {
	db := newHandlersDB(t)
	svc := services.NewAuthService(db, "test-secret", time.Hour, bcrypt.MinCost)
	res, err := svc.Register(context.Background(), services.RegisterInput{Name: "Alex", Email: "alex@example.com", Password: "secretpw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := New(svc, nil, nil, nil, 0)

	r := gin.New()
	r.GET("/auth/profile", asUser(res.User.ID), h.Profile)
	r.PUT("/auth/setup", asUser(res.User.ID), h.Setup)

	w := doJSON(t, r, http.MethodGet, "/auth/profile", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d, body %s", w.Code, w.Body.String())
	}
	var profile struct {
		User *domain.User `json:"user"`
	}
	decodeBody(t, w, &profile)
	if profile.User == nil || profile.User.Email != "alex@example.com" {
		t.Fatalf("unexpected profile: %+v", profile.User)
	}

	w = doJSON(t, r, http.MethodPut, "/auth/setup", gin.H{"setupData": gin.H{"tanks": 3}}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("setup status = %d, body %s", w.Code, w.Body.String())
	}
	var setup struct {
		Message string       `json:"message"`
		User    *domain.User `json:"user"`
	}
	decodeBody(t, w, &setup)
	if setup.Message != "Setup completed successfully" || setup.User == nil || !setup.User.SetupDone {
		t.Fatalf("unexpected setup response: %+v", setup)
	}
}

func TestProfile_UnknownUser(t *testing.T) {
	r, _ := newAuthRouter(t, "no-such-user")

	w := doJSON(t, r, http.MethodGet, "/auth/profile", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
