package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

// AuthService issues and verifies bearer tokens and manages the account
// lifecycle: register, login, profile reads and the one-time setup flow.
type AuthService struct {
	DB         *gorm.DB
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

func NewAuthService(db *gorm.DB, secret string, ttl time.Duration, cost int) *AuthService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{DB: db, Secret: []byte(secret), TokenTTL: ttl, BcryptCost: cost}
}

// RegisterInput carries the POST /auth/register payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is what register and login both hand back.
type AuthResult struct {
	Token string
	User  *domain.User
}

// Register creates a local account and immediately issues a token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, invalid("name", "required")
	case email == "":
		return nil, invalid("email", "required")
	case in.Password == "":
		return nil, invalid("password", "required")
	}

	if _, err := repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.BcryptCost)
	if err != nil {
		return nil, err
	}
	user, err := repo.CreateUser(ctx, s.DB, &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Provider:     "local",
		Role:         "user",
	})
	if err != nil {
		return nil, err
	}
	return s.result(user)
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalid("email", "required")
	}
	if password == "" {
		return nil, invalid("password", "required")
	}
	user, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.result(user)
}

// Profile loads the authenticated user's account.
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return repo.GetUserByID(ctx, s.DB, userID)
}

// CompleteSetup stores the onboarding payload and marks setup done.
func (s *AuthService) CompleteSetup(ctx context.Context, userID, setupData string) (*domain.User, error) {
	if err := repo.CompleteUserSetup(ctx, s.DB, userID, setupData); err != nil {
		return nil, err
	}
	return repo.GetUserByID(ctx, s.DB, userID)
}

// IssueToken signs an HS256 bearer token carrying the user id and email.
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"userId": user.ID,
		"email":  user.Email,
		"iat":    now.Unix(),
		"exp":    now.Add(s.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// VerifyToken parses a bearer token and returns the subject user id.
// Every failure mode collapses to ErrInvalidToken.
func (s *AuthService) VerifyToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthService) result(user *domain.User) (*AuthResult, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
