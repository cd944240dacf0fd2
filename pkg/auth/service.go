// Package auth handles account signup, password signin and the bearer
// tokens that protect the attendance endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
)

var (
	// ErrPasswordMismatch is returned when the confirmation differs.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrInvalidSignup is returned for missing or malformed signup fields.
	ErrInvalidSignup = errors.New("invalid signup request")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const minPasswordLength = 8

// UserStore is the user persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, u *database.User) error
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	GetByID(ctx context.Context, id int64) (*database.User, error)
}

// SignupRequest carries the fields of a new account.
type SignupRequest struct {
	FullName        string `json:"full_name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// Session is a successful signin.
type Session struct {
	Token     string
	ExpiresIn int64
	User      *database.User
}

// Service implements signup and signin.
type Service struct {
	users  UserStore
	tokens *Tokens
	cost   int
}

// NewService creates an auth service.
func NewService(users UserStore, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Tokens returns the token helper used by the middleware.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Signup creates an employee account.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*database.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.FullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidSignup)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidSignup)
	}
	if req.Password != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignup, err)
	}

	u := &database.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         database.RoleEmployee,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	logging.Component("auth").WithField("user", u.ID).Info("User signed up")
	return u, nil
}

// Signin checks the password and issues a token.
func (s *Service) Signin(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logging.Component("auth").WithField("user", u.ID).Warn("Signin rejected")
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresIn: int64(expires.Sub(s.tokens.now()).Seconds()),
		User:      u,
	}, nil
}

// CurrentUser resolves the user behind a token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*database.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	return u, err
}
