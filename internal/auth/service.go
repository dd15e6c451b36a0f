package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/echocoach/echo/internal/accounts"
	"github.com/echocoach/echo/internal/validation"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=2,max=80"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ProfileRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=2,max=80"`
	Bio    *string `json:"bio" validate:"omitempty,max=500"`
	Avatar *string `json:"avatar" validate:"omitempty,url"`
}

// Session is the response to a successful register or login.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      accounts.Profile `json:"user"`
}

// Service implements registration, login and profile management on top of an account store.
type Service struct {
	accounts accounts.Store
	tokens   *Issuer
	cost     int
}

// NewService builds the service. bcryptCost <= 0 uses the bcrypt default.
func NewService(store accounts.Store, tokens *Issuer, bcryptCost int) *Service {
	return &Service{accounts: store, tokens: tokens, cost: bcryptCost}
}

func (s *Service) Tokens() *Issuer { return s.tokens }

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	if err := validation.Struct(req); err != nil {
		return Session{}, err
	}
	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return Session{}, err
	}
	user, err := s.accounts.Create(ctx, accounts.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	})
	if errors.Is(err, accounts.ErrEmailTaken) {
		return Session{}, validation.Field("email", "User already exists")
	}
	if err != nil {
		return Session{}, fmt.Errorf("create account: %w", err)
	}
	return s.session(user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	if err := validation.Struct(req); err != nil {
		return Session{}, err
	}
	user, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, accounts.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load account: %w", err)
	}
	if !CheckPassword(user.PasswordHash, req.Password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *Service) Profile(ctx context.Context, userID string) (accounts.Profile, error) {
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return accounts.Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req ProfileRequest) (accounts.Profile, error) {
	if err := validation.Struct(req); err != nil {
		return accounts.Profile{}, err
	}
	user, err := s.accounts.UpdateProfile(ctx, userID, accounts.ProfilePatch{
		Name:   req.Name,
		Bio:    req.Bio,
		Avatar: req.Avatar,
	})
	if err != nil {
		return accounts.Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) session(user accounts.User) (Session, error) {
	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: user.Profile()}, nil
}
