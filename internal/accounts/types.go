package accounts

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// User is a stored account. PasswordHash never leaves the server; use Profile for responses.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Bio          string
	Avatar       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name, Bio: u.Bio, Avatar: u.Avatar, CreatedAt: u.CreatedAt}
}

// ProfilePatch updates the fields that are set.
type ProfilePatch struct {
	Name   *string
	Bio    *string
	Avatar *string
}

func (p ProfilePatch) apply(u *User) {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Bio != nil {
		u.Bio = strings.TrimSpace(*p.Bio)
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
}

// Store persists accounts. Emails are unique after NormalizeEmail.
type Store interface {
	Create(ctx context.Context, user User) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (User, error)
	Mode() string
	Close() error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepare(user User, newID func() string, now time.Time) User {
	if user.ID == "" {
		user.ID = newID()
	}
	user.Email = NormalizeEmail(user.Email)
	user.Name = strings.TrimSpace(user.Name)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return user
}
