package accounts

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryCreateAndLookup(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	u, err := s.Create(ctx, User{Email: "  Sam@Example.com ", Name: " Sam ", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.ID == "" || u.Email != "sam@example.com" || u.Name != "Sam" || u.CreatedAt.IsZero() {
		t.Fatalf("created user = %+v", u)
	}

	byEmail, err := s.GetByEmail(ctx, "SAM@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("GetByEmail() = %+v, %v", byEmail, err)
	}
	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Create(ctx, User{Email: "sam@example.com", Name: "Other"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate Create() error = %v, want ErrEmailTaken", err)
	}
}

func TestInMemoryUpdateProfile(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	u, _ := s.Create(ctx, User{Email: "a@b.co", Name: "Ann", PasswordHash: "hash"})

	bio := "  keynote speaker "
	got, err := s.UpdateProfile(ctx, u.ID, ProfilePatch{Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Bio != "keynote speaker" || got.Name != "Ann" {
		t.Fatalf("updated user = %+v", got)
	}
	if got.PasswordHash != "hash" {
		t.Fatalf("password hash changed")
	}
	if _, err := s.UpdateProfile(ctx, "missing", ProfilePatch{Bio: &bio}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateProfile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestProfileOmitsPassword(t *testing.T) {
	p := User{ID: "u1", Email: "a@b.co", Name: "Ann", PasswordHash: "secret"}.Profile()
	if p.ID != "u1" || p.Email != "a@b.co" || p.Name != "Ann" {
		t.Fatalf("Profile() = %+v", p)
	}
}

func TestMongoDocRoundTrip(t *testing.T) {
	u := User{ID: "u1", Email: "a@b.co", Name: "Ann", PasswordHash: "h", Bio: "hi"}
	if got := fromDoc(toDoc(u)); got != u {
		t.Fatalf("fromDoc(toDoc()) = %+v, want %+v", got, u)
	}
}
