package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("u1")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if byUser, err := m.ForUser("u1"); err != nil || byUser.ID != s.ID {
		t.Fatalf("ForUser() = %+v, %v", byUser, err)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.ForUser("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ForUser() after end error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerPracticeLifecycle(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("u1")
	if err := m.BeginPractice(s.ID, "p1"); err != nil {
		t.Fatalf("BeginPractice() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.PracticeID != "p1" || got.PracticeCount != 1 {
		t.Fatalf("after begin: %+v", got)
	}
	if err := m.EndPractice(s.ID); err != nil {
		t.Fatalf("EndPractice() error = %v", err)
	}
	got, _ = m.Get(s.ID)
	if got.PracticeID != "" || got.PracticeCount != 1 {
		t.Fatalf("after end: %+v", got)
	}

	_, _ = m.End(s.ID)
	if err := m.BeginPractice(s.ID, "p2"); !errors.Is(err, ErrEnded) {
		t.Fatalf("BeginPractice() on ended session error = %v, want ErrEnded", err)
	}
	if err := m.BeginPractice("missing", "p3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("BeginPractice() on missing session error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("u1")

	var mu sync.Mutex
	var expired []string
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		expired = append(expired, s.ID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err == nil && got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != s.ID {
		t.Fatalf("expired = %v, want [%s]", expired, s.ID)
	}
}

func TestManagerTouchKeepsSessionAlive(t *testing.T) {
	m := NewManager(40 * time.Millisecond)
	s := m.Create("u1")
	for i := 0; i < 4; i++ {
		time.Sleep(15 * time.Millisecond)
		if err := m.Touch(s.ID); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
		m.expireInactive()
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("Status = %q, want active", got.Status)
	}
}
