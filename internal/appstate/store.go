package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

var ErrEmptyKey = errors.New("state key is required")

// Store persists State per key (one key per local profile or user).
type Store interface {
	Load(ctx context.Context, key string) (*State, error)
	Save(ctx context.Context, key string, st *State) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStore keeps the encoded form so loads never alias saved state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*State, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return New(), nil
	}
	return decode(raw)
}

func (m *MemoryStore) Save(_ context.Context, key string, st *State) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := encode(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, strings.TrimSpace(key))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func encode(st *State) ([]byte, error) {
	return json.Marshal(st.Persisted())
}

func decode(raw []byte) (*State, error) {
	var p Persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return Restore(p), nil
}
