package reports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps reports in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string]Report
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string]Report)}
}

func (s *InMemoryStore) Create(_ context.Context, report Report) (Report, error) {
	report = prepare(report, uuid.NewString, time.Now().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report
	return report, nil
}

func (s *InMemoryStore) List(_ context.Context, userID string, page, limit int) (ListResult, error) {
	page, limit = NormalizePage(page, limit)
	owned := s.owned(userID)
	sortNewestFirst(owned)

	out := ListResult{Reports: []Report{}, Pagination: newPagination(page, limit, len(owned))}
	start := (page - 1) * limit
	if start >= len(owned) {
		return out, nil
	}
	end := start + limit
	if end > len(owned) {
		end = len(owned)
	}
	out.Reports = append(out.Reports, owned[start:end]...)
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok || r.UserID != userID {
		return Report{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

func (s *InMemoryStore) Stats(_ context.Context, userID string) (Stats, error) {
	return ComputeStats(s.owned(userID)), nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) owned(userID string) []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Report
	for _, r := range s.reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}
