package reports

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/echocoach/echo/internal/coach"
)

var ErrNotFound = errors.New("report not found")

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Report is a saved session record owned by one user.
type Report struct {
	coach.SessionRecord
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ListResult struct {
	Reports    []Report   `json:"reports"`
	Pagination Pagination `json:"pagination"`
}

// Stats aggregates all of a user's reports. Averages are 0 when there are none.
type Stats struct {
	TotalSessions int     `json:"totalSessions"`
	TotalDuration int     `json:"totalDuration"`
	AvgScore      float64 `json:"avgScore"`
	AvgPace       float64 `json:"avgPace"`
	AvgEyeContact float64 `json:"avgEyeContact"`
}

// Store persists reports. Every lookup is scoped to the owning user; a report that exists for
// another user is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, report Report) (Report, error)
	List(ctx context.Context, userID string, page, limit int) (ListResult, error)
	Get(ctx context.Context, userID, id string) (Report, error)
	Delete(ctx context.Context, userID, id string) error
	Stats(ctx context.Context, userID string) (Stats, error)
	Mode() string
	Close() error
}

// NormalizePage clamps page to >= 1 and limit to [1, MaxLimit], defaulting limit to
// DefaultLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func newPagination(page, limit, total int) Pagination {
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}
}

// ComputeStats aggregates reports in memory.
func ComputeStats(items []Report) Stats {
	var out Stats
	if len(items) == 0 {
		return out
	}
	var score, pace, eye int
	for _, r := range items {
		out.TotalDuration += r.Duration
		score += r.OverallScore
		pace += r.Metrics.Pace
		eye += r.Metrics.EyeContact
	}
	n := float64(len(items))
	out.TotalSessions = len(items)
	out.AvgScore = round2(float64(score) / n)
	out.AvgPace = round2(float64(pace) / n)
	out.AvgEyeContact = round2(float64(eye) / n)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortNewestFirst orders by session date, newest first, then by id for stable pages.
func sortNewestFirst(items []Report) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].ID < items[j].ID
	})
}

// prepare assigns the stored identity. Ids are always minted by the store; a caller-supplied id
// is discarded.
func prepare(report Report, newID func() string, now time.Time) Report {
	report.ID = newID()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.Date.IsZero() {
		report.Date = report.CreatedAt
	}
	report.Transcript = coach.TruncateTranscript(report.Transcript)
	return report
}
