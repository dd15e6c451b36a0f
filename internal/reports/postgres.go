package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echocoach/echo/internal/coach"
)

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_date TIMESTAMPTZ NOT NULL,
			duration INTEGER NOT NULL,
			word_count INTEGER NOT NULL,
			overall_score INTEGER NOT NULL,
			metrics JSONB NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			strengths JSONB NOT NULL DEFAULT '[]',
			improvements JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_date ON reports (user_id, session_date DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const reportColumns = `id, user_id, session_date, duration, word_count, overall_score, metrics,
	transcript, strengths, improvements, created_at`

func (s *PostgresStore) Create(ctx context.Context, report Report) (Report, error) {
	report = prepare(report, uuid.NewString, time.Now().UTC())
	metrics, err := json.Marshal(report.Metrics)
	if err != nil {
		return Report{}, fmt.Errorf("encode metrics: %w", err)
	}
	strengths, err := json.Marshal(nonNil(report.Strengths))
	if err != nil {
		return Report{}, fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(nonNil(report.Improvements))
	if err != nil {
		return Report{}, fmt.Errorf("encode improvements: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		report.ID,
		report.UserID,
		report.Date,
		report.Duration,
		report.WordCount,
		report.OverallScore,
		metrics,
		report.Transcript,
		strengths,
		improvements,
		report.CreatedAt,
	)
	if err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string, page, limit int) (ListResult, error) {
	page, limit = NormalizePage(page, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count reports: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE user_id=$1
		 ORDER BY session_date DESC, id ASC LIMIT $2 OFFSET $3`,
		userID,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return ListResult{}, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := ListResult{Reports: make([]Report, 0, limit), Pagination: newPagination(page, limit, total)}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Reports = append(out.Reports, r)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate report rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id=$1 AND user_id=$2`, id, userID)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, userID string) (Stats, error) {
	var out Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(duration), 0),
			COALESCE(AVG(overall_score), 0)::float8,
			COALESCE(AVG((metrics->>'pace')::float8), 0),
			COALESCE(AVG((metrics->>'eyeContact')::float8), 0)
		 FROM reports WHERE user_id=$1`,
		userID,
	).Scan(&out.TotalSessions, &out.TotalDuration, &out.AvgScore, &out.AvgPace, &out.AvgEyeContact)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate reports: %w", err)
	}
	out.AvgScore = round2(out.AvgScore)
	out.AvgPace = round2(out.AvgPace)
	out.AvgEyeContact = round2(out.AvgEyeContact)
	return out, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanReport(row pgx.Row) (Report, error) {
	var r Report
	var metrics, strengths, improvements []byte
	err := row.Scan(
		&r.ID, &r.UserID, &r.Date, &r.Duration, &r.WordCount, &r.OverallScore, &metrics,
		&r.Transcript, &strengths, &improvements, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("scan report row: %w", err)
	}
	var m coach.RecordMetrics
	if err := json.Unmarshal(metrics, &m); err != nil {
		return Report{}, fmt.Errorf("decode metrics: %w", err)
	}
	r.Metrics = m
	if err := json.Unmarshal(strengths, &r.Strengths); err != nil {
		return Report{}, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal(improvements, &r.Improvements); err != nil {
		return Report{}, fmt.Errorf("decode improvements: %w", err)
	}
	return r, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
