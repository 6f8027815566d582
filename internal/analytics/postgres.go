package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes analytics records to a fact_checks table
type PostgresSink struct {
	db   pgExecer
	pool *pgxpool.Pool
}

// NewPostgresSink connects to databaseURL and ensures the schema exists
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	s := &PostgresSink{db: pool, pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fact_checks (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			category TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			cached BOOLEAN NOT NULL DEFAULT FALSE,
			emotional_tone TEXT NOT NULL DEFAULT '',
			contains_statistics BOOLEAN NOT NULL DEFAULT FALSE,
			contains_quotes BOOLEAN NOT NULL DEFAULT FALSE,
			contains_dates BOOLEAN NOT NULL DEFAULT FALSE,
			uses_absolutes BOOLEAN NOT NULL DEFAULT FALSE,
			creates_urgency BOOLEAN NOT NULL DEFAULT FALSE,
			appeals_to_authority BOOLEAN NOT NULL DEFAULT FALSE,
			personal_anecdote BOOLEAN NOT NULL DEFAULT FALSE,
			response_time_ms BIGINT NOT NULL,
			response_length INT NOT NULL,
			day_of_week TEXT NOT NULL,
			hour_of_day INT NOT NULL,
			is_weekend BOOLEAN NOT NULL,
			has_external_links BOOLEAN NOT NULL DEFAULT FALSE,
			has_media BOOLEAN NOT NULL DEFAULT FALSE,
			mention_count INT NOT NULL DEFAULT 0,
			hashtag_count INT NOT NULL DEFAULT 0,
			question_marks INT NOT NULL DEFAULT 0,
			exclamation_marks INT NOT NULL DEFAULT 0,
			all_caps_words INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_checks_created_at ON fact_checks (created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

const insertFactCheck = `INSERT INTO fact_checks (
	id, created_at, mode, status, category, model, cached,
	emotional_tone, contains_statistics, contains_quotes, contains_dates,
	uses_absolutes, creates_urgency, appeals_to_authority, personal_anecdote,
	response_time_ms, response_length, day_of_week, hour_of_day, is_weekend,
	has_external_links, has_media, mention_count, hashtag_count,
	question_marks, exclamation_marks, all_caps_words
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
ON CONFLICT (id) DO NOTHING`

// WriteRecord inserts one record
func (s *PostgresSink) WriteRecord(ctx context.Context, r types.AnalyticsRecord) error {
	_, err := s.db.Exec(ctx, insertFactCheck,
		r.ID, r.Timestamp, string(r.Mode), string(r.Status), string(r.Category), r.Model, r.Cached,
		r.EmotionalTone, r.ContainsStatistics, r.ContainsQuotes, r.ContainsDates,
		r.UsesAbsolutes, r.CreatesUrgency, r.AppealsToAuthority, r.PersonalAnecdote,
		r.ResponseTimeMs, r.ResponseLength, r.DayOfWeek, r.HourOfDay, r.IsWeekend,
		r.HasExternalLinks, r.HasMedia, r.MentionCount, r.HashtagCount,
		r.QuestionMarks, r.ExclamationMarks, r.AllCapsWords,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fact check: %w", err)
	}
	return nil
}

// Name identifies the sink in logs
func (s *PostgresSink) Name() string {
	return "postgres"
}

// Close releases the connection pool
func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
