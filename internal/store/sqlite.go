package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

const cursorKey = "notification_cursor"

// SQLiteStore persists bot state (seen mentions, the notification cursor)
// and analytics records to a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at the given path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent write performance
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS seen_mentions (
		id TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seen_mentions_seen_at ON seen_mentions(seen_at)`,
	`CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		category TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		cached INTEGER NOT NULL DEFAULT 0,
		emotional_tone TEXT NOT NULL DEFAULT '',
		contains_statistics INTEGER NOT NULL DEFAULT 0,
		contains_quotes INTEGER NOT NULL DEFAULT 0,
		contains_dates INTEGER NOT NULL DEFAULT 0,
		uses_absolutes INTEGER NOT NULL DEFAULT 0,
		creates_urgency INTEGER NOT NULL DEFAULT 0,
		appeals_to_authority INTEGER NOT NULL DEFAULT 0,
		personal_anecdote INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL,
		response_length INTEGER NOT NULL,
		day_of_week TEXT NOT NULL,
		hour_of_day INTEGER NOT NULL,
		is_weekend INTEGER NOT NULL,
		has_external_links INTEGER NOT NULL DEFAULT 0,
		has_media INTEGER NOT NULL DEFAULT 0,
		mention_count INTEGER NOT NULL DEFAULT 0,
		hashtag_count INTEGER NOT NULL DEFAULT 0,
		question_marks INTEGER NOT NULL DEFAULT 0,
		exclamation_marks INTEGER NOT NULL DEFAULT 0,
		all_caps_words INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_timestamp ON analytics(timestamp)`,
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Seen mentions ===

// MarkSeen records a mention id (upsert)
func (s *SQLiteStore) MarkSeen(id string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO seen_mentions (id, seen_at) VALUES (?, ?)
	`, id, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark mention seen: %w", err)
	}
	return nil
}

// LoadSeen returns mention ids seen at or after since
func (s *SQLiteStore) LoadSeen(since time.Time) (map[string]time.Time, error) {
	rows, err := s.db.Query(`SELECT id, seen_at FROM seen_mentions WHERE seen_at >= ?`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to load seen mentions: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan seen mention: %w", err)
		}
		seen[id] = time.UnixMilli(at)
	}
	return seen, rows.Err()
}

// PruneSeen deletes mention ids seen before cutoff
func (s *SQLiteStore) PruneSeen(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM seen_mentions WHERE seen_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune seen mentions: %w", err)
	}
	return result.RowsAffected()
}

// === Cursor ===

// SaveCursor stores the indexedAt of the newest processed notification
func (s *SQLiteStore) SaveCursor(cursor time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO state (key, value, updated_at) VALUES (?, ?, ?)
	`, cursorKey, cursor.UTC().Format(time.RFC3339Nano), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the stored cursor, or the zero time if none is stored
func (s *SQLiteStore) LoadCursor() (time.Time, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, cursorKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load cursor: %w", err)
	}

	cursor, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cursor %q: %w", value, err)
	}
	return cursor, nil
}

// === Analytics ===

// WriteRecord inserts one analytics record
func (s *SQLiteStore) WriteRecord(ctx context.Context, r types.AnalyticsRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics (
			id, timestamp, mode, status, category, model, cached,
			emotional_tone, contains_statistics, contains_quotes, contains_dates,
			uses_absolutes, creates_urgency, appeals_to_authority, personal_anecdote,
			response_time_ms, response_length, day_of_week, hour_of_day, is_weekend,
			has_external_links, has_media, mention_count, hashtag_count,
			question_marks, exclamation_marks, all_caps_words
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Timestamp.UnixMilli(), string(r.Mode), string(r.Status), string(r.Category), r.Model, r.Cached,
		r.EmotionalTone, r.ContainsStatistics, r.ContainsQuotes, r.ContainsDates,
		r.UsesAbsolutes, r.CreatesUrgency, r.AppealsToAuthority, r.PersonalAnecdote,
		r.ResponseTimeMs, r.ResponseLength, r.DayOfWeek, r.HourOfDay, r.IsWeekend,
		r.HasExternalLinks, r.HasMedia, r.MentionCount, r.HashtagCount,
		r.QuestionMarks, r.ExclamationMarks, r.AllCapsWords,
	)
	if err != nil {
		return fmt.Errorf("failed to write analytics record: %w", err)
	}
	return nil
}

// StatusCounts returns the number of analytics records per status since the given time
func (s *SQLiteStore) StatusCounts(since time.Time) (map[types.Status]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM analytics WHERE timestamp >= ? GROUP BY status
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count analytics: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[types.Status(status)] = n
	}
	return counts, rows.Err()
}

// Name identifies the store as an analytics sink
func (s *SQLiteStore) Name() string {
	return "sqlite"
}
