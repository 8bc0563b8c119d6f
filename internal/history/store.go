// Package history keeps a sqlite log of searches and chapter deliveries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SearchRecord is one title lookup.
type SearchRecord struct {
	UserKey  string
	Query    string
	Title    string
	Chapters int
	Found    bool
	At       time.Time
}

// DeliveryRecord is one chapter sent to a user.
type DeliveryRecord struct {
	BatchID string
	UserKey string
	Title   string
	Chapter int
	Images  int // images the chapter page listed
	Sent    int // actions delivered
	Failed  int
	At      time.Time
}

type Totals struct {
	Searches   int
	Found      int
	Users      int
	Deliveries int
	Sent       int
	Failed     int
}

type QueryCount struct {
	Query string
	Count int
}

// Store is a sqlite backed history log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) RecordSearch(ctx context.Context, rec SearchRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (user_key, query, title, chapters, found, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserKey, rec.Query, rec.Title, rec.Chapters, rec.Found, rec.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (s *Store) RecordDelivery(ctx context.Context, rec DeliveryRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (batch_id, user_key, title, chapter, images, sent, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BatchID, rec.UserKey, rec.Title, rec.Chapter, rec.Images, rec.Sent, rec.Failed, rec.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Totals aggregates everything recorded at or after since (zero means all time).
func (s *Store) Totals(ctx context.Context, since time.Time) (Totals, error) {
	var t Totals
	from := unixOrZero(since)

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(found), 0), COUNT(DISTINCT user_key)
		 FROM searches WHERE created_at >= ?`, from,
	).Scan(&t.Searches, &t.Found, &t.Users)
	if err != nil {
		return Totals{}, fmt.Errorf("search totals: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(sent), 0), COALESCE(SUM(failed), 0)
		 FROM deliveries WHERE created_at >= ?`, from,
	).Scan(&t.Deliveries, &t.Sent, &t.Failed)
	if err != nil {
		return Totals{}, fmt.Errorf("delivery totals: %w", err)
	}
	return t, nil
}

// TopQueries returns the most frequent successful queries, case-folded.
func (s *Store) TopQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT LOWER(query) AS q, COUNT(*) AS n FROM searches
		 WHERE found = 1 AND created_at >= ?
		 GROUP BY q ORDER BY n DESC, q ASC LIMIT ?`,
		unixOrZero(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	defer rows.Close()

	var out []QueryCount
	for rows.Next() {
		var qc QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, err
		}
		out = append(out, qc)
	}
	return out, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (s *Store) Close() error {
	return s.db.Close()
}
