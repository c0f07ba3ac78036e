// Package history keeps a rolling SQLite log of refresh cycles so the status
// API can show when the sign last had data and how often the API failed.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/metrosign/metrosign/internal/clock"
	"github.com/metrosign/metrosign/internal/logging"
)

//go:embed schema.sql
var ddl string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultRetention bounds how many cycles are kept.
const DefaultRetention = 10000

// Entry is one refresh cycle.
type Entry struct {
	ID          int64     `json:"id"`
	Mode        string    `json:"mode"`
	Observed    bool      `json:"observed"`
	Records     int       `json:"records"`
	Visible     int       `json:"visible"`
	DurationMs  int64     `json:"durationMs"`
	Error       string    `json:"error,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Config configures a Store.
type Config struct {
	DBPath    string
	Retention int
	Clock     clock.Clock
}

// Store is the SQLite-backed refresh history.
type Store struct {
	config Config
	DB     *sql.DB
	logger *slog.Logger
}

// Open creates the database at cfg.DBPath and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = MemoryPath
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open history DB: %w", err)
	}
	configureConnectionPool(db, cfg.DBPath)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing history migration: %w", err)
	}

	return &Store{
		config: cfg,
		DB:     db,
		logger: slog.Default().With(slog.String("component", "history")),
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmed); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmed, err)
		}
	}
	return nil
}

// configureConnectionPool pins in-memory databases to one connection, since
// every sqlite connection would otherwise get its own empty database.
func configureConnectionPool(db *sql.DB, path string) {
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.config.DBPath
}

// Record appends e, stamping it with the store clock when RefreshedAt is
// zero, and trims the table to the retention limit.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RefreshedAt.IsZero() {
		e.RefreshedAt = s.config.Clock.Now()
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO refresh_cycles (mode, observed, records, visible, duration_ms, error, refreshed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Mode, e.Observed, e.Records, e.Visible, e.DurationMs, e.Error, e.RefreshedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record refresh cycle: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`DELETE FROM refresh_cycles WHERE id <= (SELECT MAX(id) FROM refresh_cycles) - ?`,
		s.config.Retention)
	if err != nil {
		logging.LogError(s.logger, "failed to trim history", err)
	}
	return nil
}

// Recent returns up to limit cycles, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, mode, observed, records, visible, duration_ms, error, refreshed_at
		 FROM refresh_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, s.logger, "history_rows")

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.Mode, &e.Observed, &e.Records, &e.Visible, &e.DurationMs, &e.Error, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.RefreshedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// LastObserved returns the most recent cycle that had data.
func (s *Store) LastObserved(ctx context.Context) (Entry, bool, error) {
	var (
		e  Entry
		ms int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, mode, observed, records, visible, duration_ms, error, refreshed_at
		 FROM refresh_cycles WHERE observed = 1 ORDER BY id DESC LIMIT 1`).
		Scan(&e.ID, &e.Mode, &e.Observed, &e.Records, &e.Visible, &e.DurationMs, &e.Error, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query last observed cycle: %w", err)
	}
	e.RefreshedAt = time.UnixMilli(ms).UTC()
	return e, true, nil
}
