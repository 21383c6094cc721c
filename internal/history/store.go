package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chromascale/internal/config"
)

// Entry is one finished job as journaled by the worker.
type Entry struct {
	ID           string
	Path         string
	Outcome      string
	Width        int
	Height       int
	OutputPath   string
	ErrorMessage string
	AcceptedAt   time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration reports how long the job spent in the worker.
func (e Entry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store journals job outcomes to SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under the state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the history database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or replaces the entry for e.ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("record history: job id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs (
            id, path, outcome, width, height, output_path, error_message,
            accepted_at, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Path,
		e.Outcome,
		e.Width,
		e.Height,
		nullableString(e.OutputPath),
		nullableString(e.ErrorMessage),
		formatTime(e.AcceptedAt),
		formatTime(e.StartedAt),
		formatTime(e.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

const entryColumns = "id, path, outcome, width, height, output_path, error_message, accepted_at, started_at, finished_at"

// Recent returns up to limit entries, newest first. When outcomes is non-empty
// only entries with a matching outcome are returned.
func (s *Store) Recent(ctx context.Context, limit int, outcomes ...string) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + entryColumns + " FROM jobs"
	args := make([]any, 0, len(outcomes)+1)
	if len(outcomes) > 0 {
		placeholders := make([]string, len(outcomes))
		for i, outcome := range outcomes {
			placeholders[i] = "?"
			args = append(args, outcome)
		}
		query += " WHERE outcome IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Counts returns the number of journaled jobs grouped by outcome.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("history counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

// Prune deletes entries that finished before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		outputPath  sql.NullString
		errorMsg    sql.NullString
		acceptedRaw string
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Path,
		&entry.Outcome,
		&entry.Width,
		&entry.Height,
		&outputPath,
		&errorMsg,
		&acceptedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	entry.OutputPath = outputPath.String
	entry.ErrorMessage = errorMsg.String
	entry.AcceptedAt = parseTime(acceptedRaw)
	entry.StartedAt = parseTime(startedRaw)
	entry.FinishedAt = parseTime(finishedRaw)
	return entry, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// Timestamps use a fixed-width layout so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return time.Time{}
		}
	}
	return t
}
