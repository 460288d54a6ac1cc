/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements earnings.SessionStore and mirror.ActivityStore using SQLite.

INTERFACES IMPLEMENTED:
  earnings.SessionStore: accrual sessions (config + latched elapsed time)
  mirror.ActivityStore:  live activities and their last pushed state

KEY TABLES:
  sessions:   one row per accrual session; money columns are decimal text
  activities: one row per live activity; state stored as JSON

NOT STORED:
  Snapshots. They are derived from a session on demand.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of database/sql pooling.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the checkpoint writer.

USAGE:
  store, err := sqlite.New("./data/touchfish.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mgr := earnings.NewManager(store, earnings.SystemClock{})

SEE ALSO:
  - earnings/store.go: SessionStore interface
  - mirror/activity.go: ActivityStore interface
  - earnings/store/memory.go: in-memory SessionStore for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/mirror"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		income_type TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		monthly_income TEXT NOT NULL,
		tax_rate TEXT NOT NULL,
		hours_per_day TEXT NOT NULL,
		days_per_month TEXT NOT NULL,
		elapsed_ns INTEGER NOT NULL DEFAULT 0,
		running BOOLEAN NOT NULL DEFAULT FALSE,
		seq INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created
		ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		state_json TEXT NOT NULL,
		ended BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		ended_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_activities_session
		ON activities(session_id);
	CREATE INDEX IF NOT EXISTS idx_activities_live
		ON activities(ended) WHERE ended = FALSE;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.ensureColumn("sessions", "seq", "INTEGER NOT NULL DEFAULT 0")
}

// ensureColumn adds a column to databases created before it existed.
func (s *Store) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   bool
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// =============================================================================
// SESSION STORE (earnings.SessionStore interface)
// =============================================================================

// SaveSession inserts or replaces a session row. created_at is kept from the
// first insert, and a row with a higher seq is never overwritten.
func (s *Store) SaveSession(ctx context.Context, rec earnings.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	cfg := rec.Config

	query := `
		INSERT INTO sessions
		(id, label, income_type, hourly_rate, monthly_income, tax_rate,
		 hours_per_day, days_per_month, elapsed_ns, running, seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			income_type = excluded.income_type,
			hourly_rate = excluded.hourly_rate,
			monthly_income = excluded.monthly_income,
			tax_rate = excluded.tax_rate,
			hours_per_day = excluded.hours_per_day,
			days_per_month = excluded.days_per_month,
			elapsed_ns = excluded.elapsed_ns,
			running = excluded.running,
			seq = excluded.seq,
			updated_at = excluded.updated_at
		WHERE excluded.seq >= sessions.seq
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Label,
		cfg.IncomeType.String(),
		cfg.HourlyRate.String(),
		cfg.MonthlyIncome.String(),
		cfg.TaxRatePercent.String(),
		cfg.HoursPerDay.String(),
		cfg.DaysPerMonth.String(),
		int64(rec.Elapsed),
		rec.Running,
		int64(rec.Seq),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns a session row, or nil if not found.
func (s *Store) GetSession(ctx context.Context, id earnings.SessionID) (*earnings.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessions returns all sessions, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]earnings.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, sessionColumns+` FROM sessions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []earnings.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session row and its activities.
func (s *Store) DeleteSession(ctx context.Context, id earnings.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM activities WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete activities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

const sessionColumns = `
	SELECT id, label, income_type, hourly_rate, monthly_income, tax_rate,
	       hours_per_day, days_per_month, elapsed_ns, running, seq, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (earnings.SessionRecord, error) {
	var (
		rec                                    earnings.SessionRecord
		incomeType                             string
		hourly, monthly, tax, hours, daysMonth string
		elapsedNS, seq                         int64
		createdAt, updatedAt                   string
	)

	err := row.Scan(
		&rec.ID, &rec.Label, &incomeType, &hourly, &monthly, &tax,
		&hours, &daysMonth, &elapsedNS, &rec.Running, &seq, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan session: %w", err)
	}

	rec.Config = earnings.WageConfig{
		IncomeType:     earnings.ParseIncomeType(incomeType),
		HourlyRate:     parseDecimal(hourly),
		MonthlyIncome:  parseDecimal(monthly),
		TaxRatePercent: parseDecimal(tax),
		HoursPerDay:    parseDecimal(hours),
		DaysPerMonth:   parseDecimal(daysMonth),
	}
	rec.Elapsed = time.Duration(elapsedNS)
	rec.Seq = uint64(seq)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// =============================================================================
// ACTIVITY STORE (mirror.ActivityStore interface)
// =============================================================================

// SaveActivity inserts or replaces an activity row.
func (s *Store) SaveActivity(ctx context.Context, rec mirror.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to encode activity state: %w", err)
	}

	var endedAt sql.NullString
	if rec.EndedAt != nil {
		endedAt = nullString(formatTime(*rec.EndedAt))
	}

	query := `
		INSERT INTO activities (id, session_id, name, state_json, ended, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_json = excluded.state_json,
			ended = excluded.ended,
			ended_at = excluded.ended_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Name,
		string(stateJSON),
		rec.Ended,
		formatTime(rec.CreatedAt),
		endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}

// ListActivities returns all activities, oldest first.
func (s *Store) ListActivities(ctx context.Context) ([]mirror.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, state_json, ended, created_at, ended_at
		FROM activities
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []mirror.ActivityRecord
	for rows.Next() {
		var (
			rec       mirror.ActivityRecord
			stateJSON string
			createdAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Name, &stateJSON, &rec.Ended, &createdAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to decode activity %s: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		if endedAt.Valid {
			t := parseTime(endedAt.String)
			rec.EndedAt = &t
		}
		activities = append(activities, rec)
	}
	return activities, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for development/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"activities", "sessions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
