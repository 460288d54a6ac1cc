/*
store.go - Persistence interface for accrual sessions

PURPOSE:
  Defines the interface between the session manager and the database.
  Only sessions are persisted: config and latched elapsed time. Snapshots
  are derived and never written.

RESTORE SEMANTICS:
  A session saved while running comes back Stopped with the elapsed
  time it had at the last save. The tick stamp belongs to the process
  that took it, so it is not trusted across restarts.

ORDERING:
  Seq is the engine's publish counter when the record was taken. A store
  must not replace a record with one carrying a lower Seq, and a restored
  engine continues counting from it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - earnings/store/memory.go: in-memory for tests and dev

SEE ALSO:
  - manager.go: uses SessionStore
*/
package earnings

import (
	"context"
	"time"
)

// SessionRecord is the persisted form of a Session.
type SessionRecord struct {
	ID        SessionID
	Label     string
	Config    WageConfig
	Elapsed   time.Duration
	Running   bool
	Seq       uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Restore builds a stopped Session from the record.
func (r SessionRecord) Restore() *Session {
	return RestoreSession(r.ID, r.Config, r.Elapsed)
}

// SessionStore persists session records.
type SessionStore interface {
	// SaveSession inserts or replaces a record. A stored record with a
	// higher Seq is kept and the call succeeds without writing.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// GetSession returns nil, nil when the ID is unknown.
	GetSession(ctx context.Context, id SessionID) (*SessionRecord, error)

	// ListSessions returns all records ordered by creation time.
	ListSessions(ctx context.Context) ([]SessionRecord, error)

	// DeleteSession removes a record. Unknown IDs are not an error.
	DeleteSession(ctx context.Context, id SessionID) error
}
