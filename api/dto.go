/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  engine's types (durations, unexported session state) from the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  decimal.Decimal marshals as a JSON string ("1.482") so no precision is
  lost in transit. Display rounding is the client's business; the
  *_display fields are a 2-place convenience.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/wage.go: WageJSON request type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/factory"
	"github.com/warp/touchfish/mirror"
)

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSessionRequest creates a session from a raw wage. ID is optional.
type CreateSessionRequest struct {
	ID    string           `json:"id,omitempty"`
	Label string           `json:"label"`
	Wage  factory.WageJSON `json:"wage"`
	Start bool             `json:"start,omitempty"`
}

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Running   bool             `json:"running"`
	Wage      factory.WageJSON `json:"wage"`
	Snapshot  SnapshotDTO      `json:"snapshot"`
	Sinks     int              `json:"sinks"`
	CreatedAt string           `json:"created_at,omitempty"`
}

// SnapshotDTO represents an earnings snapshot.
type SnapshotDTO struct {
	Seq              uint64          `json:"seq"`
	SessionID        string          `json:"session_id"`
	At               time.Time       `json:"at"`
	Running          bool            `json:"running"`
	ElapsedSeconds   decimal.Decimal `json:"elapsed_seconds"`
	EarningPerSecond decimal.Decimal `json:"earning_per_second"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalDisplay     string          `json:"total_display"`
}

func toSnapshotDTO(s earnings.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		Seq:              s.Seq,
		SessionID:        string(s.SessionID),
		At:               s.At,
		Running:          s.Running,
		ElapsedSeconds:   earnings.Seconds(s.Elapsed),
		EarningPerSecond: s.EarningPerSecond,
		TotalEarned:      s.TotalEarned,
		TotalDisplay:     s.TotalEarned.StringFixed(2),
	}
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// StartActivityRequest starts a live activity for a session.
type StartActivityRequest struct {
	Name string `json:"name"`
}

// ActivityDTO represents a live activity. Current is the state extrapolated
// to the time of the response.
type ActivityDTO struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Name      string          `json:"name"`
	Ended     bool            `json:"ended"`
	State     mirror.State    `json:"state"`
	Current   decimal.Decimal `json:"current_total"`
	CreatedAt string          `json:"created_at"`
}

func toActivityDTO(a *mirror.Activity, now time.Time) ActivityDTO {
	st := a.State()
	return ActivityDTO{
		ID:        a.ID,
		SessionID: string(a.SessionID),
		Name:      a.Name,
		Ended:     a.Ended(),
		State:     st,
		Current:   st.TotalAt(now),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// RATE CALCULATOR
// =============================================================================

// RateResponse is the result of the stateless rate calculator.
type RateResponse struct {
	Wage             factory.WageJSON `json:"wage"`
	EarningPerSecond decimal.Decimal  `json:"earning_per_second"`
	EarningPerMinute decimal.Decimal  `json:"earning_per_minute"`
	EarningPerHour   decimal.Decimal  `json:"earning_per_hour"`
}

// =============================================================================
// PRESETS
// =============================================================================

// CreateFromPresetRequest creates a session from a named preset.
type CreateFromPresetRequest struct {
	Label string `json:"label"`
	Start bool   `json:"start,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
