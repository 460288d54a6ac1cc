/*
handlers.go - HTTP API handlers for the earnings service

PURPOSE:
  Exposes the accrual engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the session manager and mirrors.

ENDPOINTS:
  Sessions:
    GET    /api/sessions                  List sessions
    POST   /api/sessions                  Create session from a raw wage
    GET    /api/sessions/{id}             Session details + snapshot
    DELETE /api/sessions/{id}             Delete session (ends its activities)
    POST   /api/sessions/{id}/start       Start accruing
    POST   /api/sessions/{id}/stop        Stop accruing (total latched)
    POST   /api/sessions/{id}/reset       Stop and zero elapsed time
    POST   /api/sessions/{id}/tick        Tick now (client-driven cadence)
    GET    /api/sessions/{id}/snapshot    Current snapshot, no side effects
    GET    /api/sessions/{id}/timeline    Widget timeline
    GET    /api/sessions/{id}/stream      Websocket snapshot stream

  Activities:
    POST   /api/sessions/{id}/activities  Start a live activity
    GET    /api/activities                List activities (?session_id=)
    GET    /api/activities/{id}           Activity details
    DELETE /api/activities/{id}           End activity

  Presets:
    GET    /api/presets                   List wage presets
    POST   /api/presets/{name}/sessions   Create session from preset

  Calculator:
    GET    /api/rate                      Rate from raw query fields

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid request body
  - 404: Session, activity or preset not found
  - 409: Duplicate session ID
  - 500: Internal errors
  Wage fields are never a 400: unparsable numbers become zero.

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: Websocket hub
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/factory"
	"github.com/warp/touchfish/mirror"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sessions    *earnings.Manager
	Activities  *mirror.Activities
	Presets     *factory.PresetRegistry
	WageFactory *factory.WageFactory
	Hub         *Hub
}

// NewHandler creates a handler. hub may be nil to disable streaming.
func NewHandler(sessions *earnings.Manager, activities *mirror.Activities, presets *factory.PresetRegistry, hub *Hub) *Handler {
	if presets == nil {
		presets = factory.NewPresetRegistry(factory.DefaultPresets()...)
	}
	return &Handler{
		Sessions:    sessions,
		Activities:  activities,
		Presets:     presets,
		WageFactory: factory.NewWageFactory(),
		Hub:         hub,
	}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns all sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	engines := h.Sessions.List()
	dtos := make([]SessionDTO, len(engines))
	for i, eng := range engines {
		dtos[i] = h.toSessionDTO(eng)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSession creates a session from a raw wage.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg := h.WageFactory.Build(req.Wage)
	h.createSession(w, r, earnings.SessionID(req.ID), req.Label, cfg, req.Start)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, id earnings.SessionID, label string, cfg earnings.WageConfig, start bool) {
	eng, err := h.Sessions.CreateWithID(r.Context(), id, label, cfg)
	if err != nil {
		writeDomainError(w, "Failed to create session", err)
		return
	}

	if start {
		if _, err := h.Sessions.Start(r.Context(), eng.ID()); err != nil {
			writeDomainError(w, "Failed to start session", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, h.toSessionDTO(eng))
}

// GetSession returns a single session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toSessionDTO(eng))
}

// DeleteSession ends the session's activities and removes it.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := earnings.SessionID(chi.URLParam(r, "id"))
	if _, err := h.Sessions.Get(id); err != nil {
		writeDomainError(w, "Session not found", err)
		return
	}

	if h.Activities != nil {
		h.Activities.EndForSession(r.Context(), id)
	}
	if err := h.Sessions.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession moves a session to running.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Sessions.Start)
}

// StopSession moves a session to stopped.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Sessions.Stop)
}

// ResetSession stops a session and clears its elapsed time.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Sessions.Reset)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id earnings.SessionID) (earnings.Snapshot, error)) {
	id := earnings.SessionID(chi.URLParam(r, "id"))
	snap, err := fn(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Transition failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// TickSession advances a running session to now. A stopped session is
// returned unchanged with 200; ticking it is a no-op, not an error.
func (h *Handler) TickSession(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFromURL(w, r)
	if !ok {
		return
	}
	snap, _ := eng.Tick()
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// GetSnapshot returns the session's current snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(eng.Snapshot()))
}

const maxTimelineEntries = 1000

// GetTimeline returns widget timeline entries for a session.
// Query: step and horizon as Go durations (default 20s / 300s).
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engineFromURL(w, r)
	if !ok {
		return
	}

	step, err := durationParam(r, "step", mirror.DefaultTimelineStep)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid step", err)
		return
	}
	horizon, err := durationParam(r, "horizon", mirror.DefaultTimelineHorizon)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid horizon", err)
		return
	}
	if step <= 0 || horizon <= 0 || horizon/step > maxTimelineEntries {
		writeError(w, http.StatusBadRequest, "Timeline too large", nil)
		return
	}

	st := mirror.FromSnapshot(eng.Snapshot())
	now := h.Sessions.Clock().Now()
	writeJSON(w, http.StatusOK, mirror.BuildTimeline(st, now, step, horizon))
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

// StartActivity starts a live activity mirroring a session.
func (h *Handler) StartActivity(w http.ResponseWriter, r *http.Request) {
	id := earnings.SessionID(chi.URLParam(r, "id"))

	var req StartActivityRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	a, err := h.Activities.Request(r.Context(), id, req.Name)
	if err != nil {
		writeDomainError(w, "Failed to start activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(a, h.Sessions.Clock().Now()))
}

// ListActivities returns activities, optionally for one session.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	sessionID := earnings.SessionID(r.URL.Query().Get("session_id"))
	now := h.Sessions.Clock().Now()

	activities := h.Activities.List(sessionID)
	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = toActivityDTO(a, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetActivity returns one activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.Activities.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Activity not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(a, h.Sessions.Clock().Now()))
}

// EndActivity ends a live activity. Ending twice is not an error.
func (h *Handler) EndActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.Activities.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to end activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(a, h.Sessions.Clock().Now()))
}

// =============================================================================
// PRESET HANDLERS
// =============================================================================

// ListPresets returns all wage presets.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Presets.List())
}

// CreateFromPreset creates a session from a named preset.
func (h *Handler) CreateFromPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	preset, ok := h.Presets.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Preset not found", nil)
		return
	}

	var req CreateFromPresetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.Label == "" {
		req.Label = preset.Name
	}

	h.createSession(w, r, "", req.Label, h.WageFactory.Build(preset.Wage), req.Start)
}

// =============================================================================
// CALCULATOR
// =============================================================================

// GetRate computes the earning rate from raw query fields, exactly as they
// would be typed: ?income_type=hourly&hourly_rate=28&tax_rate=11
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wage := factory.WageJSON{
		IncomeType:    q.Get("income_type"),
		HourlyRate:    factory.NumberText(q.Get("hourly_rate")),
		MonthlyIncome: factory.NumberText(q.Get("monthly_income")),
		TaxRate:       factory.NumberText(q.Get("tax_rate")),
		HoursPerDay:   factory.NumberText(q.Get("hours_per_day")),
		DaysPerMonth:  factory.NumberText(q.Get("days_per_month")),
	}
	cfg := h.WageFactory.Build(wage)
	rate := earnings.EarningPerSecond(cfg)

	writeJSON(w, http.StatusOK, RateResponse{
		Wage:             factory.ToJSON(cfg),
		EarningPerSecond: rate,
		EarningPerMinute: earnings.Accrue(time.Minute, rate),
		EarningPerHour:   earnings.Accrue(time.Hour, rate),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) engineFromURL(w http.ResponseWriter, r *http.Request) (*earnings.Engine, bool) {
	eng, err := h.Sessions.Get(earnings.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Session not found", err)
		return nil, false
	}
	return eng, true
}

func (h *Handler) toSessionDTO(eng *earnings.Engine) SessionDTO {
	s := eng.Session()
	dto := SessionDTO{
		ID:       string(s.ID()),
		Label:    h.Sessions.Label(s.ID()),
		Running:  s.Running(),
		Wage:     factory.ToJSON(s.Config()),
		Snapshot: toSnapshotDTO(eng.Snapshot()),
		Sinks:    eng.SinkCount(),
	}
	if created := h.Sessions.CreatedAt(s.ID()); !created.IsZero() {
		dto.CreatedAt = created.Format(time.RFC3339)
	}
	return dto
}

func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and mirror errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case earnings.IsNotFound(err), errors.Is(err, mirror.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case earnings.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
