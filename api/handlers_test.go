/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Session lifecycle over HTTP (create, start, tick, stop, reset, delete)
- Error statuses (404, 409, 400)
- Rate calculator, presets, timeline, activities
- Ticker and websocket stream
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/mirror"
	"github.com/warp/touchfish/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t        *testing.T
	clock    *earnings.ManualClock
	sessions *earnings.Manager
	handler  *Handler
	router   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := earnings.NewManualClock(t0)
	sessions := earnings.NewManager(store, clock)
	activities := mirror.NewActivities(sessions, store)
	h := NewHandler(sessions, activities, nil, nil)

	return &testServer{
		t:        t,
		clock:    clock,
		sessions: sessions,
		handler:  h,
		router:   NewRouter(h, nil),
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) createHourly(id, rate, tax string) SessionDTO {
	ts.t.Helper()
	rec := ts.do("POST", "/api/sessions", map[string]any{
		"id":    id,
		"label": "work",
		"wage":  map[string]any{"income_type": "hourly", "hourly_rate": rate, "tax_rate": tax},
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionDTO](ts.t, rec)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	dto := ts.createHourly("s1", "28", "11")

	assert.Equal(t, "s1", dto.ID)
	assert.Equal(t, "work", dto.Label)
	assert.False(t, dto.Running)
	assert.Equal(t, "hourly", dto.Wage.IncomeType)
	assert.Equal(t, "0.006922", dto.Snapshot.EarningPerSecond.Round(6).String())
	assert.Equal(t, "0.00", dto.Snapshot.TotalDisplay)
}

func TestCreateSession_NumbersAndGarbage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", "/api/sessions", map[string]any{
		"wage": map[string]any{"income_type": "monthly", "monthly_income": 5000, "tax_rate": "abc", "hours_per_day": 8},
	})

	// Missing days_per_month makes the rate zero; it is not a 400.
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decode[SessionDTO](t, rec)
	assert.NotEmpty(t, dto.ID)
	assert.True(t, dto.Snapshot.EarningPerSecond.IsZero())
}

func TestCreateSession_InvalidBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Invalid request body", resp.Error)
}

func TestCreateSession_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.createHourly("s1", "28", "11")

	rec := ts.do("POST", "/api/sessions", map[string]any{"id": "s1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	// GIVEN: 100/hr at 11% tax
	ts := newTestServer(t)
	ts.createHourly("s1", "100", "11")

	// WHEN: started, run for a minute, stopped
	rec := ts.do("POST", "/api/sessions/s1/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SnapshotDTO](t, rec).Running)

	ts.clock.Advance(30 * time.Second)
	rec = ts.do("POST", "/api/sessions/s1/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30", decode[SnapshotDTO](t, rec).ElapsedSeconds.String())

	ts.clock.Advance(30 * time.Second)
	rec = ts.do("POST", "/api/sessions/s1/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stopped := decode[SnapshotDTO](t, rec)

	// THEN
	assert.False(t, stopped.Running)
	assert.Equal(t, "60", stopped.ElapsedSeconds.String())
	assert.Equal(t, "1.48", stopped.TotalDisplay)

	// Ticking a stopped session changes nothing.
	ts.clock.Advance(time.Hour)
	rec = ts.do("POST", "/api/sessions/s1/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", decode[SnapshotDTO](t, rec).ElapsedSeconds.String())

	// Reset zeroes.
	rec = ts.do("POST", "/api/sessions/s1/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reset := decode[SnapshotDTO](t, rec)
	assert.False(t, reset.Running)
	assert.True(t, reset.TotalEarned.IsZero())
}

func TestGetSession_NotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/snapshot", "/api/sessions/nope/timeline"} {
		rec := ts.do("GET", path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := ts.do("POST", "/api/sessions/nope/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.createHourly("a", "28", "11")
	ts.clock.Advance(time.Second)
	ts.createHourly("b", "28", "11")

	list := decode[[]SessionDTO](t, ts.do("GET", "/api/sessions", nil))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	rec := ts.do("DELETE", "/api/sessions/a", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	list = decode[[]SessionDTO](t, ts.do("GET", "/api/sessions", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	rec = ts.do("DELETE", "/api/sessions/a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CALCULATOR, PRESETS, TIMELINE
// =============================================================================

func TestGetRate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/api/rate?income_type=hourly&hourly_rate=100&tax_rate=11", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RateResponse](t, rec)
	assert.Equal(t, "0.0247", resp.EarningPerSecond.Round(4).String())
	assert.Equal(t, "1.4833", resp.EarningPerMinute.Round(4).String())
	assert.Equal(t, "89", resp.EarningPerHour.Round(2).String())
}

func TestGetRate_MonthlyZeroDays(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/api/rate?income_type=monthly&monthly_income=5000&tax_rate=11&hours_per_day=8&days_per_month=0", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[RateResponse](t, rec).EarningPerSecond.IsZero())
}

func TestGetRate_HugeExponentIsZero(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/api/rate?income_type=hourly&hourly_rate=1e2000000000&tax_rate=11", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RateResponse](t, rec)
	assert.True(t, resp.EarningPerSecond.IsZero())
	assert.True(t, resp.EarningPerHour.IsZero())
}

func TestPresets(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/api/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hourly-default")

	rec = ts.do("POST", "/api/presets/monthly-default/sessions", map[string]any{"start": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decode[SessionDTO](t, rec)
	assert.Equal(t, "monthly-default", dto.Label)
	assert.True(t, dto.Running)
	assert.Equal(t, "monthly", dto.Wage.IncomeType)

	rec = ts.do("POST", "/api/presets/missing/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTimeline(t *testing.T) {
	ts := newTestServer(t)
	ts.createHourly("s1", "36", "0")
	ts.do("POST", "/api/sessions/s1/start", nil)

	rec := ts.do("GET", "/api/sessions/s1/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decode[mirror.Timeline](t, rec)
	assert.Len(t, tl.Entries, 15)
	assert.Equal(t, mirror.ReloadAtEnd, tl.Policy)

	rec = ts.do("GET", "/api/sessions/s1/timeline?step=10&horizon=1m", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[mirror.Timeline](t, rec).Entries, 6)

	rec = ts.do("GET", "/api/sessions/s1/timeline?step=1ms&horizon=24h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("GET", "/api/sessions/s1/timeline?step=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func TestActivities(t *testing.T) {
	ts := newTestServer(t)
	ts.createHourly("s1", "36", "0")

	rec := ts.do("POST", "/api/sessions/s1/activities", map[string]any{"name": "lock screen"})
	require.Equal(t, http.StatusCreated, rec.Code)
	act := decode[ActivityDTO](t, rec)
	assert.Equal(t, "lock screen", act.Name)
	assert.Equal(t, mirror.StatusStarting, act.State.Status)

	// The activity follows the session.
	ts.do("POST", "/api/sessions/s1/start", nil)
	ts.clock.Advance(10 * time.Second)
	ts.do("POST", "/api/sessions/s1/stop", nil)
	eng, err := ts.sessions.Get("s1")
	require.NoError(t, err)
	eng.Flush()

	rec = ts.do("GET", "/api/activities/"+act.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ActivityDTO](t, rec)
	assert.Equal(t, mirror.StatusPaused, got.State.Status)
	assert.Equal(t, "0.1", got.Current.String())

	list := decode[[]ActivityDTO](t, ts.do("GET", "/api/activities?session_id=s1", nil))
	assert.Len(t, list, 1)

	rec = ts.do("DELETE", "/api/activities/"+act.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ActivityDTO](t, rec).Ended)

	rec = ts.do("DELETE", "/api/activities/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do("POST", "/api/sessions/nope/activities", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// TICKER
// =============================================================================

func TestTicker_RunNow(t *testing.T) {
	ts := newTestServer(t)
	ts.createHourly("run", "36", "0")
	ts.createHourly("idle", "36", "0")
	ts.do("POST", "/api/sessions/run/start", nil)

	ticker := NewTicker(ts.sessions, ts.handler.Activities)
	ts.clock.Advance(5 * time.Second)

	assert.Equal(t, 1, ticker.RunNow())

	eng, _ := ts.sessions.Get("run")
	assert.Equal(t, 5*time.Second, eng.Session().Elapsed())
	rec, err := ts.sessions.Record("run")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, rec.Elapsed)
}

func TestTicker_StartStop(t *testing.T) {
	ts := newTestServer(t)
	ticker := NewTicker(ts.sessions, nil)
	ticker.Interval = 10 * time.Millisecond
	ticker.MirrorInterval = 20 * time.Millisecond

	ticker.Start()
	ticker.Start()
	time.Sleep(50 * time.Millisecond)
	ticker.Stop()
	ticker.Stop()
}

func TestTicker_Disabled(t *testing.T) {
	ts := newTestServer(t)
	ticker := NewTicker(ts.sessions, nil)
	ticker.Enabled = false

	ticker.Start()
	ticker.Stop()
}

// =============================================================================
// STREAM
// =============================================================================

func TestStreamSession(t *testing.T) {
	// GIVEN: a hub registered on every engine, served over a real listener
	ts := newTestServer(t)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts.sessions.OnCreate(func(eng *earnings.Engine) { eng.Register("stream", hub) })
	ts.handler.Hub = hub
	ts.createHourly("s1", "36", "0")

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/s1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// THEN: the current snapshot arrives first
	var first SnapshotDTO
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "s1", first.SessionID)
	assert.False(t, first.Running)

	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	// WHEN: the session starts
	_, err = ts.sessions.Start(context.Background(), "s1")
	require.NoError(t, err)

	// THEN: the start is streamed
	var started SnapshotDTO
	require.NoError(t, conn.ReadJSON(&started))
	assert.True(t, started.Running)
	assert.Equal(t, uint64(1), started.Seq)
}

func TestStreamSession_UnknownSession(t *testing.T) {
	ts := newTestServer(t)
	ts.handler.Hub = NewHub()

	rec := ts.do("GET", "/api/sessions/nope/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubPush_AfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// Pushes may still land in the buffer until the closed hub is picked.
	var err error
	for i := 0; i < 300 && err == nil; i++ {
		err = hub.Push(context.Background(), earnings.Snapshot{SessionID: "s1"})
	}
	assert.ErrorIs(t, err, earnings.ErrSinkUnavailable)
}
