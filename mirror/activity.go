package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/touchfish/earnings"
)

var (
	// ErrActivityNotFound is returned for unknown activity IDs.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrActivityEnded is returned when updating an ended activity. It wraps
	// earnings.ErrSinkUnavailable so the engine drops it quietly.
	ErrActivityEnded = fmt.Errorf("activity ended: %w", earnings.ErrSinkUnavailable)
)

// =============================================================================
// ACTIVITY - One live presentation bound to a session
// =============================================================================

// Activity is an external live presentation. Its creator owns it; an engine
// only pushes to it while registered.
type Activity struct {
	ID        string
	SessionID earnings.SessionID
	Name      string
	CreatedAt time.Time

	mu         sync.RWMutex
	state      State
	ended      bool
	endedAt    time.Time
	deregister func()
}

// Push implements earnings.Sink. Older snapshots (by Seq) are ignored, so
// overlapping deliveries settle on the newest one.
func (a *Activity) Push(_ context.Context, snap earnings.Snapshot) error {
	return a.Update(FromSnapshot(snap))
}

// Update replaces the activity content if st is newer than what it holds.
func (a *Activity) Update(st State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ended {
		return ErrActivityEnded
	}
	if st.Seq < a.state.Seq {
		return nil
	}
	a.state = st
	return nil
}

// State returns the last content pushed.
func (a *Activity) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Ended reports whether the activity has been ended.
func (a *Activity) Ended() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ended
}

func (a *Activity) end(at time.Time) bool {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return false
	}
	a.ended = true
	a.endedAt = at
	a.state.Status = StatusEnded
	dereg := a.deregister
	a.deregister = nil
	a.mu.Unlock()

	if dereg != nil {
		dereg()
	}
	return true
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

// ActivityRecord is the persisted form of an Activity.
type ActivityRecord struct {
	ID        string
	SessionID earnings.SessionID
	Name      string
	State     State
	Ended     bool
	CreatedAt time.Time
	EndedAt   *time.Time
}

// ActivityStore persists activity records.
type ActivityStore interface {
	SaveActivity(ctx context.Context, rec ActivityRecord) error
	ListActivities(ctx context.Context) ([]ActivityRecord, error)
}

// =============================================================================
// ACTIVITIES - Manager of live presentations
// =============================================================================

// Activities creates, refreshes and ends activities for sessions held by a
// Manager.
type Activities struct {
	mu         sync.RWMutex
	activities map[string]*Activity
	sessions   *earnings.Manager
	store      ActivityStore
}

// NewActivities creates a manager. store may be nil.
func NewActivities(sessions *earnings.Manager, store ActivityStore) *Activities {
	return &Activities{
		activities: make(map[string]*Activity),
		sessions:   sessions,
		store:      store,
	}
}

// Request starts a live activity for a session and registers it as a sink.
// The initial state is the session's current snapshot with status "starting".
func (as *Activities) Request(ctx context.Context, sessionID earnings.SessionID, name string) (*Activity, error) {
	eng, err := as.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	initial := FromSnapshot(eng.Snapshot())
	initial.Status = StatusStarting

	a := &Activity{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		CreatedAt: as.sessions.Clock().Now().UTC(),
		state:     initial,
	}
	a.deregister = eng.Register("activity:"+a.ID, a)

	as.mu.Lock()
	as.activities[a.ID] = a
	as.mu.Unlock()

	if err := as.save(ctx, a); err != nil {
		a.end(a.CreatedAt)
		as.mu.Lock()
		delete(as.activities, a.ID)
		as.mu.Unlock()
		return nil, err
	}

	log.Printf("[Activities] started %s for session %s", a.ID, sessionID)
	return a, nil
}

// Get returns an activity by ID.
func (as *Activities) Get(id string) (*Activity, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	a, ok := as.activities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, id)
	}
	return a, nil
}

// List returns all activities, optionally only those of one session.
func (as *Activities) List(sessionID earnings.SessionID) []*Activity {
	as.mu.RLock()
	out := make([]*Activity, 0, len(as.activities))
	for _, a := range as.activities {
		if sessionID == "" || a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	as.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// End deregisters the activity from its engine and marks it ended.
// Ending twice is a no-op.
func (as *Activities) End(ctx context.Context, id string) (*Activity, error) {
	a, err := as.Get(id)
	if err != nil {
		return nil, err
	}
	if !a.end(as.sessions.Clock().Now().UTC()) {
		return a, nil
	}
	if err := as.save(ctx, a); err != nil {
		return a, err
	}
	log.Printf("[Activities] ended %s", id)
	return a, nil
}

// EndForSession ends every activity bound to a session.
func (as *Activities) EndForSession(ctx context.Context, sessionID earnings.SessionID) int {
	ended := 0
	for _, a := range as.List(sessionID) {
		if a.Ended() {
			continue
		}
		if _, err := as.End(ctx, a.ID); err != nil {
			log.Printf("[Activities] end %s: %v", a.ID, err)
			continue
		}
		ended++
	}
	return ended
}

// Refresh pushes the current snapshot of each live activity's session.
// It runs on the coarse mirror cadence so stopped sessions, which never
// tick, still reach their activities after a restart.
func (as *Activities) Refresh(ctx context.Context) int {
	refreshed := 0
	for _, a := range as.List("") {
		if a.Ended() {
			continue
		}
		eng, err := as.sessions.Get(a.SessionID)
		if err != nil {
			// Session deleted underneath the activity.
			if _, err := as.End(ctx, a.ID); err != nil {
				log.Printf("[Activities] end orphan %s: %v", a.ID, err)
			}
			continue
		}
		if err := a.Push(ctx, eng.Snapshot()); err != nil {
			continue
		}
		if err := as.save(ctx, a); err != nil {
			log.Printf("[Activities] save %s: %v", a.ID, err)
		}
		refreshed++
	}
	return refreshed
}

// Load restores stored activities. Live ones are re-registered on their
// session's engine with their Seq capped at the engine's, so the next push
// is accepted; ones whose session is gone are ended. Sessions must be
// loaded first.
func (as *Activities) Load(ctx context.Context) (int, error) {
	if as.store == nil {
		return 0, nil
	}
	recs, err := as.store.ListActivities(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list activities: %w", err)
	}

	loaded := 0
	for _, rec := range recs {
		a := &Activity{
			ID:        rec.ID,
			SessionID: rec.SessionID,
			Name:      rec.Name,
			CreatedAt: rec.CreatedAt,
			state:     rec.State,
			ended:     rec.Ended,
		}
		if rec.EndedAt != nil {
			a.endedAt = *rec.EndedAt
		}
		if !a.ended {
			eng, err := as.sessions.Get(rec.SessionID)
			if err != nil {
				a.ended = true
				a.endedAt = as.sessions.Clock().Now().UTC()
				a.state.Status = StatusEnded
				if err := as.save(ctx, a); err != nil {
					log.Printf("[Activities] save orphan %s: %v", a.ID, err)
				}
			} else {
				// The engine is the only Seq authority in this process.
				if seq := eng.Seq(); a.state.Seq > seq {
					a.state.Seq = seq
				}
				a.deregister = eng.Register("activity:"+a.ID, a)
			}
		}

		as.mu.Lock()
		as.activities[a.ID] = a
		as.mu.Unlock()
		loaded++
	}
	return loaded, nil
}

func (as *Activities) save(ctx context.Context, a *Activity) error {
	if as.store == nil {
		return nil
	}
	a.mu.RLock()
	rec := ActivityRecord{
		ID:        a.ID,
		SessionID: a.SessionID,
		Name:      a.Name,
		State:     a.state,
		Ended:     a.ended,
		CreatedAt: a.CreatedAt,
	}
	if a.ended {
		t := a.endedAt
		rec.EndedAt = &t
	}
	a.mu.RUnlock()

	if err := as.store.SaveActivity(ctx, rec); err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}
