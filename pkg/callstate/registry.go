// Package callstate is the call session registry: a concurrent table from
// call identifier to per-call state.
//
// Each entry carries its own lock, so writes to one call are serialized
// while different calls never contend beyond the short map lookup. Callers
// never hold *Session pointers; they read snapshots and mutate through
// Update or Do.
//
//	reg := callstate.New(callstate.WithGracePeriod(5 * time.Second))
//	go reg.Run(ctx)
//
//	reg.SetStreamID("CA123", "MZ999")
//	sid := reg.StreamID("CA123")
package callstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/protocol"
)

// Sentinel errors.
var (
	// ErrUnknownCall is returned by Do when the call has no entry.
	ErrUnknownCall = errors.New("callstate: unknown call")

	// ErrFieldType is returned by Set when the value does not fit the field.
	ErrFieldType = errors.New("callstate: wrong value type for field")
)

// Field names a session attribute for Get and Set.
type Field string

const (
	FieldStreamID Field = "streamId"
	FieldLink     Field = "transport"
	FieldState    Field = "state"
	FieldProvider Field = "provider"
)

type entry struct {
	mu      sync.Mutex
	session Session

	// synth is a single-slot semaphore: one pending synthesis per call.
	synth chan struct{}

	evictTimer *time.Timer
}

// Registry maps call identifiers to sessions.
type Registry struct {
	cfg    *Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	created atomic.Uint64
	evicted atomic.Uint64
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Registry{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "callstate"),
		entries: make(map[string]*entry),
	}
}

func (r *Registry) lookup(callID string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[callID]
	r.mu.RUnlock()
	return e, ok
}

func (r *Registry) ensureEntry(callID string) *entry {
	if e, ok := r.lookup(callID); ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[callID]; ok {
		return e
	}

	now := r.cfg.Now()
	e := &entry{
		session: Session{
			CallID:       callID,
			State:        StateIdle,
			Started:      now,
			LastActivity: now,
		},
		synth: make(chan struct{}, 1),
	}
	r.entries[callID] = e
	r.created.Add(1)
	return e
}

// Ensure returns the session for callID, creating it if needed.
func (r *Registry) Ensure(callID string) Session {
	e := r.ensureEntry(callID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone()
}

// View returns a snapshot of the session without creating it.
func (r *Registry) View(callID string) (Session, bool) {
	e, ok := r.lookup(callID)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), true
}

// Get reads one field. Unknown calls and unset fields yield the field's
// zero value: "" for the stream ID, nil for the link, StateIdle, and an
// empty ProviderState. Get never creates an entry.
func (r *Registry) Get(callID string, field Field) any {
	s, _ := r.View(callID)
	switch field {
	case FieldStreamID:
		return s.StreamID
	case FieldLink:
		if s.Link == nil {
			return nil
		}
		return s.Link
	case FieldState:
		return s.State
	case FieldProvider:
		return s.Provider
	default:
		return nil
	}
}

// Set writes one field, creating the session if needed. Last writer wins.
func (r *Registry) Set(callID string, field Field, value any) error {
	var apply func(*Session)

	switch field {
	case FieldStreamID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldType, field)
		}
		apply = func(s *Session) { s.StreamID = v }
	case FieldLink:
		if value == nil {
			apply = func(s *Session) { s.Link = nil }
			break
		}
		v, ok := value.(protocol.Link)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldType, field)
		}
		apply = func(s *Session) { s.Link = v }
	case FieldState:
		v, ok := value.(State)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldType, field)
		}
		apply = func(s *Session) { s.State = v }
	case FieldProvider:
		v, ok := value.(ProviderState)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldType, field)
		}
		apply = func(s *Session) { s.Provider = v }
	default:
		return fmt.Errorf("%w: unknown field %q", ErrFieldType, field)
	}

	r.Update(callID, apply)
	return nil
}

// StreamID returns the stream identifier, or "" when unset.
func (r *Registry) StreamID(callID string) string {
	return r.Get(callID, FieldStreamID).(string)
}

// SetStreamID records the stream identifier.
func (r *Registry) SetStreamID(callID, streamID string) {
	r.Update(callID, func(s *Session) { s.StreamID = streamID })
}

// Link returns the transport handle, or nil when unset.
func (r *Registry) Link(callID string) protocol.Link {
	if l, ok := r.Get(callID, FieldLink).(protocol.Link); ok {
		return l
	}
	return nil
}

// SetLink records the transport handle.
func (r *Registry) SetLink(callID string, link protocol.Link) {
	r.Update(callID, func(s *Session) { s.Link = link })
}

// Update mutates the session under its lock, creating it if needed.
func (r *Registry) Update(callID string, fn func(*Session)) {
	e := r.ensureEntry(callID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	e.session.LastActivity = r.cfg.Now()
}

// Do runs fn under the session lock if the session exists. It is the
// per-call ordering domain: interrupts and relays that must not interleave
// both go through Do.
func (r *Registry) Do(callID string, fn func(*Session) error) error {
	e, ok := r.lookup(callID)
	if !ok {
		return ErrUnknownCall
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.session)
}

// Touch records activity without changing anything else.
func (r *Registry) Touch(callID string) {
	e, ok := r.lookup(callID)
	if !ok {
		return
	}
	e.mu.Lock()
	e.session.LastActivity = r.cfg.Now()
	e.mu.Unlock()
}

// AcquireSynthesis reserves the call's single synthesis slot. The returned
// release func must be called exactly once.
func (r *Registry) AcquireSynthesis(ctx context.Context, callID string) (func(), error) {
	e, ok := r.lookup(callID)
	if !ok {
		return nil, ErrUnknownCall
	}

	select {
	case e.synth <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-e.synth })
	}, nil
}

// Evict removes the session. Evicting an unknown call is a no-op.
func (r *Registry) Evict(callID string) {
	r.mu.Lock()
	e, ok := r.entries[callID]
	if ok {
		delete(r.entries, callID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	e.mu.Unlock()

	r.evicted.Add(1)
	r.logger.Debug("session evicted", "call_id", callID)
}

// EvictAfter schedules eviction after d, or the configured grace period when
// d is zero. Scheduling again replaces the earlier timer.
func (r *Registry) EvictAfter(callID string, d time.Duration) {
	if d == 0 {
		d = r.cfg.GracePeriod
	}
	if d < 0 {
		r.Evict(callID)
		return
	}

	e, ok := r.lookup(callID)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evictTimer != nil {
		e.evictTimer.Stop()
	}
	e.evictTimer = time.AfterFunc(d, func() {
		r.evictEntry(callID, e)
	})
}

// evictEntry removes callID only if it still maps to e.
func (r *Registry) evictEntry(callID string, e *entry) {
	r.mu.Lock()
	current, ok := r.entries[callID]
	if ok && current == e {
		delete(r.entries, callID)
	}
	r.mu.Unlock()

	if ok && current == e {
		r.evicted.Add(1)
		r.logger.Debug("session evicted after grace", "call_id", callID)
	}
}

// Sweep evicts sessions idle longer than the idle timeout and returns how
// many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}

	r.mu.RLock()
	var stale []string
	for id, e := range r.entries {
		e.mu.Lock()
		idle := now.Sub(e.session.LastActivity)
		e.mu.Unlock()
		if idle > r.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.logger.Info("evicting idle session", "call_id", id)
		r.Evict(id)
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.cfg.Now())
		}
	}
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the call identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns copies of all sessions, ordered by call ID.
func (r *Registry) Snapshot() []Session {
	ids := r.IDs()
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.View(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Stats contains registry counters.
type Stats struct {
	Active  int    `json:"active"`
	Created uint64 `json:"created"`
	Evicted uint64 `json:"evicted"`
}

// GetStats returns registry counters.
func (r *Registry) GetStats() Stats {
	return Stats{
		Active:  r.Len(),
		Created: r.created.Load(),
		Evicted: r.evicted.Load(),
	}
}
