// Package tracker owns per-session match state. Sessions are fully
// independent: each holds its own rule snapshot reference, one engine
// state per rule, and a bounded ring of recent actions. All ordering
// and window semantics are scoped to a session; the caller ingests a
// session's actions in increasing sequence_no order.
package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/engine"
	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/rule"
)

// ErrSessionClosed is returned when an action arrives for a session
// that was explicitly closed. Closed sessions never produce
// detections from later actions.
var ErrSessionClosed = errors.New("session closed")

// Reporter receives detections as they fire. Report must not block;
// the dispatcher in the sink package satisfies this.
type Reporter interface {
	Report(det *action.Detection)
}

// Config tunes session lifecycle.
type Config struct {
	// IdleTTL evicts sessions with no activity for this long. Zero
	// disables idle eviction (explicit Close still releases state).
	IdleTTL time.Duration
	// SweepInterval is how often Run checks for idle sessions.
	SweepInterval time.Duration
	// MinHistory is the floor for the per-session recent-action ring;
	// the ring grows to the largest action-count window across loaded
	// rules when that is bigger.
	MinHistory int
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
		MinHistory:    64,
	}
}

// Tracker routes actions to per-session state and collects the
// detections each ingest produces.
type Tracker struct {
	cfg      Config
	snapshot atomic.Pointer[rule.Snapshot]
	reporter Reporter

	mu       sync.Mutex
	sessions map[string]*session

	ingested atomic.Uint64
}

type session struct {
	mu        sync.Mutex
	snap      *rule.Snapshot
	states    []engine.State
	history   *ring
	createdAt time.Time
	lastSeen  time.Time
	lastSeq   uint64
	actions   uint64
	closed    bool
}

// New creates a tracker evaluating against the given immutable rule
// snapshot. reporter may be nil.
func New(snap *rule.Snapshot, cfg Config, reporter Reporter) *Tracker {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultConfig().MinHistory
	}
	t := &Tracker{
		cfg:      cfg,
		reporter: reporter,
		sessions: make(map[string]*session),
	}
	t.snapshot.Store(snap)
	return t
}

// SetSnapshot installs a new rule snapshot. Existing sessions keep
// the snapshot they started with; only sessions created afterward see
// the new rules.
func (t *Tracker) SetSnapshot(snap *rule.Snapshot) {
	t.snapshot.Store(snap)
}

// Snapshot returns the snapshot new sessions will use.
func (t *Tracker) Snapshot() *rule.Snapshot {
	return t.snapshot.Load()
}

// Ingest evaluates one action against every rule for its session and
// returns the detections it triggered, in rule load order. Actions
// without a session_id are ignored: malformed input is a non-match,
// never a fault.
func (t *Tracker) Ingest(a *action.Action) ([]*action.Detection, error) {
	if a == nil || a.SessionID == "" {
		logger.Debug().Msg("Dropping action without session_id")
		return nil, nil
	}

	sess := t.getOrCreate(a.SessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return nil, ErrSessionClosed
	}

	sess.lastSeen = time.Now()
	sess.lastSeq = a.SequenceNo
	sess.actions++
	sess.history.add(a)
	t.ingested.Add(1)

	var dets []*action.Detection
	for i, r := range sess.snap.Rules() {
		st, det := engine.Evaluate(r, sess.states[i], a)
		sess.states[i] = st
		if det != nil {
			dets = append(dets, det)
		}
	}

	for _, det := range dets {
		logger.Debug().
			Str("rule_id", det.RuleID).
			Str("session_id", det.SessionID).
			Uint64("sequence_no", det.TriggeredBy()).
			Msg("Rule fired")
		if t.reporter != nil {
			t.reporter.Report(det)
		}
	}
	return dets, nil
}

// Close marks a session closed and releases its match state. It is
// linearizable with in-flight Ingest calls for the same session: once
// Close returns, no later action can produce a detection. A closed
// session's entry stays behind as a tombstone (so the ID cannot be
// silently reopened) until the sweep removes it. Returns false if the
// session was unknown.
func (t *Tracker) Close(sessionID string) bool {
	t.mu.Lock()
	sess, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return false
	}
	sess.closed = true
	sess.states = nil
	sess.history = nil
	return true
}

// Sweep evicts sessions idle longer than IdleTTL, plus closed-session
// tombstones, and returns how many entries were released. Eviction
// never affects detections already emitted.
func (t *Tracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.cfg.IdleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, sess := range t.sessions {
		sess.mu.Lock()
		gone := sess.closed || (t.cfg.IdleTTL > 0 && sess.lastSeen.Before(cutoff))
		if gone {
			sess.closed = true
			sess.states = nil
			sess.history = nil
		}
		sess.mu.Unlock()
		if gone {
			delete(t.sessions, id)
			evicted++
			logger.Debug().Str("session_id", id).Msg("Evicted session state")
		}
	}
	return evicted
}

// Run sweeps idle sessions periodically until the context is
// canceled.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(time.Now())
		}
	}
}

func (t *Tracker) getOrCreate(sessionID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.sessions[sessionID]; ok {
		return sess
	}

	snap := t.snapshot.Load()
	states := make([]engine.State, snap.Len())
	for i, r := range snap.Rules() {
		states[i] = engine.NewState(r)
	}
	capacity := t.cfg.MinHistory
	if w := snap.MaxWindowActions(); w > capacity {
		capacity = w
	}
	sess := &session{
		snap:      snap,
		states:    states,
		history:   newRing(capacity),
		createdAt: time.Now(),
		lastSeen:  time.Now(),
	}
	t.sessions[sessionID] = sess
	return sess
}

// SessionInfo summarizes one live session.
type SessionInfo struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	LastSeq    uint64    `json:"last_sequence_no"`
	Actions    uint64    `json:"action_count"`
}

// Sessions lists live sessions.
func (t *Tracker) Sessions() []SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SessionInfo, 0, len(t.sessions))
	for id, sess := range t.sessions {
		sess.mu.Lock()
		if sess.closed {
			sess.mu.Unlock()
			continue
		}
		out = append(out, SessionInfo{
			SessionID:  id,
			CreatedAt:  sess.createdAt,
			LastSeenAt: sess.lastSeen,
			LastSeq:    sess.lastSeq,
			Actions:    sess.actions,
		})
		sess.mu.Unlock()
	}
	return out
}

// Recent returns the session's buffered recent actions, oldest first.
func (t *Tracker) Recent(sessionID string) []*action.Action {
	t.mu.Lock()
	sess, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.history == nil {
		return nil
	}
	return sess.history.snapshot()
}

// Ingested returns the total number of actions accepted.
func (t *Tracker) Ingested() uint64 { return t.ingested.Load() }
