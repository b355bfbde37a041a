package sink

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqguard/seqguard/internal/action"
)

func testDetection(ruleID, session, severity string) *action.Detection {
	return &action.Detection{
		ID:        uuid.New(),
		RuleID:    ruleID,
		SessionID: session,
		Severity:  severity,
		Actions: []action.Ref{
			{SequenceNo: 3, Type: action.FileRead, Target: "/etc/passwd"},
			{SequenceNo: 5, Type: action.NetworkRequest, Target: "evil.example"},
		},
		Explanation: "matched read then send",
		DetectedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recordingSink struct {
	mu   sync.Mutex
	seen []*action.Detection
}

func (r *recordingSink) Report(det *action.Detection) {
	r.mu.Lock()
	r.seen = append(r.seen, det)
	r.mu.Unlock()
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	d := NewDispatcher(16)
	a := &recordingSink{}
	b := &recordingSink{}
	d.Add(a)
	d.Add(b)

	d.Report(testDetection("R-1", "s1", "high"))
	d.Report(testDetection("R-2", "s1", "low"))
	d.Close()

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
}

func TestDispatcherIsolatesPanickingSink(t *testing.T) {
	d := NewDispatcher(16)
	healthy := &recordingSink{}
	d.Add(Func(func(det *action.Detection) {
		panic("sink exploded")
	}))
	d.Add(healthy)

	d.Report(testDetection("R-1", "s1", "high"))
	d.Close()

	assert.Equal(t, 1, healthy.count(), "panicking sink must not starve others")
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(4)
	d.Close()
	assert.NotPanics(t, func() { d.Close() })
}

func TestStoreRoundtrip(t *testing.T) {
	store, err := OpenStore(t.TempDir() + "/detections.db")
	require.NoError(t, err)
	defer store.Close()

	store.Report(testDetection("AK-010", "sess-a", "critical"))
	store.Report(testDetection("AK-032", "sess-a", "high"))
	store.Report(testDetection("AK-010", "sess-b", "critical"))

	all, err := store.Query(QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	got := all[0]
	assert.Equal(t, "matched read then send", got.Explanation)
	require.Len(t, got.Actions, 2)
	assert.Equal(t, uint64(3), got.Actions[0].SequenceNo)
	assert.Equal(t, action.NetworkRequest, got.Actions[1].Type)
}

func TestStoreQueryFilters(t *testing.T) {
	store, err := OpenStore(t.TempDir() + "/detections.db")
	require.NoError(t, err)
	defer store.Close()

	early := testDetection("AK-010", "sess-a", "critical")
	late := testDetection("AK-032", "sess-b", "high")
	late.DetectedAt = early.DetectedAt.Add(time.Hour)
	store.Report(early)
	store.Report(late)

	byRule, err := store.Query(QueryOpts{RuleID: "AK-010"})
	require.NoError(t, err)
	require.Len(t, byRule, 1)
	assert.Equal(t, "sess-a", byRule[0].SessionID)

	bySession, err := store.Query(QueryOpts{SessionID: "sess-b"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)

	bySeverity, err := store.Query(QueryOpts{Severity: "critical"})
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)

	since, err := store.Query(QueryOpts{Since: early.DetectedAt.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "AK-032", since[0].RuleID)

	limited, err := store.Query(QueryOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	// Most recent first.
	assert.Equal(t, "AK-032", limited[0].RuleID)
}
