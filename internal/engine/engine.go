// Package engine implements the stateful incremental matcher. All
// evaluation is a pure function of (rule, state, action): the engine
// holds no hidden state, never fails on malformed actions, and never
// lets one rule's progress observe another's.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/rule"
)

// State is the partial-match bookkeeping for one (session, rule)
// pair: the next unsatisfied step, per-step qualifying counts, the
// candidate action chain, and the window anchor. Evaluate treats its
// input State as immutable and returns a replacement, which keeps
// in-flight state trivially serializable and replay deterministic.
type State struct {
	NextStep   int
	Counts     []int
	Matched    []action.Ref
	AnchorSeq  uint64
	AnchorTime time.Time
}

// NewState returns the empty (re-armed) state for a rule.
func NewState(r *rule.Rule) State {
	return State{Counts: make([]int, len(r.Steps))}
}

func (s State) clone() State {
	out := s
	out.Counts = append([]int(nil), s.Counts...)
	out.Matched = append([]action.Ref(nil), s.Matched...)
	return out
}

// anchored reports whether the pattern has started matching.
func (s State) anchored() bool { return len(s.Matched) > 0 }

// Evaluate advances one rule's state with one action and reports a
// detection when the rule's pattern completes. After firing, the
// returned state is reset so the rule can fire again later in the
// same session.
func Evaluate(r *rule.Rule, s State, a *action.Action) (State, *action.Detection) {
	switch {
	case r.IsThreshold():
		return evaluateThreshold(r, s, a)
	case r.Ordering == rule.Unordered:
		return evaluateUnordered(r, s, a)
	default:
		return evaluateOrdered(r, s, a)
	}
}

func evaluateOrdered(r *rule.Rule, s State, a *action.Action) (State, *action.Detection) {
	s = s.clone()

	// A window expiry discards the whole partial chain; no partial
	// credit survives. The current action is then re-tested from step
	// 0 so it may re-anchor a fresh chain.
	if s.anchored() && (exceeded(r.Within, s.AnchorSeq, s.AnchorTime, a) || gapExceeded(r, s, a)) {
		s = NewState(r)
	}

	cond := &r.Steps[s.NextStep]
	if !Matches(cond, a) {
		return s, nil
	}

	if !s.anchored() {
		s.AnchorSeq, s.AnchorTime = a.SequenceNo, a.Timestamp
	}
	s.Matched = append(s.Matched, a.Summarize())
	s.Counts[s.NextStep]++
	if s.Counts[s.NextStep] >= cond.RequiredCount() {
		s.NextStep++
	}
	if s.NextStep < len(r.Steps) {
		return s, nil
	}

	det := newDetection(r, a, s.Matched)
	return NewState(r), det
}

func evaluateUnordered(r *rule.Rule, s State, a *action.Action) (State, *action.Detection) {
	s = s.clone()

	if s.anchored() && exceeded(r.Within, s.AnchorSeq, s.AnchorTime, a) {
		s = NewState(r)
	}

	// Steps are tracked independently; one action may credit every
	// step it satisfies.
	credited := false
	for i := range r.Steps {
		cond := &r.Steps[i]
		if s.Counts[i] >= cond.RequiredCount() {
			continue
		}
		if Matches(cond, a) {
			s.Counts[i]++
			credited = true
		}
	}
	if !credited {
		return s, nil
	}

	if !s.anchored() {
		s.AnchorSeq, s.AnchorTime = a.SequenceNo, a.Timestamp
	}
	s.Matched = append(s.Matched, a.Summarize())

	for i := range r.Steps {
		if s.Counts[i] < r.Steps[i].RequiredCount() {
			return s, nil
		}
	}
	det := newDetection(r, a, s.Matched)
	return NewState(r), det
}

func evaluateThreshold(r *rule.Rule, s State, a *action.Action) (State, *action.Detection) {
	s = s.clone()
	cond := &r.Steps[0]
	w := r.EffectiveWindow()

	// Slide the window: drop qualifying actions no longer within the
	// last K actions (or span), counted by sequence_no so replay under
	// out-of-order wall clocks stays deterministic.
	if !w.IsZero() && len(s.Matched) > 0 {
		kept := s.Matched[:0]
		for _, ref := range s.Matched {
			if w.Actions > 0 && a.SequenceNo-ref.SequenceNo >= uint64(w.Actions) {
				continue
			}
			if w.Span > 0 && !ref.Timestamp.IsZero() && a.Timestamp.Sub(ref.Timestamp) > w.Span {
				continue
			}
			kept = append(kept, ref)
		}
		s.Matched = kept
	}

	if !Matches(cond, a) {
		return s, nil
	}
	s.Matched = append(s.Matched, a.Summarize())
	if len(s.Matched) < cond.RequiredCount() {
		return s, nil
	}

	// Counter resets after firing (re-arm): the next qualifying run
	// counts from zero.
	det := newDetection(r, a, s.Matched)
	return NewState(r), det
}

// exceeded reports whether the action falls outside a window anchored
// at (anchorSeq, anchorTime). Action-count windows use sequence_no
// only; duration windows compare advisory timestamps when both sides
// carry one.
func exceeded(w rule.Window, anchorSeq uint64, anchorTime time.Time, a *action.Action) bool {
	if w.IsZero() {
		return false
	}
	if w.Actions > 0 && a.SequenceNo-anchorSeq > uint64(w.Actions) {
		return true
	}
	if w.Span > 0 && !anchorTime.IsZero() && !a.Timestamp.IsZero() && a.Timestamp.Sub(anchorTime) > w.Span {
		return true
	}
	return false
}

// gapExceeded checks the pending step's own window against the most
// recently matched action: a step-level window bounds the gap since
// the previous step was satisfied.
func gapExceeded(r *rule.Rule, s State, a *action.Action) bool {
	cond := &r.Steps[s.NextStep]
	if cond.Within.IsZero() || len(s.Matched) == 0 {
		return false
	}
	last := s.Matched[len(s.Matched)-1]
	return exceeded(cond.Within, last.SequenceNo, last.Timestamp, a)
}

func newDetection(r *rule.Rule, final *action.Action, matched []action.Ref) *action.Detection {
	refs := append([]action.Ref(nil), matched...)
	at := final.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &action.Detection{
		ID:          uuid.New(),
		RuleID:      r.ID,
		RuleName:    r.Name,
		SessionID:   final.SessionID,
		Severity:    string(r.Severity),
		Actions:     refs,
		Explanation: explain(r, refs),
		DetectedAt:  at,
	}
}
