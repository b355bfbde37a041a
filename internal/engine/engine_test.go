package engine

import (
	"testing"
	"time"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/rule"
)

func mustParse(t *testing.T, doc string) *rule.Rule {
	t.Helper()
	rules, err := rule.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	return rules[0]
}

func act(seq uint64, typ action.Type, target string) *action.Action {
	return &action.Action{
		SessionID:  "s1",
		SequenceNo: seq,
		Type:       typ,
		Target:     target,
	}
}

const readThenSend = `
rule_id: R-1
severity: critical
within: 2 actions
steps:
  - match_type: field_equals
    field: action_type
    value: file_read
  - match_type: field_equals
    field: action_type
    value: network_request
`

func TestOrderedSequenceFires(t *testing.T) {
	r := mustParse(t, readThenSend)
	s := NewState(r)

	s, det := Evaluate(r, s, act(0, action.FileRead, "/etc/passwd"))
	if det != nil {
		t.Fatal("fired after first step")
	}
	_, det = Evaluate(r, s, act(1, action.NetworkRequest, "evil.example"))
	if det == nil {
		t.Fatal("expected detection")
	}
	if det.RuleID != "R-1" {
		t.Errorf("RuleID = %q, want R-1", det.RuleID)
	}
	if got := len(det.Actions); got != 2 {
		t.Errorf("got %d contributing actions, want 2", got)
	}
	if det.TriggeredBy() != 1 {
		t.Errorf("TriggeredBy = %d, want 1", det.TriggeredBy())
	}
}

func TestOrderedSequenceIgnoresReversedOrder(t *testing.T) {
	r := mustParse(t, readThenSend)
	s := NewState(r)

	s, det := Evaluate(r, s, act(0, action.NetworkRequest, "evil.example"))
	if det != nil {
		t.Fatal("fired on out-of-order action")
	}
	_, det = Evaluate(r, s, act(1, action.FileRead, "/etc/passwd"))
	if det != nil {
		t.Fatal("fired without the second step")
	}
}

func TestOrderedWindowBoundary(t *testing.T) {
	r := mustParse(t, readThenSend)

	// One intervening action stays inside "2 actions".
	s := NewState(r)
	s, _ = Evaluate(r, s, act(0, action.FileRead, "/etc/passwd"))
	s, _ = Evaluate(r, s, act(1, action.Other, ""))
	_, det := Evaluate(r, s, act(2, action.NetworkRequest, "evil.example"))
	if det == nil {
		t.Fatal("expected detection with one intervening action")
	}

	// Two intervening actions exceed it; no partial credit survives.
	s = NewState(r)
	s, _ = Evaluate(r, s, act(0, action.FileRead, "/etc/passwd"))
	s, _ = Evaluate(r, s, act(1, action.Other, ""))
	s, _ = Evaluate(r, s, act(2, action.Other, ""))
	s, det = Evaluate(r, s, act(3, action.NetworkRequest, "evil.example"))
	if det != nil {
		t.Fatal("fired outside the window")
	}
	if s.NextStep != 0 || len(s.Matched) != 0 {
		t.Errorf("expired state not reset: %+v", s)
	}
}

func TestExpiredActionCanReanchor(t *testing.T) {
	r := mustParse(t, readThenSend)
	s := NewState(r)

	s, _ = Evaluate(r, s, act(0, action.FileRead, "/a"))
	s, _ = Evaluate(r, s, act(1, action.Other, ""))
	s, _ = Evaluate(r, s, act(2, action.Other, ""))
	// Window expired; this read starts a fresh chain.
	s, det := Evaluate(r, s, act(3, action.FileRead, "/b"))
	if det != nil {
		t.Fatal("unexpected detection")
	}
	_, det = Evaluate(r, s, act(4, action.NetworkRequest, "evil.example"))
	if det == nil {
		t.Fatal("re-anchored chain should fire")
	}
	if det.Actions[0].SequenceNo != 3 {
		t.Errorf("anchor = %d, want 3", det.Actions[0].SequenceNo)
	}
}

func TestDurationWindow(t *testing.T) {
	r := mustParse(t, `
rule_id: R-T
severity: high
within: 30s
steps:
  - match_type: field_equals
    field: action_type
    value: file_read
  - match_type: field_equals
    field: action_type
    value: network_request
`)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	read := act(0, action.FileRead, "/etc/passwd")
	read.Timestamp = base

	late := act(1, action.NetworkRequest, "evil.example")
	late.Timestamp = base.Add(45 * time.Second)

	s := NewState(r)
	s, _ = Evaluate(r, s, read)
	s, det := Evaluate(r, s, late)
	if det != nil {
		t.Fatal("fired outside the duration window")
	}

	inTime := act(1, action.NetworkRequest, "evil.example")
	inTime.Timestamp = base.Add(10 * time.Second)
	s = NewState(r)
	s, _ = Evaluate(r, s, read)
	_, det = Evaluate(r, s, inTime)
	if det == nil {
		t.Fatal("expected detection inside the duration window")
	}
}

func TestThresholdCountsAndRearms(t *testing.T) {
	r := mustParse(t, `
rule_id: R-C
severity: medium
steps:
  - match_type: count_threshold
    field: action_type
    value: file_write
    min_count: 3
    within: 10 actions
`)
	s := NewState(r)
	var det *action.Detection

	for seq := uint64(0); seq < 2; seq++ {
		s, det = Evaluate(r, s, act(seq, action.FileWrite, "/tmp/x"))
		if det != nil {
			t.Fatalf("fired at count %d", seq+1)
		}
	}
	s, det = Evaluate(r, s, act(2, action.FileWrite, "/tmp/x"))
	if det == nil {
		t.Fatal("expected detection at min_count")
	}
	if len(det.Actions) != 3 {
		t.Errorf("got %d contributing actions, want 3", len(det.Actions))
	}

	// Counter re-arms: the very next write is count 1, not 4.
	s, det = Evaluate(r, s, act(3, action.FileWrite, "/tmp/x"))
	if det != nil {
		t.Fatal("fired immediately after re-arm")
	}
	s, det = Evaluate(r, s, act(4, action.FileWrite, "/tmp/x"))
	if det != nil {
		t.Fatal("fired at count 2 after re-arm")
	}
	_, det = Evaluate(r, s, act(5, action.FileWrite, "/tmp/x"))
	if det == nil {
		t.Fatal("expected second detection after re-arm")
	}
}

func TestThresholdSlidingWindowEvicts(t *testing.T) {
	r := mustParse(t, `
rule_id: R-C
severity: medium
steps:
  - match_type: count_threshold
    field: action_type
    value: file_write
    min_count: 3
    within: 4 actions
`)
	s := NewState(r)
	var det *action.Detection

	// Two writes, then enough unrelated actions to slide them out.
	s, _ = Evaluate(r, s, act(0, action.FileWrite, "/a"))
	s, _ = Evaluate(r, s, act(1, action.FileWrite, "/b"))
	for seq := uint64(2); seq < 6; seq++ {
		s, _ = Evaluate(r, s, act(seq, action.Other, ""))
	}
	s, det = Evaluate(r, s, act(6, action.FileWrite, "/c"))
	if det != nil {
		t.Fatal("stale writes should have been evicted")
	}
	s, det = Evaluate(r, s, act(7, action.FileWrite, "/d"))
	if det != nil {
		t.Fatal("only two writes in window")
	}
	_, det = Evaluate(r, s, act(8, action.FileWrite, "/e"))
	if det == nil {
		t.Fatal("three writes within 4 actions should fire")
	}
}

func TestUnorderedCoOccurrence(t *testing.T) {
	r := mustParse(t, `
rule_id: R-U
severity: high
ordering: unordered
within: 5 actions
steps:
  - match_type: field_equals
    field: action_type
    value: credential_access
  - match_type: field_equals
    field: action_type
    value: network_request
`)
	// Reversed order still fires.
	s := NewState(r)
	s, det := Evaluate(r, s, act(0, action.NetworkRequest, "evil.example"))
	if det != nil {
		t.Fatal("fired on one step")
	}
	_, det = Evaluate(r, s, act(1, action.CredentialAccess, "vault"))
	if det == nil {
		t.Fatal("unordered rule should fire regardless of order")
	}

	// Outside the window it does not.
	s = NewState(r)
	s, _ = Evaluate(r, s, act(0, action.NetworkRequest, "evil.example"))
	for seq := uint64(1); seq < 7; seq++ {
		s, _ = Evaluate(r, s, act(seq, action.Other, ""))
	}
	_, det = Evaluate(r, s, act(7, action.CredentialAccess, "vault"))
	if det != nil {
		t.Fatal("fired outside the unordered window")
	}
}

func TestRoleGateBlocksAuthorizedActors(t *testing.T) {
	r := mustParse(t, `
rule_id: R-R
severity: critical
steps:
  - match_type: role_mismatch
    action_type: credential_access
    allowed_roles: [vault_operator]
`)
	s := NewState(r)

	allowed := act(0, action.CredentialAccess, "vault")
	allowed.ActorRole = "vault_operator"
	s, det := Evaluate(r, s, allowed)
	if det != nil {
		t.Fatal("authorized role must not fire")
	}

	rogue := act(1, action.CredentialAccess, "vault")
	rogue.ActorRole = "research_agent"
	_, det = Evaluate(r, s, rogue)
	if det == nil {
		t.Fatal("unauthorized role should fire")
	}
	if det.Actions[0].ActorRole != "research_agent" {
		t.Errorf("contributing role = %q", det.Actions[0].ActorRole)
	}
}

func TestRegexAndAttributeFields(t *testing.T) {
	r := mustParse(t, `
rule_id: R-X
severity: high
steps:
  - match_type: field_matches_regex
    field: target
    pattern: '\.\./'
`)
	s := NewState(r)
	_, det := Evaluate(r, s, act(0, action.FileRead, "../../etc/shadow"))
	if det == nil {
		t.Fatal("traversal target should match")
	}

	attr := mustParse(t, `
rule_id: R-A
severity: low
steps:
  - match_type: field_equals
    field: attributes.bytes
    value: 4096
`)
	a := act(0, action.FileWrite, "/tmp/x")
	a.Attributes = map[string]any{"bytes": 4096.0}
	_, det = Evaluate(attr, NewState(attr), a)
	if det == nil {
		t.Fatal("attribute field should match numerically")
	}
}

func TestFieldInSet(t *testing.T) {
	r := mustParse(t, `
rule_id: R-S
severity: low
steps:
  - match_type: field_in_set
    field: action_type
    values: [file_write, credential_access]
`)
	s := NewState(r)
	if _, det := Evaluate(r, s, act(0, action.FileRead, "/a")); det != nil {
		t.Fatal("file_read is not in the set")
	}
	if _, det := Evaluate(r, s, act(1, action.CredentialAccess, "vault")); det == nil {
		t.Fatal("credential_access is in the set")
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	r := mustParse(t, readThenSend)
	s := NewState(r)

	next, _ := Evaluate(r, s, act(0, action.FileRead, "/a"))
	if s.NextStep != 0 || len(s.Matched) != 0 || s.Counts[0] != 0 {
		t.Errorf("input state mutated: %+v", s)
	}
	if next.NextStep != 1 {
		t.Errorf("returned state not advanced: %+v", next)
	}

	// Replaying the same action against the same input state is
	// deterministic.
	again, _ := Evaluate(r, s, act(0, action.FileRead, "/a"))
	if again.NextStep != next.NextStep || len(again.Matched) != len(next.Matched) {
		t.Errorf("replay diverged: %+v vs %+v", again, next)
	}
}

func TestExplanationNamesSteps(t *testing.T) {
	r := mustParse(t, readThenSend)
	s := NewState(r)
	s, _ = Evaluate(r, s, act(0, action.FileRead, "/etc/passwd"))
	_, det := Evaluate(r, s, act(1, action.NetworkRequest, "evil.example"))
	if det == nil {
		t.Fatal("expected detection")
	}
	if det.Explanation == "" {
		t.Fatal("empty explanation")
	}
}
