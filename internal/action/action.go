package action

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an observed agent operation.
type Type string

// Action types recognized by the detector
const (
	FileRead         Type = "file_read"
	FileWrite        Type = "file_write"
	NetworkRequest   Type = "network_request"
	CredentialAccess Type = "credential_access"
	ToolCall         Type = "tool_call"
	Other            Type = "other"
)

// KnownType reports whether t is one of the recognized action types.
func KnownType(t Type) bool {
	switch t {
	case FileRead, FileWrite, NetworkRequest, CredentialAccess, ToolCall, Other:
		return true
	}
	return false
}

// Action is one normalized operation observed from an agent run.
// Actions are append-only: the adapter creates them and assigns
// SequenceNo, and they are never mutated after ingestion. SequenceNo
// is the sole ordering key; Timestamp is advisory since agent
// frameworks may report events out of order.
type Action struct {
	SessionID  string         `json:"session_id"`
	SequenceNo uint64         `json:"sequence_no"`
	Type       Type           `json:"action_type"`
	Target     string         `json:"target,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// Ref is a compact summary of an action that contributed to a
// detection. It is captured at match time so detections stay valid
// after the session's history window has rolled past the action.
type Ref struct {
	SequenceNo uint64    `json:"sequence_no"`
	Type       Type      `json:"action_type"`
	Target     string    `json:"target,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Summarize builds a Ref for the action.
func (a *Action) Summarize() Ref {
	return Ref{
		SequenceNo: a.SequenceNo,
		Type:       a.Type,
		Target:     a.Target,
		ActorRole:  a.ActorRole,
		Timestamp:  a.Timestamp,
	}
}

// Detection is emitted when a rule's pattern is satisfied. It is
// immutable once created.
type Detection struct {
	ID          uuid.UUID `json:"id"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name,omitempty"`
	SessionID   string    `json:"session_id"`
	Severity    string    `json:"severity"`
	Actions     []Ref     `json:"actions"`
	Explanation string    `json:"explanation"`
	DetectedAt  time.Time `json:"detected_at"`
}

// TriggeredBy returns the sequence number of the final action that
// completed the pattern. Detections for a session are emitted in
// non-decreasing order of this value.
func (d *Detection) TriggeredBy() uint64 {
	if len(d.Actions) == 0 {
		return 0
	}
	return d.Actions[len(d.Actions)-1].SequenceNo
}
