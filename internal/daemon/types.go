package daemon

import (
	"time"

	"github.com/seqguard/seqguard/internal/action"
)

// ActionRequest is the wire form accepted by the ingest endpoint.
// sequence_no is optional: absent values are assigned monotonically
// per session in arrival order.
type ActionRequest struct {
	SessionID  string         `json:"session_id"`
	SequenceNo *uint64        `json:"sequence_no,omitempty"`
	ActionType string         `json:"action_type"`
	Target     string         `json:"target,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// IngestResponse reports the outcome of one ingested action.
type IngestResponse struct {
	SessionID  string               `json:"session_id"`
	SequenceNo uint64               `json:"sequence_no"`
	Detections []*DetectionResponse `json:"detections,omitempty"`
}

// DetectionResponse represents a detection in API responses.
type DetectionResponse struct {
	ID          string       `json:"id"`
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name,omitempty"`
	SessionID   string       `json:"session_id"`
	Severity    string       `json:"severity"`
	Actions     []action.Ref `json:"actions"`
	Explanation string       `json:"explanation"`
	DetectedAt  time.Time    `json:"detected_at"`
}

// RuleResponse represents a loaded rule in API responses.
type RuleResponse struct {
	RuleID      string `json:"rule_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
	Ordering    string `json:"ordering"`
	Window      string `json:"window"`
	Steps       int    `json:"steps"`
}

// StatsResponse represents aggregate statistics.
type StatsResponse struct {
	ActiveSessions  int            `json:"active_sessions"`
	ActionsIngested uint64         `json:"actions_ingested"`
	RulesLoaded     int            `json:"rules_loaded"`
	Detections      int            `json:"detections"`
	BySeverity      map[string]int `json:"detections_by_severity"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// SSEEvent represents a server-sent event.
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SSE event types
const (
	SSEDetection    = "detection"
	SSESessionClose = "session_close"
	SSEHeartbeat    = "heartbeat"
)

func toDetectionResponse(det *action.Detection) *DetectionResponse {
	return &DetectionResponse{
		ID:          det.ID.String(),
		RuleID:      det.RuleID,
		RuleName:    det.RuleName,
		SessionID:   det.SessionID,
		Severity:    det.Severity,
		Actions:     det.Actions,
		Explanation: det.Explanation,
		DetectedAt:  det.DetectedAt,
	}
}
