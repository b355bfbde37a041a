package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/sink"
	"github.com/seqguard/seqguard/internal/tracker"
)

// Handlers contains the HTTP handlers for the daemon API.
type Handlers struct {
	tracker     *tracker.Tracker
	store       *sink.Store
	metrics     *sink.Metrics
	broadcaster *SSEBroadcaster
	startedAt   time.Time
	version     string

	mu      sync.Mutex
	nextSeq map[string]uint64
}

// NewHandlers creates a new handlers instance. store and metrics may
// be nil when persistence or metrics are disabled.
func NewHandlers(trk *tracker.Tracker, store *sink.Store, metrics *sink.Metrics, broadcaster *SSEBroadcaster, version string) *Handlers {
	return &Handlers{
		tracker:     trk,
		store:       store,
		metrics:     metrics,
		broadcaster: broadcaster,
		startedAt:   time.Now(),
		version:     version,
		nextSeq:     make(map[string]uint64),
	}
}

// Health handles the health check endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

// IngestAction accepts one action and runs it through every rule.
// Detections fire through the configured sinks and are echoed in the
// response so synchronous callers can react immediately.
func (h *Handlers) IngestAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "action_type is required")
		return
	}

	a := &action.Action{
		SessionID:  req.SessionID,
		Type:       action.Type(req.ActionType),
		Target:     req.Target,
		ActorRole:  req.ActorRole,
		Attributes: req.Attributes,
		Timestamp:  req.Timestamp,
	}
	a.SequenceNo = h.assignSeq(req.SessionID, req.SequenceNo)

	dets, err := h.tracker.Ingest(a)
	if err != nil {
		if errors.Is(err, tracker.ErrSessionClosed) {
			writeError(w, http.StatusConflict, "session is closed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.ActionIngested()
	}

	resp := IngestResponse{
		SessionID:  a.SessionID,
		SequenceNo: a.SequenceNo,
	}
	for _, det := range dets {
		resp.Detections = append(resp.Detections, toDetectionResponse(det))
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handlers) assignSeq(sessionID string, explicit *uint64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if explicit != nil {
		if *explicit >= h.nextSeq[sessionID] {
			h.nextSeq[sessionID] = *explicit + 1
		}
		return *explicit
	}
	seq := h.nextSeq[sessionID]
	h.nextSeq[sessionID]++
	return seq
}

// CloseSession releases a session's state. Ingesting into a closed
// session is rejected until the tracker sweeps the tombstone.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	if !h.tracker.Close(sessionID) {
		writeError(w, http.StatusNotFound, "unknown or already closed session")
		return
	}
	h.mu.Lock()
	delete(h.nextSeq, sessionID)
	h.mu.Unlock()
	if h.broadcaster != nil {
		h.broadcaster.SessionClosed(sessionID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "closed"})
}

// Sessions lists live sessions.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Sessions())
}

// Recent returns the buffered recent actions for one session.
func (h *Handlers) Recent(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	recent := h.tracker.Recent(sessionID)
	if recent == nil {
		recent = []*action.Action{}
	}
	writeJSON(w, http.StatusOK, recent)
}

// Rules lists the rules in the tracker's current snapshot.
func (h *Handlers) Rules(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Snapshot()
	resp := make([]RuleResponse, 0, snap.Len())
	for _, rl := range snap.Rules() {
		resp = append(resp, RuleResponse{
			RuleID:      rl.ID,
			Name:        rl.Name,
			Description: rl.Description,
			Severity:    string(rl.Severity),
			Ordering:    string(rl.Ordering),
			Window:      rl.EffectiveWindow().String(),
			Steps:       len(rl.Steps),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Detections queries the persisted detection log.
func (h *Handlers) Detections(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "detection store not enabled")
		return
	}

	q := r.URL.Query()
	opts := sink.QueryOpts{
		RuleID:    q.Get("rule_id"),
		SessionID: q.Get("session_id"),
		Severity:  q.Get("severity"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			opts.Since = t
		}
	}

	dets, err := h.store.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if dets == nil {
		dets = []sink.StoredDetection{}
	}
	writeJSON(w, http.StatusOK, dets)
}

// Stats handles the aggregate statistics endpoint.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		ActiveSessions:  len(h.tracker.Sessions()),
		ActionsIngested: h.tracker.Ingested(),
		RulesLoaded:     h.tracker.Snapshot().Len(),
		BySeverity:      make(map[string]int),
	}

	if h.store != nil {
		dets, err := h.store.Query(sink.QueryOpts{Limit: 10000})
		if err == nil {
			resp.Detections = len(dets)
			for _, d := range dets {
				resp.BySeverity[d.Severity]++
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
