// Package adapter converts external action streams into the internal
// action model. The JSONL adapter reads one JSON object per line, which
// is the interchange format used by the replay command.
package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/seqguard/seqguard/internal/action"
)

// wireAction is the JSONL wire form. sequence_no and timestamp are
// optional: absent sequence numbers are assigned monotonically per
// session in arrival order.
type wireAction struct {
	SessionID  string         `json:"session_id"`
	SequenceNo *uint64        `json:"sequence_no,omitempty"`
	ActionType string         `json:"action_type"`
	Target     string         `json:"target,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// JSONLReader decodes a JSONL action stream.
type JSONLReader struct {
	scanner *bufio.Scanner
	line    int
	nextSeq map[string]uint64
}

// NewJSONLReader wraps r. Lines up to 1 MiB are accepted.
func NewJSONLReader(r io.Reader) *JSONLReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &JSONLReader{
		scanner: sc,
		nextSeq: make(map[string]uint64),
	}
}

// Next returns the next action in the stream, io.EOF at the end, or a
// line-numbered error for malformed input. Blank lines and lines
// starting with '#' are skipped.
func (r *JSONLReader) Next() (*action.Action, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var w wireAction
		if err := json.Unmarshal([]byte(text), &w); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", r.line, err)
		}
		if w.SessionID == "" {
			return nil, fmt.Errorf("line %d: session_id is required", r.line)
		}
		if w.ActionType == "" {
			return nil, fmt.Errorf("line %d: action_type is required", r.line)
		}

		a := &action.Action{
			SessionID:  w.SessionID,
			Type:       action.Type(w.ActionType),
			Target:     w.Target,
			ActorRole:  w.ActorRole,
			Attributes: w.Attributes,
			Timestamp:  w.Timestamp,
		}
		if w.SequenceNo != nil {
			a.SequenceNo = *w.SequenceNo
			if *w.SequenceNo >= r.nextSeq[w.SessionID] {
				r.nextSeq[w.SessionID] = *w.SequenceNo + 1
			}
		} else {
			a.SequenceNo = r.nextSeq[w.SessionID]
			r.nextSeq[w.SessionID]++
		}
		return a, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	return nil, io.EOF
}

// Line returns the line number of the most recently decoded line.
func (r *JSONLReader) Line() int { return r.line }
