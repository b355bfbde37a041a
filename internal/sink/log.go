package sink

import (
	"github.com/rs/zerolog"

	"github.com/seqguard/seqguard/internal/action"
)

// LogSink writes each detection as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink logging through the given logger.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Report logs one detection.
func (s *LogSink) Report(det *action.Detection) {
	seqs := make([]uint64, len(det.Actions))
	for i, ref := range det.Actions {
		seqs[i] = ref.SequenceNo
	}
	s.log.Warn().
		Str("rule_id", det.RuleID).
		Str("session_id", det.SessionID).
		Str("severity", det.Severity).
		Uints64("actions", seqs).
		Msg(det.Explanation)
}
