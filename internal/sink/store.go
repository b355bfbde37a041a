package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/logger"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	rule_name TEXT,
	session_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	actions TEXT NOT NULL,
	explanation TEXT NOT NULL,
	detected_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_rule ON detections(rule_id);
CREATE INDEX IF NOT EXISTS idx_detections_session ON detections(session_id);
CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(detected_at);
`

// Store persists detections to SQLite so they can be queried after
// the fact. It implements Sink; writes happen on the dispatcher
// goroutine and failures are logged, never propagated back into the
// matching path.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the detection database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening detection db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating detections schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Report persists one detection.
func (s *Store) Report(det *action.Detection) {
	refs, err := json.Marshal(det.Actions)
	if err != nil {
		logger.Error().Err(err).Str("rule_id", det.RuleID).Msg("Detection actions not serializable")
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO detections (id, rule_id, rule_name, session_id, severity, actions, explanation, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		det.ID.String(), det.RuleID, det.RuleName, det.SessionID, det.Severity,
		string(refs), det.Explanation, det.DetectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logger.Error().Err(err).Str("rule_id", det.RuleID).Msg("Detection write failed")
	}
}

// QueryOpts filters detection queries.
type QueryOpts struct {
	RuleID    string
	SessionID string
	Severity  string
	Since     time.Time
	Limit     int
}

// StoredDetection is one persisted detection row.
type StoredDetection struct {
	ID          string       `json:"id"`
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name,omitempty"`
	SessionID   string       `json:"session_id"`
	Severity    string       `json:"severity"`
	Actions     []action.Ref `json:"actions"`
	Explanation string       `json:"explanation"`
	DetectedAt  time.Time    `json:"detected_at"`
}

// Query returns stored detections matching the filters, most recent
// first.
func (s *Store) Query(opts QueryOpts) ([]StoredDetection, error) {
	query := `SELECT id, rule_id, rule_name, session_id, severity, actions, explanation, detected_at
		FROM detections WHERE 1=1`
	var args []any

	if opts.RuleID != "" {
		query += " AND rule_id = ?"
		args = append(args, opts.RuleID)
	}
	if opts.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.Severity != "" {
		query += " AND severity = ?"
		args = append(args, opts.Severity)
	}
	if !opts.Since.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY detected_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying detections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredDetection
	for rows.Next() {
		var d StoredDetection
		var refs, at string
		var name sql.NullString
		if err := rows.Scan(&d.ID, &d.RuleID, &name, &d.SessionID, &d.Severity, &refs, &d.Explanation, &at); err != nil {
			return nil, fmt.Errorf("scanning detection row: %w", err)
		}
		d.RuleName = name.String
		if err := json.Unmarshal([]byte(refs), &d.Actions); err != nil {
			return nil, fmt.Errorf("decoding action refs: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			d.DetectedAt = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
