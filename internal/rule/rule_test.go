package rule

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{"5 actions", Window{Actions: 5}, false},
		{"1 action", Window{Actions: 1}, false},
		{"  10 ACTIONS ", Window{Actions: 10}, false},
		{"30s", Window{Span: 30 * time.Second}, false},
		{"2m", Window{Span: 2 * time.Minute}, false},
		{"", Window{}, false},
		{"0 actions", Window{}, true},
		{"-3 actions", Window{}, true},
		{"soon", Window{}, true},
		{"-5s", Window{}, true},
	}
	for _, tt := range tests {
		got, err := ParseWindow(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseWindow(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWindow(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWindow(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestWindowString(t *testing.T) {
	if got := (Window{Actions: 1}).String(); got != "1 action" {
		t.Errorf("got %q", got)
	}
	if got := (Window{Actions: 5}).String(); got != "5 actions" {
		t.Errorf("got %q", got)
	}
	if got := (Window{Span: 30 * time.Second}).String(); got != "30s" {
		t.Errorf("got %q", got)
	}
	if got := (Window{}).String(); got != "unbounded" {
		t.Errorf("got %q", got)
	}
}

func TestParseValidDocument(t *testing.T) {
	rules, err := Parse([]byte(`
rules:
  - rule_id: T-1
    severity: high
    within: 5 actions
    steps:
      - match_type: field_equals
        field: action_type
        value: file_read
      - match_type: field_matches_regex
        field: target
        pattern: '\.env'
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules", len(rules))
	}
	r := rules[0]
	if r.Ordering != Ordered {
		t.Errorf("ordering not defaulted: %q", r.Ordering)
	}
	if r.Within.Actions != 5 {
		t.Errorf("window = %+v", r.Within)
	}
	if r.Steps[1].Regexp() == nil {
		t.Error("pattern not compiled during validation")
	}
}

func TestParseSingleRuleDocument(t *testing.T) {
	rules, err := Parse([]byte(`
rule_id: T-2
severity: low
steps:
  - match_type: field_equals
    field: target
    value: /etc/passwd
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "T-2" {
		t.Fatalf("got %+v", rules)
	}
}

func TestParseReportsFieldPaths(t *testing.T) {
	_, err := Parse([]byte(`
rules:
  - severity: extreme
    steps:
      - match_type: field_matches_regex
        field: target
        pattern: '(['
  - rule_id: T-3
    severity: high
    steps:
      - match_type: quantum_entangle
`))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error type: %T", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"rules[0].rule_id",
		"rules[0].severity",
		"rules[0].steps[0].pattern",
		"rules[1].steps[0].match_type",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing path %q in:\n%s", want, msg)
		}
	}

	var unknown *UnknownMatchTypeError
	if !errors.As(err, &unknown) {
		t.Fatal("expected an UnknownMatchTypeError")
	}
	if unknown.Name != "quantum_entangle" {
		t.Errorf("Name = %q", unknown.Name)
	}
}

func TestParseRejectsPartialSets(t *testing.T) {
	rules, err := Parse([]byte(`
rules:
  - rule_id: GOOD
    severity: low
    steps:
      - match_type: field_equals
        field: target
        value: x
  - rule_id: BAD
    severity: low
    steps: []
`))
	if err == nil {
		t.Fatal("expected error")
	}
	if rules != nil {
		t.Fatalf("partial rule set returned: %v", rules)
	}
}

func TestParseDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte(`
rules:
  - rule_id: DUP
    severity: low
    steps:
      - match_type: field_equals
        field: target
        value: x
  - rule_id: DUP
    severity: low
    steps:
      - match_type: field_equals
        field: target
        value: y
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate rule_id") {
		t.Fatalf("err = %v", err)
	}
}

func TestConditionRequirements(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"equals needs value", `
rule_id: X
severity: low
steps:
  - match_type: field_equals
    field: target
`, "steps[0].value"},
		{"in_set needs values", `
rule_id: X
severity: low
steps:
  - match_type: field_in_set
    field: target
`, "steps[0].values"},
		{"threshold needs min_count", `
rule_id: X
severity: low
steps:
  - match_type: count_threshold
    field: action_type
    value: file_write
`, "steps[0].min_count"},
		{"role_mismatch needs roles", `
rule_id: X
severity: low
steps:
  - match_type: role_mismatch
`, "steps[0].allowed_roles"},
		{"role_mismatch rejects unknown type", `
rule_id: X
severity: low
steps:
  - match_type: role_mismatch
    action_type: teleport
    allowed_roles: [admin]
`, "steps[0].action_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.path) {
				t.Fatalf("err = %v, want path %q", err, tt.path)
			}
		})
	}
}

func TestLoaderRejectsCrossFileDuplicates(t *testing.T) {
	doc := `
rule_id: DUP
severity: low
steps:
  - match_type: field_equals
    field: target
    value: x
`
	l := NewLoader()
	if err := l.LoadBytes("a.yaml", []byte(doc)); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := l.LoadBytes("b.yaml", []byte(doc)); err == nil {
		t.Fatal("expected duplicate error")
	}
	if len(l.Rules()) != 1 {
		t.Errorf("loader holds %d rules, want 1", len(l.Rules()))
	}
}

func TestSnapshotMaxWindowActions(t *testing.T) {
	l := NewLoader()
	err := l.LoadBytes("w.yaml", []byte(`
rules:
  - rule_id: W-1
    severity: low
    within: 7 actions
    steps:
      - match_type: field_equals
        field: target
        value: x
  - rule_id: W-2
    severity: low
    steps:
      - match_type: count_threshold
        field: action_type
        value: file_write
        min_count: 2
        within: 12 actions
`))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	snap := l.Snapshot()
	if snap.MaxWindowActions() != 12 {
		t.Errorf("MaxWindowActions = %d, want 12", snap.MaxWindowActions())
	}
	if _, ok := snap.Get("W-1"); !ok {
		t.Error("W-1 missing from snapshot")
	}
	if ids := snap.IDs(); len(ids) != 2 || ids[0] != "W-1" {
		t.Errorf("IDs = %v", ids)
	}
}

func TestSchemaCoversAllMatchTypes(t *testing.T) {
	ref := SchemaReference()
	if len(ref) != len(MatchTypes) {
		t.Fatalf("schema has %d entries, want %d", len(ref), len(MatchTypes))
	}
	for _, mt := range MatchTypes {
		s, ok := SchemaFor(mt)
		if !ok {
			t.Errorf("no schema for %s", mt)
			continue
		}
		// Every example must itself be a valid step inside a rule.
		doc := "rule_id: EX\nseverity: low\nsteps:\n"
		for _, line := range strings.Split(s.Example, "\n") {
			doc += "  "
			if strings.HasPrefix(line, "match_type:") {
				doc += "- "
			} else {
				doc += "  "
			}
			doc += line + "\n"
		}
		if _, err := Parse([]byte(doc)); err != nil {
			t.Errorf("example for %s does not validate: %v\n%s", mt, err, doc)
		}
	}
}
