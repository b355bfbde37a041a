// Package rule defines the declarative detection rule model, the YAML
// loader/validator, and the schema reference used by rule-authoring
// tooling. Rules are immutable after validation; the engine only ever
// sees rules that passed the full schema check.
package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seqguard/seqguard/internal/action"
)

// MatchType identifies how a condition inspects an action.
type MatchType string

// The closed match-type taxonomy
const (
	FieldEquals    MatchType = "field_equals"
	FieldMatchesRx MatchType = "field_matches_regex"
	FieldInSet     MatchType = "field_in_set"
	CountThreshold MatchType = "count_threshold"
	RoleMismatch   MatchType = "role_mismatch"
)

// MatchTypes lists the taxonomy in schema-reference order.
var MatchTypes = []MatchType{FieldEquals, FieldMatchesRx, FieldInSet, CountThreshold, RoleMismatch}

// Severity of a rule. Metadata only, never consulted during matching.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Ordering controls whether a rule's steps must be satisfied in the
// declared order (causal pattern) or in any order (co-occurrence).
type Ordering string

const (
	Ordered   Ordering = "ordered"
	Unordered Ordering = "unordered"
)

// Window bounds how far a pattern may stretch: a maximum number of
// actions, a maximum duration, or unbounded when zero-valued.
// YAML forms: "5 actions", "1 action", "30s", "2m".
type Window struct {
	Actions int
	Span    time.Duration
}

// IsZero reports whether the window is unbounded.
func (w Window) IsZero() bool { return w.Actions == 0 && w.Span == 0 }

func (w Window) String() string {
	switch {
	case w.Actions == 1:
		return "1 action"
	case w.Actions > 0:
		return fmt.Sprintf("%d actions", w.Actions)
	case w.Span > 0:
		return w.Span.String()
	}
	return "unbounded"
}

// UnmarshalYAML parses the human-authorable window forms.
func (w *Window) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("window must be a string like %q or %q", "5 actions", "30s")
	}
	parsed, err := ParseWindow(raw)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MarshalYAML renders the canonical string form.
func (w Window) MarshalYAML() (any, error) {
	if w.IsZero() {
		return nil, nil
	}
	return w.String(), nil
}

// ParseWindow parses "N actions" / "N action" or a Go duration string.
func ParseWindow(raw string) (Window, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return Window{}, nil
	}
	if rest, ok := strings.CutSuffix(s, " actions"); ok {
		return parseActionCount(rest)
	}
	if rest, ok := strings.CutSuffix(s, " action"); ok {
		return parseActionCount(rest)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: want %q or a duration like %q", raw, "5 actions", "30s")
	}
	if d <= 0 {
		return Window{}, fmt.Errorf("invalid window %q: duration must be positive", raw)
	}
	return Window{Span: d}, nil
}

func parseActionCount(s string) (Window, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return Window{}, fmt.Errorf("invalid window: action count must be a positive integer, got %q", s)
	}
	return Window{Actions: n}, nil
}

// Condition is one predicate within a rule's step sequence. Which
// fields are required depends on MatchType; see SchemaReference.
type Condition struct {
	MatchType MatchType `yaml:"match_type"`

	// field_equals / field_matches_regex / field_in_set / count_threshold
	Field   string   `yaml:"field,omitempty"`
	Value   any      `yaml:"value,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	Values  []string `yaml:"values,omitempty"`

	// count_threshold
	MinCount int `yaml:"min_count,omitempty"`

	// role_mismatch: actors in AllowedRoles are authorized; any other
	// role performing a matching action is a mismatch. On other match
	// types AllowedRoles acts as an exclusionary gate: an authorized
	// actor never advances the step.
	AllowedRoles []string `yaml:"allowed_roles,omitempty"`

	// role_mismatch: optional action_type filter.
	ActionType string `yaml:"action_type,omitempty"`

	// Optional per-step multiplicity and window.
	Count  int    `yaml:"count,omitempty"`
	Within Window `yaml:"within,omitempty"`

	re *regexp.Regexp // compiled during validation
}

// Regexp returns the compiled pattern for field_matches_regex
// conditions, nil otherwise.
func (c *Condition) Regexp() *regexp.Regexp { return c.re }

// RequiredCount is how many qualifying actions this step needs.
func (c *Condition) RequiredCount() int {
	if c.MatchType == CountThreshold && c.MinCount > 0 {
		return c.MinCount
	}
	if c.Count > 0 {
		return c.Count
	}
	return 1
}

// RoleAllowed reports whether the actor role passes the allowed_roles
// gate, i.e. the actor is explicitly authorized.
func (c *Condition) RoleAllowed(role string) bool {
	for _, r := range c.AllowedRoles {
		if r == role || r == "*" {
			return true
		}
	}
	return false
}

// Describe renders a short human-readable form used in detection
// explanations.
func (c *Condition) Describe() string {
	switch c.MatchType {
	case FieldEquals:
		return fmt.Sprintf("%s == %v", c.Field, c.Value)
	case FieldMatchesRx:
		return fmt.Sprintf("%s matches /%s/", c.Field, c.Pattern)
	case FieldInSet:
		return fmt.Sprintf("%s in {%s}", c.Field, strings.Join(c.Values, ", "))
	case CountThreshold:
		return fmt.Sprintf("%d+ actions with %s == %v", c.RequiredCount(), c.Field, c.Value)
	case RoleMismatch:
		if c.ActionType != "" {
			return fmt.Sprintf("%s by role outside {%s}", c.ActionType, strings.Join(c.AllowedRoles, ", "))
		}
		return fmt.Sprintf("action by role outside {%s}", strings.Join(c.AllowedRoles, ", "))
	}
	return string(c.MatchType)
}

// Rule is an immutable, validated pattern definition.
type Rule struct {
	ID          string      `yaml:"rule_id"`
	Name        string      `yaml:"name,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Severity    Severity    `yaml:"severity"`
	Ordering    Ordering    `yaml:"ordering,omitempty"`
	Within      Window      `yaml:"within,omitempty"`
	Steps       []Condition `yaml:"steps"`
}

// IsThreshold reports whether the rule is a pure counting rule: a
// single count_threshold step. Threshold rules use a sliding window
// over the last K actions rather than a chain anchor.
func (r *Rule) IsThreshold() bool {
	return len(r.Steps) == 1 && r.Steps[0].MatchType == CountThreshold
}

// EffectiveWindow is the window bounding the whole pattern. For
// threshold rules the step window takes precedence over the rule
// window since counting is scoped to the single condition.
func (r *Rule) EffectiveWindow() Window {
	if r.IsThreshold() && !r.Steps[0].Within.IsZero() {
		return r.Steps[0].Within
	}
	return r.Within
}

// validate checks the rule against the schema and compiles patterns.
// path is the field-path prefix for error reporting.
func (r *Rule) validate(path string) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, &ValidationError{Path: path + ".rule_id", Cause: "rule_id is required"})
	}
	switch r.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	case "":
		errs = append(errs, &ValidationError{Path: path + ".severity", Cause: "severity is required"})
	default:
		errs = append(errs, &ValidationError{
			Path:  path + ".severity",
			Cause: fmt.Sprintf("invalid severity %q (want low, medium, high or critical)", r.Severity),
		})
	}
	switch r.Ordering {
	case Ordered, Unordered:
	case "":
		r.Ordering = Ordered
	default:
		errs = append(errs, &ValidationError{
			Path:  path + ".ordering",
			Cause: fmt.Sprintf("invalid ordering %q (want ordered or unordered)", r.Ordering),
		})
	}
	if len(r.Steps) == 0 {
		errs = append(errs, &ValidationError{Path: path + ".steps", Cause: "at least one step is required"})
	}

	for i := range r.Steps {
		errs = append(errs, r.Steps[i].validate(fmt.Sprintf("%s.steps[%d]", path, i))...)
	}
	return errs
}

func (c *Condition) validate(path string) ValidationErrors {
	var errs ValidationErrors

	requireField := func() {
		if strings.TrimSpace(c.Field) == "" {
			errs = append(errs, &ValidationError{Path: path + ".field", Cause: "field is required"})
		}
	}

	switch c.MatchType {
	case FieldEquals:
		requireField()
		if c.Value == nil {
			errs = append(errs, &ValidationError{Path: path + ".value", Cause: "value is required"})
		}
	case FieldMatchesRx:
		requireField()
		if c.Pattern == "" {
			errs = append(errs, &ValidationError{Path: path + ".pattern", Cause: "pattern is required"})
		} else if re, err := regexp.Compile(c.Pattern); err != nil {
			errs = append(errs, &ValidationError{
				Path:  path + ".pattern",
				Cause: fmt.Sprintf("invalid regex %q: %v", c.Pattern, err),
			})
		} else {
			c.re = re
		}
	case FieldInSet:
		requireField()
		if len(c.Values) == 0 {
			errs = append(errs, &ValidationError{Path: path + ".values", Cause: "values must be a non-empty list"})
		}
	case CountThreshold:
		requireField()
		if c.Value == nil {
			errs = append(errs, &ValidationError{Path: path + ".value", Cause: "value is required"})
		}
		if c.MinCount < 1 {
			errs = append(errs, &ValidationError{Path: path + ".min_count", Cause: "min_count must be >= 1"})
		}
	case RoleMismatch:
		if len(c.AllowedRoles) == 0 {
			errs = append(errs, &ValidationError{Path: path + ".allowed_roles", Cause: "allowed_roles must be a non-empty list"})
		}
		if c.ActionType != "" && !action.KnownType(action.Type(c.ActionType)) {
			errs = append(errs, &ValidationError{
				Path:  path + ".action_type",
				Cause: fmt.Sprintf("unknown action_type %q", c.ActionType),
			})
		}
	case "":
		errs = append(errs, &ValidationError{Path: path + ".match_type", Cause: "match_type is required"})
	default:
		errs = append(errs, newUnknownMatchType(path+".match_type", string(c.MatchType)))
	}

	if c.Count < 0 {
		errs = append(errs, &ValidationError{Path: path + ".count", Cause: "count must be >= 1"})
	}
	return errs
}
