package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/rule"
)

// fieldValue resolves a condition's field name against an action.
// Unknown names fall through to the attributes map, with or without
// the "attributes." prefix. A missing field is a non-match, never an
// error: the action stream is attacker-influenced and must not be
// able to fault the engine.
func fieldValue(a *action.Action, field string) (any, bool) {
	switch field {
	case "action_type":
		return string(a.Type), true
	case "target":
		return a.Target, true
	case "actor_role":
		return a.ActorRole, true
	case "session_id":
		return a.SessionID, true
	}
	key := strings.TrimPrefix(field, "attributes.")
	if a.Attributes == nil {
		return nil, false
	}
	v, ok := a.Attributes[key]
	return v, ok
}

// Matches reports whether one action satisfies a condition's
// predicate. The allowed_roles gate is checked first: an explicitly
// authorized actor never advances a step, regardless of match type.
func Matches(c *rule.Condition, a *action.Action) bool {
	if len(c.AllowedRoles) > 0 && c.RoleAllowed(a.ActorRole) {
		return false
	}

	switch c.MatchType {
	case rule.FieldEquals, rule.CountThreshold:
		v, ok := fieldValue(a, c.Field)
		return ok && looseEquals(v, c.Value)
	case rule.FieldMatchesRx:
		v, ok := fieldValue(a, c.Field)
		if !ok {
			return false
		}
		re := c.Regexp()
		return re != nil && re.MatchString(stringify(v))
	case rule.FieldInSet:
		v, ok := fieldValue(a, c.Field)
		if !ok {
			return false
		}
		s := stringify(v)
		for _, want := range c.Values {
			if s == want {
				return true
			}
		}
		return false
	case rule.RoleMismatch:
		// The gate above already established the role is outside the
		// allowed set; only the optional action_type filter remains.
		return c.ActionType == "" || string(a.Type) == c.ActionType
	}
	return false
}

// looseEquals compares an action field against a rule value,
// numerically when both sides parse as numbers so that YAML "3" and
// attribute 3.0 agree, otherwise by canonical string form.
func looseEquals(got, want any) bool {
	if gf, ok := toFloat64(got); ok {
		if wf, ok := toFloat64(want); ok {
			return gf == wf
		}
	}
	return stringify(got) == stringify(want)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
