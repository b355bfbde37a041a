package rule

import (
	"fmt"
	"strings"
)

// ValidationError describes one schema violation in a rule definition.
// Path points at the offending field, e.g. "rules[2].steps[0].match_type".
type ValidationError struct {
	Path  string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Cause)
}

// UnknownMatchTypeError is the validation failure for a condition whose
// match_type is not in the recognized taxonomy.
type UnknownMatchTypeError struct {
	ValidationError
	Name string
}

func newUnknownMatchType(path, name string) *UnknownMatchTypeError {
	return &UnknownMatchTypeError{
		ValidationError: ValidationError{
			Path:  path,
			Cause: fmt.Sprintf("unknown match_type %q", name),
		},
		Name: name,
	}
}

// ValidationErrors aggregates every violation found in one rule source.
// A source that produces any ValidationErrors contributes no rules.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(v), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual violations to errors.Is/As.
func (v ValidationErrors) Unwrap() []error { return v }

// ErrOrNil returns the collected errors as a single error, or nil when
// the set is empty.
func (v ValidationErrors) ErrOrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
