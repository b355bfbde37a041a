package engine

import (
	"fmt"
	"strings"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/rule"
)

// explain renders the human-readable account of why a rule fired,
// naming each step and the sequence numbers that satisfied it.
func explain(r *rule.Rule, refs []action.Ref) string {
	title := r.Name
	if title == "" {
		title = r.ID
	}

	var b strings.Builder
	switch {
	case r.IsThreshold():
		cond := &r.Steps[0]
		fmt.Fprintf(&b, "%s: %d actions with %s == %v", title, len(refs), cond.Field, cond.Value)
		if w := r.EffectiveWindow(); !w.IsZero() {
			fmt.Fprintf(&b, " within %s", w)
		}
		fmt.Fprintf(&b, " (%s)", seqList(refs))
	case r.Ordering == rule.Unordered:
		fmt.Fprintf(&b, "%s: all %d conditions co-occurred", title, len(r.Steps))
		if !r.Within.IsZero() {
			fmt.Fprintf(&b, " within %s", r.Within)
		}
		fmt.Fprintf(&b, ": %s", stepSummaries(r))
		fmt.Fprintf(&b, " (%s)", seqList(refs))
	default:
		fmt.Fprintf(&b, "%s: sequence completed", title)
		if !r.Within.IsZero() {
			fmt.Fprintf(&b, " within %s", r.Within)
		}
		b.WriteString(": ")
		b.WriteString(orderedTrace(r, refs))
	}
	return b.String()
}

// orderedTrace walks the matched chain against the step list,
// attributing each ref to the step it advanced.
func orderedTrace(r *rule.Rule, refs []action.Ref) string {
	parts := make([]string, 0, len(r.Steps))
	next := 0
	for i := range r.Steps {
		cond := &r.Steps[i]
		n := cond.RequiredCount()
		if next+n > len(refs) {
			n = len(refs) - next
		}
		stepRefs := refs[next : next+n]
		next += n
		parts = append(parts, fmt.Sprintf("step %d (%s) by %s", i+1, cond.Describe(), seqList(stepRefs)))
	}
	return strings.Join(parts, ", then ")
}

func stepSummaries(r *rule.Rule) string {
	parts := make([]string, len(r.Steps))
	for i := range r.Steps {
		parts[i] = r.Steps[i].Describe()
	}
	return strings.Join(parts, " + ")
}

func seqList(refs []action.Ref) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		if ref.Target != "" {
			parts[i] = fmt.Sprintf("#%d %s %s", ref.SequenceNo, ref.Type, ref.Target)
		} else {
			parts[i] = fmt.Sprintf("#%d %s", ref.SequenceNo, ref.Type)
		}
	}
	return strings.Join(parts, ", ")
}
