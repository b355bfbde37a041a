package tracker

import "github.com/seqguard/seqguard/internal/action"

// ring is a fixed-capacity buffer of a session's most recent actions,
// sized to the hungriest rule window. Once full, the oldest action is
// overwritten: the tracker never retains unbounded history no matter
// how long a session runs.
type ring struct {
	buf  []*action.Action
	next int
	full bool
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]*action.Action, capacity)}
}

func (r *ring) add(a *action.Action) {
	r.buf[r.next] = a
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *ring) cap() int { return len(r.buf) }

// snapshot returns the buffered actions oldest-first.
func (r *ring) snapshot() []*action.Action {
	n := r.len()
	out := make([]*action.Action, 0, n)
	start := 0
	if r.full {
		start = r.next
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
