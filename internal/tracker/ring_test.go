package tracker

import (
	"testing"

	"github.com/seqguard/seqguard/internal/action"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing(3)
	for seq := uint64(0); seq < 5; seq++ {
		r.add(&action.Action{SequenceNo: seq})
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	snap := r.snapshot()
	want := []uint64{2, 3, 4}
	for i, a := range snap {
		if a.SequenceNo != want[i] {
			t.Errorf("snapshot[%d] = %d, want %d", i, a.SequenceNo, want[i])
		}
	}
}

func TestRingPartiallyFilled(t *testing.T) {
	r := newRing(4)
	r.add(&action.Action{SequenceNo: 0})
	r.add(&action.Action{SequenceNo: 1})
	snap := r.snapshot()
	if len(snap) != 2 || snap[0].SequenceNo != 0 || snap[1].SequenceNo != 1 {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := newRing(0)
	if r.cap() != 1 {
		t.Fatalf("cap = %d, want 1", r.cap())
	}
	r.add(&action.Action{SequenceNo: 7})
	r.add(&action.Action{SequenceNo: 8})
	snap := r.snapshot()
	if len(snap) != 1 || snap[0].SequenceNo != 8 {
		t.Fatalf("snapshot = %v", snap)
	}
}
