package tsqueue

import "testing"

func TestQueueOrdersByTimestampThenFIFO(t *testing.T) {
	q := New[string]()
	q.Insert(1.2, "c")
	q.Insert(1.0, "a")
	q.Insert(1.0, "b")

	got := q.Drain(2.0)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: want %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPopIfLERespectsNow(t *testing.T) {
	q := New[int]()
	q.Insert(5.0, 1)
	if _, ok := q.PopIfLE(4.0); ok {
		t.Fatalf("expected no pop before the entry's timestamp")
	}
	v, ok := q.PopIfLE(5.0)
	if !ok || v != 1 {
		t.Fatalf("expected pop at the entry's timestamp, got %v %v", v, ok)
	}
}

func TestPeekTimeReflectsEarliestEntry(t *testing.T) {
	q := New[int]()
	if _, ok := q.PeekTime(); ok {
		t.Fatalf("expected no peek time on empty queue")
	}
	q.Insert(3.0, 1)
	q.Insert(1.5, 2)
	ts, ok := q.PeekTime()
	if !ok || ts != 1.5 {
		t.Fatalf("expected earliest timestamp 1.5, got %v", ts)
	}
}

func TestMonotonicPops(t *testing.T) {
	q := New[int]()
	for _, ts := range []float32{3.0, 1.0, 2.0, 1.0, 0.5} {
		q.Insert(ts, 0)
	}
	var last float32 = -1
	for {
		ts, ok := q.PeekTime()
		if !ok {
			break
		}
		if ts < last {
			t.Fatalf("non-monotonic pop order: %v after %v", ts, last)
		}
		last = ts
		q.PopIfLE(ts)
	}
}
