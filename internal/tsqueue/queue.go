// Package tsqueue implements the time-ordered queue used by the sensor
// manager's pending-observation list (spec §4.4 step 5 drains observations
// in time order): a min-heap keyed on timestamp with FIFO tie-break via an
// insertion-order sequence counter. internal/broker needs a third tie-break
// key (PathKey lexicographic order, spec §4.2) this generic queue has no
// hook for, so it keeps its own heap rather than forcing an extra parameter
// through every caller of this one; internal/servicebus's inboxes need no
// ordering at all, just a filter by deadline, so a plain slice serves it
// better than a heap.
package tsqueue

import "container/heap"

// Queue is a min-heap of (timestamp, payload) pairs with FIFO tie-break.
type Queue[T any] struct {
	items heapItems[T]
	seq   uint64
}

type item[T any] struct {
	timestamp float32
	sequence  uint64
	value     T
}

type heapItems[T any] []item[T]

func (h heapItems[T]) Len() int { return len(h) }
func (h heapItems[T]) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	return h[i].sequence < h[j].sequence
}
func (h heapItems[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *heapItems[T]) Push(x any)   { *h = append(*h, x.(item[T])) }
func (h *heapItems[T]) Pop() any {
	old := *h
	n := len(old)
	popped := old[n-1]
	*h = old[:n-1]
	return popped
}

// New constructs an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Insert adds a value at the given timestamp, breaking ties by insertion order.
func (q *Queue[T]) Insert(timestamp float32, value T) {
	if q == nil {
		return
	}
	heap.Push(&q.items, item[T]{timestamp: timestamp, sequence: q.seq, value: value})
	q.seq++
}

// Len reports the number of pending entries.
func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// PeekTime reports the timestamp of the earliest pending entry, if any.
func (q *Queue[T]) PeekTime() (float32, bool) {
	if q == nil || len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].timestamp, true
}

// PopIfLE removes and returns the earliest entry iff its timestamp is <= now.
func (q *Queue[T]) PopIfLE(now float32) (T, bool) {
	var zero T
	if q == nil || len(q.items) == 0 || q.items[0].timestamp > now {
		return zero, false
	}
	popped := heap.Pop(&q.items).(item[T])
	return popped.value, true
}

// Drain removes and returns every pending entry with timestamp <= now, in
// popped (timestamp, then FIFO) order.
func (q *Queue[T]) Drain(now float32) []T {
	var out []T
	for {
		v, ok := q.PopIfLE(now)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
