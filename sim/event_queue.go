package sim

import (
	"container/heap"
	"math"
)

// queueEntry wraps an Event with its insertion sequence for FIFO tie-breaking
// when timestamps are equal.
type queueEntry struct {
	event Event
	seq   uint64
}

// eventHeap implements heap.Interface ordered by (Time, seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventHeap []queueEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Time() != h[j].event.Time() {
		return h[i].event.Time() < h[j].event.Time()
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(queueEntry))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueEntry{}
	*h = old[:n-1]
	return item
}

// EventQueue is a min-heap of events ordered by (time, insertion order).
// It enforces monotonicity: once an event at time t has been popped, pushing an
// event earlier than t is rejected.
//
// Thread-safety: NOT thread-safe. The driver is its single writer.
type EventQueue struct {
	h       eventHeap
	nextSeq uint64
	last    float64
	popped  bool
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{h: make(eventHeap, 0)}
	heap.Init(&q.h)
	return q
}

// Push inserts ev. Returns an *OrderingViolationError, leaving the queue
// unchanged, if ev is earlier than the last popped event.
func (q *EventQueue) Push(ev Event) error {
	if ev == nil {
		panic("EventQueue.Push: event must not be nil")
	}
	if math.IsNaN(ev.Time()) || (q.popped && ev.Time() < q.last) {
		return &OrderingViolationError{Event: ev.Type(), Time: ev.Time(), Last: q.last}
	}
	heap.Push(&q.h, queueEntry{event: ev, seq: q.nextSeq})
	q.nextSeq++
	return nil
}

// PopNext removes and returns the causally-next event, or ErrEmptyQueue.
func (q *EventQueue) PopNext() (Event, error) {
	if len(q.h) == 0 {
		return nil, ErrEmptyQueue
	}
	entry := heap.Pop(&q.h).(queueEntry)
	q.last = entry.event.Time()
	q.popped = true
	return entry.event, nil
}

// Peek returns the next event without removing it, or nil when empty.
func (q *EventQueue) Peek() Event {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0].event
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return len(q.h) }

// LastPopped returns the time of the most recently popped event and whether any
// event has been popped yet.
func (q *EventQueue) LastPopped() (float64, bool) { return q.last, q.popped }

// Pushed returns the total number of events ever accepted.
func (q *EventQueue) Pushed() uint64 { return q.nextSeq }
