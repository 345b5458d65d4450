package sim

import (
	"container/heap"
	"sort"
)

// FutureQueue holds events that are not yet due.
// Ordering: time → sequence → insertion order
type FutureQueue struct {
	events  eventHeap
	nextSeq int64
	stamp   uint64
}

// NewFutureQueue creates an empty queue. Sequence numbers start at 1 so that
// AddEventFirst's sequence 0 precedes every regular event at the same time.
func NewFutureQueue() *FutureQueue {
	q := &FutureQueue{nextSeq: 1}
	heap.Init(&q.events)
	return q
}

// AddEvent assigns the next sequence number and inserts the event.
func (q *FutureQueue) AddEvent(e *Event) {
	e.sequence = q.nextSeq
	q.nextSeq++
	q.push(e)
}

// AddEventFirst inserts the event ahead of every regular event sharing its
// time. Several priority events at one time keep their insertion order.
func (q *FutureQueue) AddEventFirst(e *Event) {
	e.sequence = 0
	q.push(e)
}

func (q *FutureQueue) push(e *Event) {
	e.order = q.stamp
	q.stamp++
	heap.Push(&q.events, e)
}

// Len returns the number of queued events.
func (q *FutureQueue) Len() int { return q.events.Len() }

// Peek returns the earliest event without removing it, or nil.
func (q *FutureQueue) Peek() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	return q.events[0]
}

// PopNext removes and returns the earliest event, or nil.
func (q *FutureQueue) PopNext() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.events).(*Event)
}

// Remove deletes the given event. Returns false if it is not queued.
func (q *FutureQueue) Remove(e *Event) bool {
	for i, ev := range q.events {
		if ev == e {
			heap.Remove(&q.events, i)
			return true
		}
	}
	return false
}

// RemoveAll deletes every given event that is queued. Returns true if the
// queue changed.
func (q *FutureQueue) RemoveAll(events []*Event) bool {
	changed := false
	for _, e := range events {
		if q.Remove(e) {
			changed = true
		}
	}
	return changed
}

// Clear drops every event. Sequence numbering continues.
func (q *FutureQueue) Clear() {
	q.events = q.events[:0]
}

// Events returns the queued events in service order. The slice is a copy.
func (q *FutureQueue) Events() []*Event {
	out := make([]*Event, len(q.events))
	copy(out, q.events)
	sort.Slice(out, func(i, j int) bool { return eventLess(out[i], out[j]) })
	return out
}

// First returns the earliest queued event matching p, or nil.
func (q *FutureQueue) First(p Predicate) *Event {
	var best *Event
	for _, ev := range q.events {
		if p(ev) && (best == nil || eventLess(ev, best)) {
			best = ev
		}
	}
	return best
}

// eventHeap implements heap.Interface over event pointers.
type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return eventLess(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
