// Implements the DeferredQueue, which holds events that are already due for
// one entity but have not been consumed yet.

package sim

import (
	"fmt"
	"strings"
)

// DeferredQueue is ordered by time. An event inserted with a time equal to
// existing events lands after them.
type DeferredQueue struct {
	events  []*Event
	maxTime float64
}

// NewDeferredQueue creates an empty queue.
func NewDeferredQueue() *DeferredQueue {
	return &DeferredQueue{maxTime: -1}
}

// AddEvent inserts e before the first event with a strictly greater time,
// or appends it when none exists.
func (dq *DeferredQueue) AddEvent(e *Event) {
	if e.time >= dq.maxTime {
		dq.events = append(dq.events, e)
		dq.maxTime = e.time
		return
	}
	for i, ev := range dq.events {
		if ev.time > e.time {
			dq.events = append(dq.events, nil)
			copy(dq.events[i+1:], dq.events[i:])
			dq.events[i] = e
			return
		}
	}
	dq.events = append(dq.events, e)
}

// Len returns the number of queued events.
func (dq *DeferredQueue) Len() int { return len(dq.events) }

// Events returns the queued events in order. The slice is a copy.
func (dq *DeferredQueue) Events() []*Event {
	out := make([]*Event, len(dq.events))
	copy(out, dq.events)
	return out
}

// Count returns how many queued events match p.
func (dq *DeferredQueue) Count(p Predicate) int {
	n := 0
	for _, ev := range dq.events {
		if p(ev) {
			n++
		}
	}
	return n
}

// Select removes and returns the first event matching p, or nil.
func (dq *DeferredQueue) Select(p Predicate) *Event {
	for i, ev := range dq.events {
		if p(ev) {
			dq.events = append(dq.events[:i], dq.events[i+1:]...)
			return ev
		}
	}
	return nil
}

// Remove deletes the given event. Returns false if it is not queued.
func (dq *DeferredQueue) Remove(e *Event) bool {
	for i, ev := range dq.events {
		if ev == e {
			dq.events = append(dq.events[:i], dq.events[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every event.
func (dq *DeferredQueue) Clear() {
	dq.events = dq.events[:0]
	dq.maxTime = -1
}

func (dq *DeferredQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, ev := range dq.events {
		sb.WriteString(fmt.Sprint(ev))
		if i < len(dq.events)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
