package sim

import "fmt"

// EventKind distinguishes kernel bookkeeping events from messages between entities.
type EventKind int

const (
	// EventNull is the zero kind. Never scheduled.
	EventNull EventKind = iota
	// EventSend carries a tagged message from one entity to another.
	EventSend
	// EventHoldDone resumes an entity that paused itself.
	EventHoldDone
	// EventCreate announces an entity created during the run.
	EventCreate
)

func (k EventKind) String() string {
	switch k {
	case EventSend:
		return "send"
	case EventHoldDone:
		return "hold_done"
	case EventCreate:
		return "create"
	default:
		return "null"
	}
}

// Event is a scheduled occurrence. Fields are read-only once the event has
// been created, except the end-of-waiting stamp set when the event is
// dequeued for service.
type Event struct {
	kind           EventKind
	time           float64
	endWaitingTime float64
	src            int
	dst            int
	tag            Tag
	data           any

	// sequence breaks ties between events with equal time. Assigned by the
	// FutureQueue; -1 until then.
	sequence int64
	// order is the insertion stamp that keeps heap ordering total when two
	// priority events share a timestamp.
	order uint64
}

// NewEvent creates an event that has not been queued yet.
func NewEvent(kind EventKind, time float64, src, dst int, tag Tag, data any) *Event {
	return &Event{
		kind:     kind,
		time:     time,
		src:      src,
		dst:      dst,
		tag:      tag,
		data:     data,
		sequence: -1,
	}
}

func (e *Event) Kind() EventKind { return e.kind }

// Time returns the logical time at which the event is due.
func (e *Event) Time() float64 { return e.time }

// EndWaitingTime returns the clock value at which the event left a queue
// for service. Zero if it has not been serviced.
func (e *Event) EndWaitingTime() float64 { return e.endWaitingTime }

func (e *Event) Source() int      { return e.src }
func (e *Event) Destination() int { return e.dst }
func (e *Event) Tag() Tag         { return e.tag }
func (e *Event) Data() any        { return e.data }
func (e *Event) Sequence() int64  { return e.sequence }

func (e *Event) String() string {
	return fmt.Sprintf("Event{%s t=%.4f %d->%d tag=%s seq=%d}", e.kind, e.time, e.src, e.dst, e.tag, e.sequence)
}

// eventLess orders events by time, then sequence, then insertion order.
func eventLess(a, b *Event) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	if a.sequence != b.sequence {
		return a.sequence < b.sequence
	}
	return a.order < b.order
}
