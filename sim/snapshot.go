package sim

import (
	"container/heap"
	"fmt"
	"maps"
)

// EventRecord is the serializable form of a queued event.
type EventRecord struct {
	Kind           EventKind `json:"kind" yaml:"kind"`
	Time           float64   `json:"time" yaml:"time"`
	EndWaitingTime float64   `json:"end_waiting_time" yaml:"end_waiting_time"`
	Source         int       `json:"source" yaml:"source"`
	Destination    int       `json:"destination" yaml:"destination"`
	Tag            Tag       `json:"tag" yaml:"tag"`
	Data           any       `json:"data,omitempty" yaml:"data,omitempty"`
	Sequence       int64     `json:"sequence" yaml:"sequence"`
	Order          uint64    `json:"order" yaml:"order"`
}

// Stateful entities contribute their own state to snapshots.
type Stateful interface {
	SnapshotState() any
	RestoreState(state any) error
}

// Snapshot is the full kernel state at one instant. Wait predicates are
// functions and are carried by reference, not serialized. Event payloads
// keep their identity; Stateful entities restore the values behind them.
type Snapshot struct {
	Clock      float64               `json:"clock" yaml:"clock"`
	Started    bool                  `json:"started" yaml:"started"`
	Processed  int64                 `json:"processed" yaml:"processed"`
	NextSeq    int64                 `json:"next_seq" yaml:"next_seq"`
	Stamp      uint64                `json:"stamp" yaml:"stamp"`
	Future     []EventRecord         `json:"future" yaml:"future"`
	Deferred   map[int][]EventRecord `json:"deferred" yaml:"deferred"`
	MaxTimes   map[int]float64       `json:"max_times" yaml:"max_times"`
	Buffers    map[int]EventRecord   `json:"buffers,omitempty" yaml:"buffers,omitempty"`
	States     []EntityState         `json:"states" yaml:"states"`
	Entities   map[int]any           `json:"entities,omitempty" yaml:"entities,omitempty"`
	Terminated bool                  `json:"terminated" yaml:"terminated"`

	waits map[int]Predicate
}

// Snapshot captures the kernel and every Stateful entity.
func (s *Simulation) Snapshot() *Snapshot {
	snap := &Snapshot{
		Clock:      s.clock,
		Started:    s.started,
		Processed:  s.processed,
		NextSeq:    s.future.nextSeq,
		Stamp:      s.future.stamp,
		Deferred:   make(map[int][]EventRecord),
		MaxTimes:   make(map[int]float64),
		Buffers:    make(map[int]EventRecord),
		Entities:   make(map[int]any),
		Terminated: s.terminated,
		waits:      maps.Clone(s.waits),
	}
	for _, ev := range s.future.Events() {
		snap.Future = append(snap.Future, recordOf(ev))
	}
	for id, dq := range s.deferred {
		for _, ev := range dq.events {
			snap.Deferred[id] = append(snap.Deferred[id], recordOf(ev))
		}
		snap.MaxTimes[id] = dq.maxTime
	}
	for id, e := range s.entities {
		b := e.base()
		snap.States = append(snap.States, b.state)
		if b.buffer != nil {
			snap.Buffers[id] = recordOf(b.buffer)
		}
		if st, ok := e.(Stateful); ok {
			snap.Entities[id] = st.SnapshotState()
		}
	}
	return snap
}

// Restore rewinds the kernel and every Stateful entity to snap. The same
// entities must be registered, in the same order, as when snap was taken.
func (s *Simulation) Restore(snap *Snapshot) error {
	if len(snap.States) != len(s.entities) {
		return fmt.Errorf("restore: snapshot has %d entities, simulation has %d", len(snap.States), len(s.entities))
	}
	for id, e := range s.entities {
		st, ok := e.(Stateful)
		if !ok {
			continue
		}
		if err := st.RestoreState(snap.Entities[id]); err != nil {
			return fmt.Errorf("restore entity %s: %w", e.base().name, err)
		}
	}

	s.clock = snap.Clock
	s.started = snap.Started
	s.running = snap.Started
	s.processed = snap.Processed
	s.terminated = snap.Terminated
	s.abortErr = nil

	s.future = NewFutureQueue()
	for _, rec := range snap.Future {
		s.future.events = append(s.future.events, rec.event())
	}
	s.future.nextSeq = snap.NextSeq
	s.future.stamp = snap.Stamp
	heap.Init(&s.future.events)

	for id := range s.deferred {
		dq := NewDeferredQueue()
		for _, rec := range snap.Deferred[id] {
			dq.events = append(dq.events, rec.event())
		}
		if mt, ok := snap.MaxTimes[id]; ok {
			dq.maxTime = mt
		}
		s.deferred[id] = dq
	}
	for id, e := range s.entities {
		b := e.base()
		b.state = snap.States[id]
		b.buffer = nil
		if rec, ok := snap.Buffers[id]; ok {
			b.buffer = rec.event()
		}
	}
	s.waits = maps.Clone(snap.waits)
	if s.waits == nil {
		s.waits = make(map[int]Predicate)
	}
	return nil
}

func recordOf(ev *Event) EventRecord {
	return EventRecord{
		Kind:           ev.kind,
		Time:           ev.time,
		EndWaitingTime: ev.endWaitingTime,
		Source:         ev.src,
		Destination:    ev.dst,
		Tag:            ev.tag,
		Data:           ev.data,
		Sequence:       ev.sequence,
		Order:          ev.order,
	}
}

func (r EventRecord) event() *Event {
	return &Event{
		kind:           r.Kind,
		time:           r.Time,
		endWaitingTime: r.EndWaitingTime,
		src:            r.Source,
		dst:            r.Destination,
		tag:            r.Tag,
		data:           r.Data,
		sequence:       r.Sequence,
		order:          r.Order,
	}
}
