package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// DelayModel returns the network delay between two entities.
type DelayModel interface {
	Delay(src, dst int) float64
}

// Stats summarizes a run.
type Stats struct {
	Clock           float64
	EventsProcessed int64
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithHorizon stops Run before any event due after horizon.
func WithHorizon(horizon float64) Option {
	return func(s *Simulation) { s.horizon = horizon }
}

// WithDelayModel enables network delays on Send.
func WithDelayModel(d DelayModel) Option {
	return func(s *Simulation) { s.delays = d }
}

// Simulation owns the logical clock, the future queue, and one deferred
// queue per registered entity. All state is reachable from this value;
// several simulations can coexist in one process.
//
// Not thread-safe. Entities run one at a time on the caller's goroutine.
type Simulation struct {
	clock     float64
	horizon   float64
	started   bool
	running   bool
	future    *FutureQueue
	deferred  []*DeferredQueue
	entities  []Entity
	names     map[string]int
	waits     map[int]Predicate
	delays    DelayModel
	processed int64

	terminated bool
	abortErr   error
}

// NewSimulation creates an empty simulation at clock 0.
func NewSimulation(opts ...Option) *Simulation {
	s := &Simulation{
		horizon: math.Inf(1),
		future:  NewFutureQueue(),
		names:   make(map[string]int),
		waits:   make(map[int]Predicate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the current logical time.
func (s *Simulation) Clock() float64 { return s.clock }

// Running reports whether entities may schedule events.
func (s *Simulation) Running() bool { return s.running }

// Horizon returns the configured horizon.
func (s *Simulation) Horizon() float64 { return s.horizon }

// NumEntities returns the number of registered entities.
func (s *Simulation) NumEntities() int { return len(s.entities) }

// PendingEvents returns the number of events in the future queue.
func (s *Simulation) PendingEvents() int { return s.future.Len() }

// Register adds an entity and assigns its id. Entities must be registered
// before the run starts.
func (s *Simulation) Register(e Entity) (int, error) {
	if s.started {
		return -1, ErrAlreadyRunning
	}
	b := e.base()
	if !validName(b.name) {
		return -1, fmt.Errorf("register %q: %w", b.name, ErrInvalidName)
	}
	if b.sim != nil {
		return -1, fmt.Errorf("register %q: already registered: %w", b.name, ErrDuplicateEntity)
	}
	if _, ok := s.names[b.name]; ok {
		return -1, fmt.Errorf("register %q: name in use: %w", b.name, ErrDuplicateEntity)
	}
	b.id = len(s.entities)
	b.sim = s
	b.state = StateRunnable
	s.entities = append(s.entities, e)
	s.deferred = append(s.deferred, NewDeferredQueue())
	s.names[b.name] = b.id
	return b.id, nil
}

// EntityID returns the id registered under name, or -1 and ErrEntityNotFound.
func (s *Simulation) EntityID(name string) (int, error) {
	id, ok := s.names[name]
	if !ok {
		return -1, fmt.Errorf("%q: %w", name, ErrEntityNotFound)
	}
	return id, nil
}

// Entity returns the entity with the given id.
func (s *Simulation) Entity(id int) (Entity, error) {
	if id < 0 || id >= len(s.entities) {
		return nil, fmt.Errorf("id %d: %w", id, ErrEntityNotFound)
	}
	return s.entities[id], nil
}

// EntityName returns the name of id, or "" when unknown.
func (s *Simulation) EntityName(id int) string {
	if id < 0 || id >= len(s.entities) {
		return ""
	}
	return s.entities[id].base().name
}

// Terminate stops the run after the current tick.
func (s *Simulation) Terminate() {
	s.terminated = true
}

// Abort stops the run after the current tick and makes Run return err.
// Only the first abort is kept.
func (s *Simulation) Abort(err error) {
	if s.abortErr == nil {
		s.abortErr = err
	}
	s.terminated = true
}

// Run starts every entity, dispatches events until the simulation is
// quiescent, and shuts every entity down. It stops early on context
// cancellation, Terminate, Abort, the horizon, or when every entity has
// finished.
func (s *Simulation) Run(ctx context.Context) (Stats, error) {
	stats, err := s.RunUntil(ctx, s.horizon)
	s.finish()
	return stats, err
}

// RunUntil dispatches events due no later than until and returns without
// shutting entities down, so the run can be inspected, snapshotted, and
// resumed with another RunUntil or Run call.
func (s *Simulation) RunUntil(ctx context.Context, until float64) (Stats, error) {
	if !s.started {
		s.begin()
	}
	for {
		if err := ctx.Err(); err != nil {
			return s.stats(), err
		}
		s.runEntities()
		if s.abortErr != nil {
			return s.stats(), s.abortErr
		}
		if s.terminated || s.allFinished() {
			return s.stats(), nil
		}
		next := s.future.Peek()
		if next == nil || next.time > until {
			return s.stats(), nil
		}
		s.processBatch()
	}
}

func (s *Simulation) begin() {
	s.started = true
	s.running = true
	logrus.Infof("simulation started with %d entities", len(s.entities))
	for _, e := range s.entities {
		e.Start()
	}
}

func (s *Simulation) finish() {
	if !s.started {
		return
	}
	for _, e := range s.entities {
		e.Shutdown()
	}
	s.running = false
	s.started = false
	logrus.Infof("simulation stopped at clock %.4f after %d events", s.clock, s.processed)
}

func (s *Simulation) stats() Stats {
	return Stats{Clock: s.clock, EventsProcessed: s.processed}
}

func (s *Simulation) allFinished() bool {
	if len(s.entities) == 0 {
		return false
	}
	for _, e := range s.entities {
		if e.base().state != StateFinished {
			return false
		}
	}
	return true
}

// runEntities runs every runnable entity in id order.
func (s *Simulation) runEntities() {
	for _, e := range s.entities {
		if e.base().state == StateRunnable {
			s.runEntity(e)
		}
	}
}

func (s *Simulation) runEntity(e Entity) {
	b := e.base()
	ev := b.buffer
	if ev == nil {
		ev = b.GetNextEvent(Any)
	}
	for ev != nil {
		e.ProcessEvent(ev)
		if b.state != StateRunnable {
			break
		}
		ev = b.GetNextEvent(Any)
	}
	b.buffer = nil
}

// processBatch pops the earliest event and every other event due at the same
// time, delivering each in order.
func (s *Simulation) processBatch() {
	first := s.future.PopNext()
	s.deliver(first)
	for next := s.future.Peek(); next != nil && next.time == first.time; next = s.future.Peek() {
		s.deliver(s.future.PopNext())
	}
}

func (s *Simulation) deliver(ev *Event) {
	if ev.time < s.clock {
		panic(fmt.Sprintf("clock moved backwards: event at %v, clock %v", ev.time, s.clock))
	}
	s.clock = ev.time
	s.processed++
	logrus.Tracef("deliver %s", ev)

	switch ev.kind {
	case EventSend:
		if ev.dst < 0 || ev.dst >= len(s.entities) {
			logrus.Warnf("event %s addressed to unknown entity dropped", ev)
			return
		}
		b := s.entities[ev.dst].base()
		if b.state == StateFinished {
			logrus.Debugf("event %s for finished entity %s dropped", ev, b.name)
			return
		}
		if b.state == StateWaiting {
			if p, ok := s.waits[ev.dst]; ok && p(ev) {
				ev.endWaitingTime = s.clock
				b.buffer = ev
				b.state = StateRunnable
				delete(s.waits, ev.dst)
				return
			}
		}
		s.deferred[ev.dst].AddEvent(ev)
	case EventHoldDone:
		if ev.src < 0 || ev.src >= len(s.entities) {
			return
		}
		b := s.entities[ev.src].base()
		if b.state != StateFinished {
			b.state = StateRunnable
		}
	default:
		logrus.Warnf("event %s of unsupported kind ignored", ev)
	}
}

func (s *Simulation) checkDelay(delay float64) float64 {
	if math.IsInf(delay, 0) || math.IsNaN(delay) {
		panic(fmt.Sprintf("invalid event delay %v", delay))
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func (s *Simulation) send(src, dst int, delay float64, tag Tag, data any) {
	delay = s.checkDelay(delay)
	s.future.AddEvent(NewEvent(EventSend, s.clock+delay, src, dst, tag, data))
}

func (s *Simulation) sendFirst(src, dst int, delay float64, tag Tag, data any) {
	delay = s.checkDelay(delay)
	s.future.AddEventFirst(NewEvent(EventSend, s.clock+delay, src, dst, tag, data))
}

func (s *Simulation) hold(src int, delay float64) {
	s.future.AddEvent(NewEvent(EventHoldDone, s.clock+delay, src, src, TagNone, nil))
}

func (s *Simulation) networkDelay(src, dst int) float64 {
	if s.delays == nil {
		return 0
	}
	d := s.delays.Delay(src, dst)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Simulation) waiting(id int, p Predicate) int {
	if id < 0 || id >= len(s.deferred) {
		return 0
	}
	return s.deferred[id].Count(p)
}

func (s *Simulation) selectEvent(id int, p Predicate) *Event {
	if id < 0 || id >= len(s.deferred) {
		return nil
	}
	ev := s.deferred[id].Select(p)
	if ev != nil {
		ev.endWaitingTime = s.clock
	}
	return ev
}

func (s *Simulation) cancel(src int, p Predicate) *Event {
	ev := s.future.First(And(FromSource(src), p))
	if ev != nil {
		s.future.Remove(ev)
	}
	return ev
}

func (s *Simulation) wait(id int, p Predicate) {
	s.waits[id] = p
}
