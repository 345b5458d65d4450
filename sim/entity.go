package sim

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// EntityState is the scheduling state of an entity.
type EntityState int

const (
	// StateRunnable entities are run on the next kernel tick.
	StateRunnable EntityState = iota
	// StateWaiting entities are blocked until an event matches their predicate.
	StateWaiting
	// StateHolding entities are paused until their hold expires.
	StateHolding
	// StateFinished entities receive no further events.
	StateFinished
)

func (s EntityState) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateWaiting:
		return "waiting"
	case StateHolding:
		return "holding"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entity is an addressable actor driven by the kernel. Implementations embed
// BaseEntity, which supplies identity, state, and the messaging API, and
// define ProcessEvent. Start and Shutdown default to no-ops.
type Entity interface {
	Start()
	ProcessEvent(ev *Event)
	Shutdown()
	base() *BaseEntity
}

// BaseEntity carries the kernel-facing state of an entity.
type BaseEntity struct {
	id     int
	name   string
	state  EntityState
	buffer *Event
	sim    *Simulation
}

// NewBaseEntity creates an unregistered entity core. The name is checked
// when the entity is registered.
func NewBaseEntity(name string) BaseEntity {
	return BaseEntity{id: -1, name: name}
}

func (b *BaseEntity) base() *BaseEntity { return b }

// Start is called once when the simulation begins.
func (b *BaseEntity) Start() {}

// Shutdown is called once when the simulation ends.
func (b *BaseEntity) Shutdown() {}

// ID returns the kernel-assigned id, or -1 before registration.
func (b *BaseEntity) ID() int { return b.id }

func (b *BaseEntity) Name() string { return b.name }

func (b *BaseEntity) State() EntityState { return b.state }

// Simulation returns the kernel this entity is registered with, or nil.
func (b *BaseEntity) Simulation() *Simulation { return b.sim }

// Clock returns the current logical time, or 0 before registration.
func (b *BaseEntity) Clock() float64 {
	if b.sim == nil {
		return 0
	}
	return b.sim.clock
}

// Log returns a logger annotated with the entity's identity and the clock.
func (b *BaseEntity) Log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"entity": b.name, "clock": b.Clock()})
}

// Schedule sends an event to dst after delay without network delay.
// A negative delay is treated as zero. No-op when the kernel is not running.
// Panics if delay is infinite.
func (b *BaseEntity) Schedule(dst int, delay float64, tag Tag, data any) {
	if b.sim == nil || !b.sim.Running() {
		return
	}
	b.sim.send(b.id, dst, delay, tag, data)
}

// ScheduleNow sends an event to dst at the current time.
func (b *BaseEntity) ScheduleNow(dst int, tag Tag, data any) {
	b.Schedule(dst, 0, tag, data)
}

// ScheduleFirst sends an event to dst after delay, ahead of every regular
// event due at the same time.
func (b *BaseEntity) ScheduleFirst(dst int, delay float64, tag Tag, data any) {
	if b.sim == nil || !b.sim.Running() {
		return
	}
	b.sim.sendFirst(b.id, dst, delay, tag, data)
}

// Send is Schedule plus the network delay between this entity and dst when
// the kernel has a delay model. Unknown (negative) destinations are dropped.
func (b *BaseEntity) Send(dst int, delay float64, tag Tag, data any) {
	if dst < 0 {
		b.Log().Warnf("send %s to invalid entity id %d dropped", tag, dst)
		return
	}
	if math.IsInf(delay, 0) {
		panic(fmt.Sprintf("entity %s: send with infinite delay", b.name))
	}
	if delay < 0 {
		delay = 0
	}
	if b.sim != nil && dst != b.id {
		delay += b.sim.networkDelay(b.id, dst)
	}
	b.Schedule(dst, delay, tag, data)
}

// SendNow is Send with zero delay.
func (b *BaseEntity) SendNow(dst int, tag Tag, data any) {
	b.Send(dst, 0, tag, data)
}

// Pause holds the entity for delay. Panics if delay is negative or infinite.
func (b *BaseEntity) Pause(delay float64) {
	if delay < 0 {
		panic(fmt.Sprintf("entity %s: negative pause delay %v", b.name, delay))
	}
	if math.IsInf(delay, 1) {
		panic(fmt.Sprintf("entity %s: infinite pause delay", b.name))
	}
	if b.sim == nil || !b.sim.Running() {
		return
	}
	b.sim.hold(b.id, delay)
	b.state = StateHolding
}

// NumEventsWaiting counts deferred events for this entity that match p.
func (b *BaseEntity) NumEventsWaiting(p Predicate) int {
	if b.sim == nil {
		return 0
	}
	return b.sim.waiting(b.id, p)
}

// SelectEvent removes and returns the first deferred event matching p, or nil.
func (b *BaseEntity) SelectEvent(p Predicate) *Event {
	if b.sim == nil || !b.sim.Running() {
		return nil
	}
	return b.sim.selectEvent(b.id, p)
}

// GetNextEvent is SelectEvent that returns nil without searching when nothing
// matches. It never blocks.
func (b *BaseEntity) GetNextEvent(p Predicate) *Event {
	if b.NumEventsWaiting(p) > 0 {
		return b.SelectEvent(p)
	}
	return nil
}

// CancelEvent withdraws the first future event sent by this entity that
// matches p. Returns the withdrawn event, or nil.
func (b *BaseEntity) CancelEvent(p Predicate) *Event {
	if b.sim == nil || !b.sim.Running() {
		return nil
	}
	return b.sim.cancel(b.id, p)
}

// WaitForEvent blocks the entity until the kernel delivers an event matching
// p. The deferred queue is not searched.
func (b *BaseEntity) WaitForEvent(p Predicate) {
	if b.sim == nil || !b.sim.Running() {
		return
	}
	b.sim.wait(b.id, p)
	b.state = StateWaiting
}

// Finish moves the entity to its terminal state.
func (b *BaseEntity) Finish() {
	b.state = StateFinished
}

func validName(name string) bool {
	return name != "" && !strings.ContainsFunc(name, unicode.IsSpace)
}
