package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when an entity name is empty or contains whitespace.
	ErrInvalidName = errors.New("invalid entity name")
	// ErrDuplicateEntity is returned when an entity or name is registered twice.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrEntityNotFound is returned for unknown entity ids or names.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrAlreadyRunning is returned when the kernel is modified during a run.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrNotRunning is returned when an operation requires a running kernel.
	ErrNotRunning = errors.New("simulation not running")
)

// Outcome classifies the result of a resource operation whose failure may or
// may not be survivable.
type Outcome int

const (
	// OutcomeOK means the operation succeeded.
	OutcomeOK Outcome = iota
	// OutcomeCancelled means the operation was refused and nothing changed.
	// The caller may retry or skip.
	OutcomeCancelled
	// OutcomeFatal means the simulation state can no longer be trusted.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result pairs an Outcome with the reason it was not OK.
type Result struct {
	Outcome Outcome
	Err     error
}

// Ok returns a successful Result.
func Ok() Result { return Result{Outcome: OutcomeOK} }

// Cancelled returns a refused Result.
func Cancelled(err error) Result { return Result{Outcome: OutcomeCancelled, Err: err} }

// Fatal returns an unrecoverable Result.
func Fatal(err error) Result { return Result{Outcome: OutcomeFatal, Err: err} }

func (r Result) IsOK() bool { return r.Outcome == OutcomeOK }
