// Package sim provides the discrete-event kernel the placement simulator
// runs on.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event, its tags, and ordering (time, then sequence)
//   - entity.go: BaseEntity and the RUNNABLE / HOLDING / WAITING / FINISHED state machine
//   - simulation.go: the Simulation context, Register, and the dispatch loop in Run
//
// # Architecture
//
// The sim package owns time and message delivery; the cloud model lives in
// sub-packages:
//   - sim/cloud/: Cloudlet, VM, and Host types
//   - sim/placement/: finish-time predictor, profit model, and matching policies
//   - sim/broker/: the entity that creates VMs and places cloudlets
//   - sim/datacenter/: VM allocation and space-shared cloudlet execution
//   - sim/registry/: resource discovery
//   - sim/workload/: workload spec and generator
//   - sim/trace/: placement decision trace
//   - sim/metrics/: end-of-run SLA report
//   - sim/scenario/: scenario files and run wiring
//
// # Key Interfaces
//
//   - Entity: Start, ProcessEvent, Shutdown; embed BaseEntity for the rest
//   - Predicate: a closure selecting events from the deferred queue
//   - DelayModel: message delay between two entities
//   - Stateful: entity state captured by Snapshot and reinstated by Restore
package sim
