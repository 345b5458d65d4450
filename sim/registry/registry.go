// Package registry implements the resource discovery service. Datacenters
// register at start; brokers ask for the list of registered ids before
// creating VMs.
package registry

import (
	"fmt"
	"slices"

	"github.com/qos-sim/qos-sim/sim"
)

// Registry is the discovery entity.
type Registry struct {
	sim.BaseEntity
	resources []int
}

// New creates an unregistered Registry entity.
func New(name string) *Registry {
	return &Registry{BaseEntity: sim.NewBaseEntity(name)}
}

// Resources returns the registered resource ids in registration order.
func (r *Registry) Resources() []int {
	return slices.Clone(r.resources)
}

// ProcessEvent handles registration and list queries. A list query is
// answered with a TagResourceList event carrying []int.
func (r *Registry) ProcessEvent(ev *sim.Event) {
	switch ev.Tag() {
	case sim.TagRegisterResource:
		id := ev.Source()
		if slices.Contains(r.resources, id) {
			r.Log().Debugf("resource %d registered twice", id)
			return
		}
		r.resources = append(r.resources, id)
		r.Log().Debugf("registered resource %s", r.Simulation().EntityName(id))
	case sim.TagResourceList:
		r.SendNow(ev.Source(), sim.TagResourceList, r.Resources())
	case sim.TagEndOfSimulation:
		r.Finish()
	default:
		r.Log().Warnf("unknown tag %s from %d ignored", ev.Tag(), ev.Source())
	}
}

// SnapshotState implements sim.Stateful. The state is the registered ids.
func (r *Registry) SnapshotState() any {
	return r.Resources()
}

// RestoreState implements sim.Stateful.
func (r *Registry) RestoreState(state any) error {
	ids, ok := state.([]int)
	if !ok {
		return fmt.Errorf("registry %s: unexpected state %T", r.Name(), state)
	}
	r.resources = slices.Clone(ids)
	return nil
}
