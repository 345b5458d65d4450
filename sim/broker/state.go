package broker

import (
	"fmt"
	"maps"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/datacenter"
	"github.com/qos-sim/qos-sim/sim/placement"
)

// State is the serializable form of a Broker. Cloudlets and VMs are copied
// by value, in the order the broker was given them; every list refers to
// them by id.
type State struct {
	Cloudlets []cloud.CloudletState `json:"cloudlets"`
	VMs       []cloud.VM            `json:"vms"`

	Created   []int       `json:"created"`
	FailedVMs []int       `json:"failed_vms"`
	Attempts  map[int]int `json:"attempts"`
	Acks      int         `json:"acks"`

	Datacenters     []int                              `json:"datacenters"`
	Characteristics map[int]datacenter.Characteristics `json:"characteristics"`
	Pending         []int                              `json:"pending"`
	Postponed       []int                              `json:"postponed"`
	Received        []int                              `json:"received"`
	Canceled        []int                              `json:"canceled"`
	Withdrawn       []int                              `json:"withdrawn"`
	Batches         int                                `json:"batches"`
	InFlight        int                                `json:"in_flight"`
	Ready           placement.ReadyTimes               `json:"ready"`
	VMsReady        bool                               `json:"vms_ready"`
	FallbackRR      int                                `json:"fallback_rr"`
	Done            bool                               `json:"done"`
	TraceBinds      int                                `json:"trace_binds"`
	TraceCancels    int                                `json:"trace_cancels"`
}

var _ sim.Stateful = (*Broker)(nil)

// SnapshotState implements sim.Stateful.
func (b *Broker) SnapshotState() any {
	st := State{
		Cloudlets:       make([]cloud.CloudletState, len(b.cloudlets)),
		VMs:             make([]cloud.VM, len(b.requested)),
		Created:         vmIDs(b.created),
		FailedVMs:       vmIDs(b.failedVMs),
		Attempts:        maps.Clone(b.attempts),
		Acks:            b.acks,
		Datacenters:     append([]int(nil), b.datacenters...),
		Characteristics: maps.Clone(b.characteristics),
		Pending:         cloudletIDs(b.pending),
		Postponed:       cloudletIDs(b.postponed),
		Received:        cloudletIDs(b.received),
		Canceled:        cloudletIDs(b.canceled),
		Withdrawn:       cloudletIDs(b.withdrawn),
		Batches:         b.batches,
		InFlight:        b.inFlight,
		Ready:           maps.Clone(b.ready),
		VMsReady:        b.vmsReady,
		FallbackRR:      b.fallbackRR,
		Done:            b.done,
	}
	for i, c := range b.cloudlets {
		st.Cloudlets[i] = c.State()
	}
	for i, vm := range b.requested {
		st.VMs[i] = *vm
	}
	st.TraceBinds, st.TraceCancels = b.trace.Mark()
	return st
}

// RestoreState implements sim.Stateful. The broker must hold the same
// cloudlets and VMs as when the state was taken.
func (b *Broker) RestoreState(state any) error {
	st, ok := state.(State)
	if !ok {
		return fmt.Errorf("broker %s: unexpected state %T", b.Name(), state)
	}
	if len(st.Cloudlets) != len(b.cloudlets) || len(st.VMs) != len(b.requested) {
		return fmt.Errorf("broker %s: state has %d cloudlets and %d vms, broker has %d and %d",
			b.Name(), len(st.Cloudlets), len(st.VMs), len(b.cloudlets), len(b.requested))
	}
	for i, c := range b.cloudlets {
		c.SetState(st.Cloudlets[i])
	}
	for i, vm := range b.requested {
		*vm = st.VMs[i]
	}

	var err error
	resolveVMs := func(ids []int) []*cloud.VM {
		out := make([]*cloud.VM, 0, len(ids))
		for _, id := range ids {
			vm, ok := cloud.FindVM(b.requested, id)
			if !ok {
				err = fmt.Errorf("broker %s: vm %d: %w", b.Name(), id, sim.ErrEntityNotFound)
				continue
			}
			out = append(out, vm)
		}
		return out
	}
	resolveCloudlets := func(ids []int) []*cloud.Cloudlet {
		out := make([]*cloud.Cloudlet, 0, len(ids))
		for _, id := range ids {
			c, ok := cloud.FindCloudlet(b.cloudlets, id)
			if !ok {
				err = fmt.Errorf("broker %s: cloudlet %d: %w", b.Name(), id, sim.ErrEntityNotFound)
				continue
			}
			out = append(out, c)
		}
		return out
	}

	b.created = resolveVMs(st.Created)
	b.failedVMs = resolveVMs(st.FailedVMs)
	b.pending = resolveCloudlets(st.Pending)
	b.postponed = resolveCloudlets(st.Postponed)
	b.received = resolveCloudlets(st.Received)
	b.canceled = resolveCloudlets(st.Canceled)
	b.withdrawn = resolveCloudlets(st.Withdrawn)
	if err != nil {
		return err
	}

	b.attempts = maps.Clone(st.Attempts)
	if b.attempts == nil {
		b.attempts = make(map[int]int)
	}
	b.acks = st.Acks
	b.datacenters = append([]int(nil), st.Datacenters...)
	b.characteristics = maps.Clone(st.Characteristics)
	if b.characteristics == nil {
		b.characteristics = make(map[int]datacenter.Characteristics)
	}
	b.batches = st.Batches
	b.inFlight = st.InFlight
	b.ready = maps.Clone(st.Ready)
	if b.ready == nil {
		b.ready = make(placement.ReadyTimes)
	}
	b.vmsReady = st.VMsReady
	b.fallbackRR = st.FallbackRR
	b.done = st.Done
	b.trace.Rewind(st.TraceBinds, st.TraceCancels)
	return nil
}

func vmIDs(vms []*cloud.VM) []int {
	ids := make([]int, len(vms))
	for i, vm := range vms {
		ids[i] = vm.ID
	}
	return ids
}

func cloudletIDs(cls []*cloud.Cloudlet) []int {
	ids := make([]int, len(cls))
	for i, c := range cls {
		ids[i] = c.ID
	}
	return ids
}
