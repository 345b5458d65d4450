// Package broker implements the user-side entity that leases VMs from
// datacenters, places cloudlets on them with a placement policy, and
// collects the results.
//
// Lifecycle:
//
//	start -> resource list -> characteristics -> VM creation -> placement
//	      -> submission -> returns -> VM teardown -> end of simulation
//
// Cloudlets with a SubmitTime in the future reach the broker as arrival
// batches and are placed against the same readiness map, so earlier
// placements are accounted for.
//
// With a withdraw grace set, the broker asks for the status of every
// cloudlet still out at its deadline plus the grace, and cancels it if the
// datacenter still has it. Scheduled migrations are forwarded to the
// datacenter hosting the VM when they fall due.
package broker

import (
	"fmt"
	"slices"
	"sort"

	"github.com/markphelps/optional"
	"github.com/uber-go/tally/v4"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/datacenter"
	"github.com/qos-sim/qos-sim/sim/placement"
	"github.com/qos-sim/qos-sim/sim/trace"
)

// Config configures a Broker.
type Config struct {
	RegistryID int
	Policy     placement.Policy
	Predictor  placement.Predictor // readiness of pinned cloudlets; should match Policy's
	VMs        []*cloud.VM
	Cloudlets  []*cloud.Cloudlet
	Trace      *trace.SimulationTrace // nil disables tracing
	Scope      tally.Scope            // nil disables metrics

	Migrations    []Migration
	WithdrawGrace optional.Float64 // unset never withdraws
}

// Migration moves a VM to another host of its datacenter at time At. A VM
// that is not running when its migration falls due is skipped.
type Migration struct {
	At     float64
	VMID   int
	HostID int
}

// Broker is the placement entity.
type Broker struct {
	sim.BaseEntity
	registryID int
	policy     placement.Policy
	pred       placement.Predictor
	trace      *trace.SimulationTrace

	requested []*cloud.VM
	created   []*cloud.VM
	failedVMs []*cloud.VM
	attempts  map[int]int // vm id -> index into datacenters of the pending attempt
	acks      int

	datacenters     []int
	characteristics map[int]datacenter.Characteristics

	cloudlets  []*cloud.Cloudlet
	pending    []*cloud.Cloudlet // arrived, not yet submitted
	postponed  []*cloud.Cloudlet // bound to a VM that does not exist
	received   []*cloud.Cloudlet
	canceled   []*cloud.Cloudlet
	withdrawn  []*cloud.Cloudlet
	batches    int // arrival batches still to come
	inFlight   int
	ready      placement.ReadyTimes
	vmsReady   bool
	fallbackRR int
	done       bool

	migrations    []Migration
	withdrawGrace optional.Float64

	submitted tally.Counter
	bound     tally.Counter
	cancels   tally.Counter
	returned  tally.Counter
	vmsOK     tally.Counter
	vmsFailed tally.Counter
	withdraws tally.Counter
	migrated  tally.Counter
	migFailed tally.Counter
	outstand  tally.Gauge
}

// New creates a Broker. VMs and cloudlets are owned by the broker from now
// on; cloudlet OwnerIDs are set at registration time.
func New(name string, cfg Config) *Broker {
	scope := cfg.Scope
	if scope == nil {
		scope = tally.NoopScope
	}
	scope = scope.SubScope("broker")
	policy := cfg.Policy
	if policy == nil {
		policy = placement.NewPolicy("", placement.Predictor{})
	}
	return &Broker{
		BaseEntity:      sim.NewBaseEntity(name),
		registryID:      cfg.RegistryID,
		policy:          policy,
		pred:            cfg.Predictor,
		trace:           cfg.Trace,
		requested:       cfg.VMs,
		attempts:        make(map[int]int),
		characteristics: make(map[int]datacenter.Characteristics),
		cloudlets:       cfg.Cloudlets,
		ready:           make(placement.ReadyTimes),
		migrations:      cfg.Migrations,
		withdrawGrace:   cfg.WithdrawGrace,
		submitted:       scope.Counter("cloudlets_submitted"),
		bound:           scope.Counter("cloudlets_bound"),
		cancels:         scope.Counter("cloudlets_canceled"),
		returned:        scope.Counter("cloudlets_returned"),
		vmsOK:           scope.Counter("vms_created"),
		vmsFailed:       scope.Counter("vms_failed"),
		withdraws:       scope.Counter("cloudlets_withdrawn"),
		migrated:        scope.Counter("migrations"),
		migFailed:       scope.Counter("migration_failures"),
		outstand:        scope.Gauge("cloudlets_in_flight"),
	}
}

// BindCloudletToVM pins a cloudlet to a VM before the run. The placement
// policy leaves pinned cloudlets alone.
func (b *Broker) BindCloudletToVM(cloudletID, vmID int) error {
	c, ok := cloud.FindCloudlet(b.cloudlets, cloudletID)
	if !ok {
		return fmt.Errorf("bind cloudlet %d: %w", cloudletID, sim.ErrEntityNotFound)
	}
	c.VMID = vmID
	return nil
}

// Policy returns the placement policy in use.
func (b *Broker) Policy() placement.Policy { return b.policy }

// Cloudlets returns every cloudlet the broker was given.
func (b *Broker) Cloudlets() []*cloud.Cloudlet { return b.cloudlets }

// Received returns cloudlets returned by datacenters, in return order.
func (b *Broker) Received() []*cloud.Cloudlet { return b.received }

// Canceled returns cloudlets the policy refused to place.
func (b *Broker) Canceled() []*cloud.Cloudlet { return b.canceled }

// Withdrawn returns cloudlets canceled at their datacenter after missing the
// deadline by more than the grace.
func (b *Broker) Withdrawn() []*cloud.Cloudlet { return b.withdrawn }

// Postponed returns cloudlets pinned to a VM that was never created.
func (b *Broker) Postponed() []*cloud.Cloudlet { return b.postponed }

// VMs returns the VMs that were created, in id order.
func (b *Broker) VMs() []*cloud.VM { return b.created }

// FailedVMs returns VMs no datacenter could host.
func (b *Broker) FailedVMs() []*cloud.VM { return b.failedVMs }

// Done reports whether the broker completed its lifecycle.
func (b *Broker) Done() bool { return b.done }

// Start schedules the discovery step and the arrival batches.
func (b *Broker) Start() {
	for _, c := range b.cloudlets {
		c.OwnerID = b.ID()
	}
	b.ScheduleNow(b.ID(), sim.TagResourceCharacteristicsRequest, nil)

	var later []*cloud.Cloudlet
	for _, c := range b.cloudlets {
		if c.SubmitTime > 0 {
			later = append(later, c)
		} else {
			b.pending = append(b.pending, c)
		}
	}
	sort.SliceStable(later, func(i, j int) bool { return later[i].SubmitTime < later[j].SubmitTime })
	for start := 0; start < len(later); {
		end := start + 1
		for end < len(later) && later[end].SubmitTime == later[start].SubmitTime {
			end++
		}
		b.Schedule(b.ID(), later[start].SubmitTime, sim.TagCloudletArrival, later[start:end:end])
		b.batches++
		start = end
	}
	for _, m := range b.migrations {
		b.Schedule(b.ID(), m.At, sim.TagVMMigrate, datacenter.MigrationRequest{VMID: m.VMID, HostID: m.HostID})
	}
}

// ProcessEvent dispatches on the event tag.
func (b *Broker) ProcessEvent(ev *sim.Event) {
	switch ev.Tag() {
	case sim.TagResourceCharacteristicsRequest:
		b.SendNow(b.registryID, sim.TagResourceList, nil)
	case sim.TagResourceList:
		b.onResourceList(ev.Data().([]int))
	case sim.TagResourceCharacteristics:
		b.onCharacteristics(ev.Data().(datacenter.Characteristics))
	case sim.TagVMCreateAck:
		b.onVMAck(ev.Data().(datacenter.VMAck))
	case sim.TagCloudletArrival:
		b.onArrival(ev.Data().([]*cloud.Cloudlet))
	case sim.TagCloudletReturn:
		b.onReturn(ev.Data().(*cloud.Cloudlet))
	case sim.TagCloudletStatus:
		if ev.Source() == b.ID() {
			b.onOverdue(ev.Data().(int))
		} else {
			b.onStatus(ev.Data().(datacenter.CloudletStatus))
		}
	case sim.TagCloudletCancel:
		st := ev.Data().(datacenter.CloudletStatus)
		b.Log().Debugf("cancel of cloudlet %d acknowledged, found=%t", st.CloudletID, st.Found)
	case sim.TagVMMigrate:
		b.onMigrate(ev.Data().(datacenter.MigrationRequest))
	case sim.TagVMMigrateAck:
		b.onMigrateAck(ev.Data().(datacenter.MigrationAck))
	case sim.TagVMDestroyAck:
	case sim.TagEndOfSimulation:
		b.Finish()
	default:
		b.Log().Warnf("unknown tag %s from %d ignored", ev.Tag(), ev.Source())
	}
}

func (b *Broker) onResourceList(ids []int) {
	b.datacenters = ids
	if len(ids) == 0 {
		b.Log().Error("no datacenters registered")
		b.abandon()
		return
	}
	for _, id := range ids {
		b.SendNow(id, sim.TagResourceCharacteristicsRequest, nil)
	}
}

func (b *Broker) onCharacteristics(c datacenter.Characteristics) {
	b.characteristics[c.ID] = c
	if len(b.characteristics) < len(b.datacenters) {
		return
	}
	if len(b.requested) == 0 {
		b.vmsDone()
		return
	}
	for _, vm := range b.requested {
		b.attempts[vm.ID] = 0
		b.acks++
		b.SendNow(b.datacenters[0], sim.TagVMCreate, vm)
	}
}

// onVMAck retries a rejected VM on the next datacenter in registry order.
func (b *Broker) onVMAck(ack datacenter.VMAck) {
	b.acks--
	vm := ack.VM
	if ack.OK {
		b.created = append(b.created, vm)
		b.vmsOK.Inc(1)
		b.Log().Debugf("vm %d created in %s", vm.ID, b.Simulation().EntityName(vm.DatacenterID))
	} else if next := b.attempts[vm.ID] + 1; next < len(b.datacenters) {
		b.attempts[vm.ID] = next
		b.acks++
		b.SendNow(b.datacenters[next], sim.TagVMCreate, vm)
	} else {
		b.failedVMs = append(b.failedVMs, vm)
		b.vmsFailed.Inc(1)
		b.Log().Warnf("vm %d could not be created in any datacenter", vm.ID)
	}
	if b.acks == 0 {
		b.vmsDone()
	}
}

func (b *Broker) vmsDone() {
	slices.SortFunc(b.created, func(x, y *cloud.VM) int { return x.ID - y.ID })
	b.vmsReady = true
	if len(b.created) == 0 {
		b.Log().Error("no vms created")
		b.abandon()
		return
	}
	b.ready = placement.NewReadyTimes(b.created, b.Clock())
	b.place()
	b.checkDone()
}

func (b *Broker) onArrival(batch []*cloud.Cloudlet) {
	b.batches--
	b.pending = append(b.pending, batch...)
	if !b.vmsReady {
		return
	}
	b.place()
	b.checkDone()
}

// place submits pinned cloudlets, then runs the policy over the rest.
func (b *Broker) place() {
	now := b.Clock()
	b.ready.Advance(b.created, now)
	batch := b.pending
	b.pending = nil

	var free []*cloud.Cloudlet
	for _, c := range batch {
		if c.Done() {
			continue
		}
		if !c.Bound() {
			free = append(free, c)
			continue
		}
		vm, ok := cloud.FindVM(b.created, c.VMID)
		if !ok {
			b.Log().Warnf("cloudlet %d bound to missing vm %d postponed", c.ID, c.VMID)
			b.postponed = append(b.postponed, c)
			continue
		}
		b.ready[vm.ID] = b.pred.FinishLine(c, vm, b.ready)
		b.submit(c, vm)
	}
	if len(free) == 0 {
		return
	}

	out := b.policy.Bind(free, b.created, b.ready)
	b.record(out, now)
	for _, d := range out.Bound {
		c, _ := cloud.FindCloudlet(free, d.CloudletID)
		vm, _ := cloud.FindVM(b.created, d.VMID)
		b.bound.Inc(1)
		b.submit(c, vm)
	}
	for _, x := range out.Canceled {
		c, _ := cloud.FindCloudlet(free, x.CloudletID)
		b.canceled = append(b.canceled, c)
		b.cancels.Inc(1)
	}
	for _, c := range free {
		if c.Bound() || c.Done() {
			continue
		}
		vm := b.created[b.fallbackRR%len(b.created)]
		b.fallbackRR++
		c.VMID = vm.ID
		b.Log().Debugf("cloudlet %d left unbound by %s, assigned vm %d", c.ID, b.policy.Name(), vm.ID)
		b.submit(c, vm)
	}
}

func (b *Broker) record(out placement.Outcome, now float64) {
	if !b.trace.Enabled() {
		return
	}
	for _, d := range out.Bound {
		b.trace.RecordBind(trace.BindRecord{
			CloudletID:   d.CloudletID,
			VMID:         d.VMID,
			Clock:        now,
			Policy:       b.policy.Name(),
			FinishLine:   d.FinishLine,
			Compensated:  d.Compensated,
			Delay:        d.Settlement.Delay,
			Compensation: d.Settlement.Compensation,
			Profit:       d.Settlement.Profit,
		})
	}
	for _, x := range out.Canceled {
		b.trace.RecordCancel(trace.CancelRecord{
			CloudletID: x.CloudletID,
			Clock:      now,
			Policy:     b.policy.Name(),
			Reason:     x.Reason,
		})
	}
}

func (b *Broker) submit(c *cloud.Cloudlet, vm *cloud.VM) {
	c.OwnerID = b.ID()
	b.Send(vm.DatacenterID, 0, sim.TagCloudletSubmit, c)
	b.inFlight++
	b.submitted.Inc(1)
	b.outstand.Update(float64(b.inFlight))
	if grace, err := b.withdrawGrace.Get(); err == nil {
		b.Schedule(b.ID(), max(c.AbsoluteDeadline()+grace-b.Clock(), 0), sim.TagCloudletStatus, c.ID)
	}
}

func (b *Broker) onReturn(c *cloud.Cloudlet) {
	b.inFlight--
	b.received = append(b.received, c)
	b.returned.Inc(1)
	b.outstand.Update(float64(b.inFlight))
	b.CancelEvent(overdueCheck(c.ID))
	if c.Status() == cloud.StatusCanceled {
		b.withdrawn = append(b.withdrawn, c)
		b.withdraws.Inc(1)
	}
	b.Log().Debugf("cloudlet %d returned with status %s", c.ID, c.Status())
	b.checkDone()
}

// onOverdue asks the hosting datacenter about a cloudlet past its deadline
// and grace.
func (b *Broker) onOverdue(id int) {
	c, ok := cloud.FindCloudlet(b.cloudlets, id)
	if !ok || c.Done() {
		return
	}
	vm, ok := cloud.FindVM(b.created, c.VMID)
	if !ok {
		return
	}
	b.SendNow(vm.DatacenterID, sim.TagCloudletStatus, id)
}

func (b *Broker) onStatus(st datacenter.CloudletStatus) {
	if !st.Found || (st.Status != cloud.StatusQueued && st.Status != cloud.StatusInExec) {
		return
	}
	c, ok := cloud.FindCloudlet(b.cloudlets, st.CloudletID)
	if !ok {
		return
	}
	vm, ok := cloud.FindVM(b.created, c.VMID)
	if !ok {
		return
	}
	b.Log().Infof("withdrawing overdue cloudlet %d (%s)", c.ID, st.Status)
	b.SendNow(vm.DatacenterID, sim.TagCloudletCancel, c.ID)
}

func (b *Broker) onMigrate(req datacenter.MigrationRequest) {
	vm, ok := cloud.FindVM(b.created, req.VMID)
	if !ok {
		b.Log().Warnf("migration of vm %d to host %d skipped: vm not running", req.VMID, req.HostID)
		b.migFailed.Inc(1)
		return
	}
	b.SendNow(vm.DatacenterID, sim.TagVMMigrate, req)
}

func (b *Broker) onMigrateAck(ack datacenter.MigrationAck) {
	if ack.Result.IsOK() {
		b.migrated.Inc(1)
		return
	}
	b.migFailed.Inc(1)
	b.Log().Warnf("migration of vm %d to host %d %s: %v", ack.VMID, ack.HostID, ack.Result.Outcome, ack.Result.Err)
}

func overdueCheck(id int) sim.Predicate {
	return func(ev *sim.Event) bool {
		return ev.Tag() == sim.TagCloudletStatus && ev.Data() == any(id)
	}
}

func (b *Broker) checkDone() {
	if b.done || !b.vmsReady || b.inFlight > 0 || b.batches > 0 {
		return
	}
	b.shutdown()
}

// abandon cancels everything that has not been placed and ends the run.
func (b *Broker) abandon() {
	for _, c := range b.cloudlets {
		switch {
		case c.Done():
		case c.Bound():
			b.postponed = append(b.postponed, c)
		case c.Cancel():
			b.canceled = append(b.canceled, c)
			b.cancels.Inc(1)
		}
	}
	b.pending = nil
	for b.CancelEvent(sim.MatchTags(sim.TagCloudletArrival)) != nil {
	}
	b.batches = 0
	b.shutdown()
}

// shutdown withdraws pending migrations, destroys every VM, and tells every
// other entity the run is over.
func (b *Broker) shutdown() {
	b.done = true
	due := sim.And(sim.MatchTags(sim.TagVMMigrate), func(ev *sim.Event) bool { return ev.Destination() == b.ID() })
	for ev := b.CancelEvent(due); ev != nil; ev = b.CancelEvent(due) {
		req := ev.Data().(datacenter.MigrationRequest)
		b.Log().Debugf("migration of vm %d dropped at shutdown", req.VMID)
	}
	for _, vm := range b.created {
		b.SendNow(vm.DatacenterID, sim.TagVMDestroy, vm.ID)
	}
	for _, id := range b.datacenters {
		b.SendNow(id, sim.TagEndOfSimulation, nil)
	}
	if b.registryID >= 0 {
		b.SendNow(b.registryID, sim.TagEndOfSimulation, nil)
	}
	b.Log().Infof("done: %d returned, %d canceled, %d postponed", len(b.received), len(b.canceled), len(b.postponed))
	b.Finish()
}
