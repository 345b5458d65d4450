// Package datacenter implements the VM execution layer: hosts that place VMs,
// space-shared cloudlet execution on each VM, and VM migration between hosts.
package datacenter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/uber-go/tally/v4"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
)

// Migration failure policies.
const (
	MigrationAbort = "abort"
	MigrationSkip  = "skip"
)

// ValidMigrationPolicies lists accepted failure policies. Empty means abort.
var ValidMigrationPolicies = map[string]bool{
	"":             true,
	MigrationAbort: true,
	MigrationSkip:  true,
}

var (
	ErrVMNotFound           = errors.New("vm not found")
	ErrHostNotFound         = errors.New("host not found")
	ErrInsufficientCapacity = errors.New("insufficient host capacity")
)

// Config describes one datacenter.
type Config struct {
	Hosts            []cloud.Host
	TransferRate     float64 // MB/s used to stage cloudlet input files; 0 disables
	MigrationFailure string  // abort or skip
}

type host struct {
	cloud.Host
	freePEs int
}

type vmState struct {
	vm      *cloud.VM
	host    *host
	usedPEs int
	running []*cloud.Cloudlet
	waiting []*cloud.Cloudlet
}

// Datacenter is the execution entity.
type Datacenter struct {
	sim.BaseEntity
	cfg        Config
	registryID int
	hosts      []*host
	vms        map[int]*vmState

	// Every VM and cloudlet ever handed over, by id, for restoring state.
	knownVMs       map[int]*cloud.VM
	knownCloudlets map[int]*cloud.Cloudlet

	vmsCreated        tally.Counter
	vmsRejected       tally.Counter
	cloudletsDone     tally.Counter
	cloudletsCanceled tally.Counter
	migrations        tally.Counter
	migrationFailures tally.Counter
	freePEs           tally.Gauge
}

// New creates a Datacenter that registers with registryID at start. A nil
// scope disables metrics.
func New(name string, registryID int, cfg Config, scope tally.Scope) *Datacenter {
	if scope == nil {
		scope = tally.NoopScope
	}
	scope = scope.SubScope("datacenter").Tagged(map[string]string{"datacenter": name})
	d := &Datacenter{
		BaseEntity:        sim.NewBaseEntity(name),
		cfg:               cfg,
		registryID:        registryID,
		vms:               make(map[int]*vmState),
		knownVMs:          make(map[int]*cloud.VM),
		knownCloudlets:    make(map[int]*cloud.Cloudlet),
		vmsCreated:        scope.Counter("vms_created"),
		vmsRejected:       scope.Counter("vms_rejected"),
		cloudletsDone:     scope.Counter("cloudlets_completed"),
		cloudletsCanceled: scope.Counter("cloudlets_canceled"),
		migrations:        scope.Counter("migrations"),
		migrationFailures: scope.Counter("migration_failures"),
		freePEs:           scope.Gauge("free_pes"),
	}
	for _, h := range cfg.Hosts {
		d.hosts = append(d.hosts, &host{Host: h, freePEs: h.PEs})
	}
	return d
}

// Start registers with the resource registry.
func (d *Datacenter) Start() {
	d.SendNow(d.registryID, sim.TagRegisterResource, nil)
	d.freePEs.Update(float64(d.FreePEs()))
}

// TransferTime is the time to stage c's input file.
func (d *Datacenter) TransferTime(c *cloud.Cloudlet) float64 {
	if d.cfg.TransferRate <= 0 {
		return 0
	}
	return c.FileSize / d.cfg.TransferRate
}

// FreePEs sums unallocated PEs over all hosts.
func (d *Datacenter) FreePEs() int {
	n := 0
	for _, h := range d.hosts {
		n += h.freePEs
	}
	return n
}

// Characteristics describes this datacenter's capacity.
func (d *Datacenter) Characteristics() Characteristics {
	c := Characteristics{
		ID:           d.ID(),
		Name:         d.Name(),
		Hosts:        len(d.hosts),
		FreePEs:      d.FreePEs(),
		TransferRate: d.cfg.TransferRate,
	}
	for _, h := range d.hosts {
		c.PEs += h.PEs
		c.MIPSPerPE = max(c.MIPSPerPE, h.MIPS)
	}
	return c
}

// VMHost returns the host id of vmID, or -1.
func (d *Datacenter) VMHost(vmID int) int {
	if st, ok := d.vms[vmID]; ok {
		return st.host.ID
	}
	return -1
}

// ProcessEvent dispatches on the event tag.
func (d *Datacenter) ProcessEvent(ev *sim.Event) {
	switch ev.Tag() {
	case sim.TagResourceCharacteristicsRequest:
		d.SendNow(ev.Source(), sim.TagResourceCharacteristics, d.Characteristics())
	case sim.TagVMCreate:
		vm := ev.Data().(*cloud.VM)
		ok := d.createVM(vm, ev.Source())
		d.SendNow(ev.Source(), sim.TagVMCreateAck, VMAck{VM: vm, OK: ok})
	case sim.TagVMDestroy:
		vmID := ev.Data().(int)
		d.destroyVM(vmID)
		d.SendNow(ev.Source(), sim.TagVMDestroyAck, vmID)
	case sim.TagVMMigrate:
		req := ev.Data().(MigrationRequest)
		res := d.Migrate(req)
		d.SendNow(ev.Source(), sim.TagVMMigrateAck, MigrationAck{MigrationRequest: req, Result: res})
	case sim.TagCloudletSubmit:
		d.submit(ev.Data().(*cloud.Cloudlet))
	case sim.TagCloudletFinish:
		d.finish(ev.Data().(*cloud.Cloudlet))
	case sim.TagCloudletCancel:
		d.SendNow(ev.Source(), sim.TagCloudletCancel, d.Cancel(ev.Data().(int)))
	case sim.TagCloudletStatus:
		d.SendNow(ev.Source(), sim.TagCloudletStatus, d.Status(ev.Data().(int)))
	case sim.TagEndOfSimulation:
		d.Finish()
	default:
		d.Log().Warnf("unknown tag %s from %d ignored", ev.Tag(), ev.Source())
	}
}

// createVM places vm on the host with the most free PEs that can run it.
// Ties go to the lower host index.
func (d *Datacenter) createVM(vm *cloud.VM, owner int) bool {
	if _, dup := d.vms[vm.ID]; dup {
		d.Log().Warnf("vm %d already exists", vm.ID)
		d.vmsRejected.Inc(1)
		return false
	}
	var best *host
	for _, h := range d.hosts {
		if !fits(h, vm) {
			continue
		}
		if best == nil || h.freePEs > best.freePEs {
			best = h
		}
	}
	if best == nil {
		d.Log().Infof("no host can place %s", vm)
		d.vmsRejected.Inc(1)
		return false
	}
	best.freePEs -= vm.PEs
	vm.HostID = best.ID
	vm.DatacenterID = d.ID()
	vm.OwnerID = owner
	d.vms[vm.ID] = &vmState{vm: vm, host: best}
	d.knownVMs[vm.ID] = vm
	d.vmsCreated.Inc(1)
	d.freePEs.Update(float64(d.FreePEs()))
	d.Log().Debugf("created %s on host %d", vm, best.ID)
	return true
}

func fits(h *host, vm *cloud.VM) bool {
	return h.freePEs >= vm.PEs && h.MIPS >= vm.MIPS
}

// destroyVM releases vmID. Cloudlets still on it fail.
func (d *Datacenter) destroyVM(vmID int) {
	st, ok := d.vms[vmID]
	if !ok {
		d.Log().Debugf("destroy of unknown vm %d", vmID)
		return
	}
	for _, c := range st.running {
		d.CancelEvent(finishOf(c))
		if err := c.Fail(); err != nil {
			d.Log().Warn(err)
		}
	}
	for _, c := range st.waiting {
		if err := c.Fail(); err != nil {
			d.Log().Warn(err)
		}
	}
	st.host.freePEs += st.vm.PEs
	delete(d.vms, vmID)
	d.freePEs.Update(float64(d.FreePEs()))
}

// Migrate moves a VM to another host of this datacenter. A missing VM is
// Cancelled; a target that cannot host the VM is Fatal, and aborts the run
// unless the skip policy is configured.
func (d *Datacenter) Migrate(req MigrationRequest) sim.Result {
	st, ok := d.vms[req.VMID]
	if !ok {
		return sim.Cancelled(fmt.Errorf("migrate vm %d: %w", req.VMID, ErrVMNotFound))
	}
	if st.host.ID == req.HostID {
		return sim.Ok()
	}
	idx := slices.IndexFunc(d.hosts, func(h *host) bool { return h.ID == req.HostID })
	var res sim.Result
	switch {
	case idx < 0:
		res = sim.Fatal(fmt.Errorf("migrate vm %d to host %d: %w", req.VMID, req.HostID, ErrHostNotFound))
	case !fits(d.hosts[idx], st.vm):
		res = sim.Fatal(fmt.Errorf("migrate vm %d to host %d: %w", req.VMID, req.HostID, ErrInsufficientCapacity))
	default:
		target := d.hosts[idx]
		st.host.freePEs += st.vm.PEs
		target.freePEs -= st.vm.PEs
		st.host = target
		st.vm.HostID = target.ID
		d.migrations.Inc(1)
		d.Log().Debugf("migrated vm %d to host %d", req.VMID, target.ID)
		return sim.Ok()
	}

	d.migrationFailures.Inc(1)
	if d.cfg.MigrationFailure == MigrationSkip {
		d.Log().Warnf("migration skipped: %v", res.Err)
	} else if sm := d.Simulation(); sm != nil {
		d.Log().Errorf("migration failed: %v", res.Err)
		sm.Abort(res.Err)
	}
	return res
}

// submit queues c on its VM and starts it if a slot is free.
func (d *Datacenter) submit(c *cloud.Cloudlet) {
	st, ok := d.vms[c.VMID]
	if !ok {
		d.Log().Warnf("cloudlet %d submitted to unknown vm %d", c.ID, c.VMID)
		if err := c.Fail(); err != nil {
			d.Log().Warn(err)
		}
		d.SendNow(c.OwnerID, sim.TagCloudletReturn, c)
		return
	}
	if c.PEs > st.vm.PEs {
		d.Log().Warnf("cloudlet %d needs %d PEs, vm %d has %d", c.ID, c.PEs, st.vm.ID, st.vm.PEs)
		if err := c.Fail(); err != nil {
			d.Log().Warn(err)
		}
		d.SendNow(c.OwnerID, sim.TagCloudletReturn, c)
		return
	}
	if err := c.Queue(); err != nil {
		d.Log().Warnf("submit: %v", err)
		return
	}
	d.knownCloudlets[c.ID] = c
	st.waiting = append(st.waiting, c)
	d.dispatch(st)
}

// dispatch starts waiting cloudlets in FIFO order while PEs are free.
func (d *Datacenter) dispatch(st *vmState) {
	for len(st.waiting) > 0 {
		c := st.waiting[0]
		if st.usedPEs+c.PEs > st.vm.PEs {
			return
		}
		st.waiting = st.waiting[1:]
		st.usedPEs += c.PEs
		st.running = append(st.running, c)
		if err := c.Begin(d.Clock()); err != nil {
			d.Log().Warn(err)
		}
		exec := d.TransferTime(c) + c.Length/st.vm.MIPS
		d.Schedule(d.ID(), exec, sim.TagCloudletFinish, c)
	}
}

func (d *Datacenter) finish(c *cloud.Cloudlet) {
	st, ok := d.vms[c.VMID]
	if !ok {
		return
	}
	i := slices.Index(st.running, c)
	if i < 0 {
		return
	}
	st.running = slices.Delete(st.running, i, i+1)
	st.usedPEs -= c.PEs
	if err := c.Complete(d.Clock()); err != nil {
		d.Log().Warn(err)
	}
	d.cloudletsDone.Inc(1)
	d.SendNow(c.OwnerID, sim.TagCloudletReturn, c)
	d.dispatch(st)
}

// Cancel withdraws a queued or running cloudlet and returns it to its owner.
// Canceling an unknown or finished cloudlet changes nothing and reports its
// current status.
func (d *Datacenter) Cancel(cloudletID int) CloudletStatus {
	for _, st := range d.sortedVMs() {
		var c *cloud.Cloudlet
		if i := slices.IndexFunc(st.waiting, byID(cloudletID)); i >= 0 {
			c = st.waiting[i]
			st.waiting = slices.Delete(st.waiting, i, i+1)
		} else if i := slices.IndexFunc(st.running, byID(cloudletID)); i >= 0 {
			c = st.running[i]
			d.CancelEvent(finishOf(c))
			st.running = slices.Delete(st.running, i, i+1)
			st.usedPEs -= c.PEs
		} else {
			continue
		}
		c.Cancel()
		d.cloudletsCanceled.Inc(1)
		d.SendNow(c.OwnerID, sim.TagCloudletReturn, c)
		d.dispatch(st)
		return CloudletStatus{CloudletID: cloudletID, Found: true, Status: c.Status()}
	}
	return CloudletStatus{CloudletID: cloudletID}
}

// Status reports a queued or running cloudlet's status.
func (d *Datacenter) Status(cloudletID int) CloudletStatus {
	for _, st := range d.sortedVMs() {
		for _, list := range [][]*cloud.Cloudlet{st.running, st.waiting} {
			if i := slices.IndexFunc(list, byID(cloudletID)); i >= 0 {
				return CloudletStatus{CloudletID: cloudletID, Found: true, Status: list[i].Status()}
			}
		}
	}
	return CloudletStatus{CloudletID: cloudletID}
}

func (d *Datacenter) sortedVMs() []*vmState {
	out := make([]*vmState, 0, len(d.vms))
	for _, st := range d.vms {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b *vmState) int { return a.vm.ID - b.vm.ID })
	return out
}

func byID(id int) func(*cloud.Cloudlet) bool {
	return func(c *cloud.Cloudlet) bool { return c.ID == id }
}

func finishOf(c *cloud.Cloudlet) sim.Predicate {
	return func(ev *sim.Event) bool {
		return ev.Tag() == sim.TagCloudletFinish && ev.Data() == any(c)
	}
}
