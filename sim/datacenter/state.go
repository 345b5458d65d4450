package datacenter

import (
	"fmt"
	"slices"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
)

// State is the serializable form of a Datacenter. It records placement
// only; the VMs and cloudlets themselves belong to their owner and are
// referred to by id.
type State struct {
	FreePEs []int      `json:"free_pes"` // per host, in host order
	VMs     []VMRecord `json:"vms"`      // by vm id
}

// VMRecord is one resident VM.
type VMRecord struct {
	VMID    int   `json:"vm_id"`
	Host    int   `json:"host"` // index into the host list
	UsedPEs int   `json:"used_pes"`
	Running []int `json:"running"`
	Waiting []int `json:"waiting"`
}

var _ sim.Stateful = (*Datacenter)(nil)

// SnapshotState implements sim.Stateful.
func (d *Datacenter) SnapshotState() any {
	st := State{FreePEs: make([]int, len(d.hosts))}
	for i, h := range d.hosts {
		st.FreePEs[i] = h.freePEs
	}
	for _, vs := range d.sortedVMs() {
		st.VMs = append(st.VMs, VMRecord{
			VMID:    vs.vm.ID,
			Host:    slices.Index(d.hosts, vs.host),
			UsedPEs: vs.usedPEs,
			Running: ids(vs.running),
			Waiting: ids(vs.waiting),
		})
	}
	return st
}

// RestoreState implements sim.Stateful.
func (d *Datacenter) RestoreState(state any) error {
	st, ok := state.(State)
	if !ok {
		return fmt.Errorf("datacenter %s: unexpected state %T", d.Name(), state)
	}
	if len(st.FreePEs) != len(d.hosts) {
		return fmt.Errorf("datacenter %s: state has %d hosts, datacenter has %d", d.Name(), len(st.FreePEs), len(d.hosts))
	}

	vms := make(map[int]*vmState, len(st.VMs))
	for _, rec := range st.VMs {
		vm, ok := d.knownVMs[rec.VMID]
		if !ok || rec.Host < 0 || rec.Host >= len(d.hosts) {
			return fmt.Errorf("datacenter %s: vm %d on host %d: %w", d.Name(), rec.VMID, rec.Host, ErrVMNotFound)
		}
		vs := &vmState{vm: vm, host: d.hosts[rec.Host], usedPEs: rec.UsedPEs}
		var err error
		if vs.running, err = d.resolve(rec.Running); err != nil {
			return err
		}
		if vs.waiting, err = d.resolve(rec.Waiting); err != nil {
			return err
		}
		vms[rec.VMID] = vs
	}
	for i, h := range d.hosts {
		h.freePEs = st.FreePEs[i]
	}
	d.vms = vms
	d.freePEs.Update(float64(d.FreePEs()))
	return nil
}

func (d *Datacenter) resolve(cloudletIDs []int) ([]*cloud.Cloudlet, error) {
	out := make([]*cloud.Cloudlet, 0, len(cloudletIDs))
	for _, id := range cloudletIDs {
		c, ok := d.knownCloudlets[id]
		if !ok {
			return nil, fmt.Errorf("datacenter %s: cloudlet %d: %w", d.Name(), id, sim.ErrEntityNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

func ids(cls []*cloud.Cloudlet) []int {
	out := make([]int, len(cls))
	for i, c := range cls {
		out[i] = c.ID
	}
	return out
}
