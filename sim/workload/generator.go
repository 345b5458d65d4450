package workload

import (
	"fmt"
	"math"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
)

// Workload is a generated VM fleet and cloudlet list, both with sequential
// ids starting at 0.
type Workload struct {
	VMs       []*cloud.VM
	Cloudlets []*cloud.Cloudlet
}

// Generate creates a Workload from a Spec.
// Deterministic given the same spec and seed. Each sampled field draws from
// its own RNG stream. Cloudlets are returned sorted by SubmitTime; ties keep
// generation order.
func Generate(spec *Spec, seed int64) (*Workload, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))

	vms := make([]*cloud.VM, spec.VMs.Count)
	for i := range vms {
		t := spec.VMs.Types[i%len(spec.VMs.Types)]
		vms[i] = cloud.NewVM(i, t.MIPS, t.PEs, t.CostPerHour/Hour)
	}

	c := &spec.Cloudlets
	length, err := NewSampler(c.Length, rng.ForSubsystem(sim.SubsystemField("length")))
	if err != nil {
		return nil, fmt.Errorf("cloudlet length distribution: %w", err)
	}
	deadline, err := NewSampler(c.Deadline, rng.ForSubsystem(sim.SubsystemField("deadline")))
	if err != nil {
		return nil, fmt.Errorf("cloudlet deadline distribution: %w", err)
	}
	budget, err := NewSampler(c.Budget, rng.ForSubsystem(sim.SubsystemField("budget")))
	if err != nil {
		return nil, fmt.Errorf("cloudlet budget distribution: %w", err)
	}
	var fileSize, arrival Sampler
	if c.FileSize != nil {
		if fileSize, err = NewSampler(*c.FileSize, rng.ForSubsystem(sim.SubsystemField("file_size"))); err != nil {
			return nil, fmt.Errorf("cloudlet file size distribution: %w", err)
		}
	}
	if c.Arrival != nil {
		if arrival, err = NewSampler(*c.Arrival, rng.ForSubsystem(sim.SubsystemArrival)); err != nil {
			return nil, fmt.Errorf("cloudlet arrival distribution: %w", err)
		}
	}

	cloudlets := make([]*cloud.Cloudlet, c.Count)
	now := 0.0
	for i := range cloudlets {
		cl := cloud.NewCloudlet(i,
			math.Max(1, length.Sample(i)),
			c.PEs,
			math.Max(0, deadline.Sample(i)),
			math.Max(0, budget.Sample(i)),
		)
		if fileSize != nil {
			cl.FileSize = math.Max(0, fileSize.Sample(i))
		}
		if arrival != nil && i > 0 {
			now += math.Max(0, arrival.Sample(i))
		}
		cl.SubmitTime = now
		cloudlets[i] = cl
	}
	return &Workload{VMs: vms, Cloudlets: cloudlets}, nil
}
