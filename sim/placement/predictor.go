package placement

import (
	"fmt"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// ReadyTimes maps a VM id to the logical time at which the VM finishes all
// work committed to it so far.
type ReadyTimes map[int]float64

// NewReadyTimes marks every VM as free at now.
func NewReadyTimes(vms []*cloud.VM, now float64) ReadyTimes {
	r := make(ReadyTimes, len(vms))
	r.Advance(vms, now)
	return r
}

// Advance moves every VM's readiness forward to at least now. VMs without
// an entry are added.
func (r ReadyTimes) Advance(vms []*cloud.VM, now float64) {
	for _, vm := range vms {
		if t, ok := r[vm.ID]; !ok || t < now {
			r[vm.ID] = now
		}
	}
}

// Verdict classifies a candidate placement against a cloudlet's QoS terms.
// The budget is checked before the deadline.
type Verdict int

const (
	VerdictBudgetViolated Verdict = iota
	VerdictDeadlineViolated
	VerdictSatisfied
)

func (v Verdict) String() string {
	switch v {
	case VerdictBudgetViolated:
		return "budget_violated"
	case VerdictDeadlineViolated:
		return "deadline_violated"
	case VerdictSatisfied:
		return "satisfied"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Predictor computes expected completion times and costs with a linear
// MIPS model. TransferTime, when set, adds a per-cloudlet staging offset in
// seconds to predicted finish times.
type Predictor struct {
	TransferTime func(c *cloud.Cloudlet) float64
}

// ExecutionTime is the time the cloudlet occupies the VM.
func (p Predictor) ExecutionTime(c *cloud.Cloudlet, vm *cloud.VM) float64 {
	return c.Length / vm.MIPS
}

// Cost is what the VM's owner charges for running the cloudlet.
func (p Predictor) Cost(c *cloud.Cloudlet, vm *cloud.VM) float64 {
	return p.ExecutionTime(c, vm) * vm.CostPerSec
}

func (p Predictor) transfer(c *cloud.Cloudlet) float64 {
	if p.TransferTime == nil {
		return 0
	}
	if t := p.TransferTime(c); t > 0 {
		return t
	}
	return 0
}

// FinishLine is the predicted absolute completion time of c on vm.
func (p Predictor) FinishLine(c *cloud.Cloudlet, vm *cloud.VM, ready ReadyTimes) float64 {
	return ready[vm.ID] + p.transfer(c) + p.ExecutionTime(c, vm)
}

// Check classifies placing c on vm.
func (p Predictor) Check(c *cloud.Cloudlet, vm *cloud.VM, ready ReadyTimes) Verdict {
	if p.Cost(c, vm) > c.Budget {
		return VerdictBudgetViolated
	}
	if p.FinishLine(c, vm, ready) > c.AbsoluteDeadline() {
		return VerdictDeadlineViolated
	}
	return VerdictSatisfied
}

// SatisfiesQoS reports whether placing c on vm meets both deadline and budget.
func (p Predictor) SatisfiesQoS(c *cloud.Cloudlet, vm *cloud.VM, ready ReadyTimes) bool {
	return p.Check(c, vm, ready) == VerdictSatisfied
}

// FinishLine is Predictor{}.FinishLine.
func FinishLine(c *cloud.Cloudlet, vm *cloud.VM, ready ReadyTimes) float64 {
	return Predictor{}.FinishLine(c, vm, ready)
}

// SatisfiesQoS is Predictor{}.SatisfiesQoS.
func SatisfiesQoS(c *cloud.Cloudlet, vm *cloud.VM, ready ReadyTimes) bool {
	return Predictor{}.SatisfiesQoS(c, vm, ready)
}
