package placement

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// QoSMinMin places tight-deadline cloudlets (deadline below the batch
// average) before loose ones, each group by Min-Min. When a group's best
// pair misses QoS, the cloudlet goes through delay-compensation search
// instead of being bound as is: VMs are scanned by increasing finish line,
// budget violators are skipped, a deadline-only violator is accepted if the
// compensated settlement stays profitable and affordable, and a satisfying
// VM is accepted outright. A cloudlet with no acceptable VM is canceled.
type QoSMinMin struct {
	pred Predictor
}

func (p *QoSMinMin) Name() string { return PolicyQoSMinMin }

// Bind implements Policy.
func (p *QoSMinMin) Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	var out Outcome
	if len(vms) == 0 {
		return out
	}
	avg := AverageDeadline(cloudlets)
	var tight, loose []*cloud.Cloudlet
	for _, c := range unassigned(cloudlets) {
		if c.Deadline < avg {
			tight = append(tight, c)
		} else {
			loose = append(loose, c)
		}
	}
	p.bindGroup(&out, tight, TightDegradation, vms, ready)
	p.bindGroup(&out, loose, LooseDegradation, vms, ready)
	return out
}

// DegradationFactor returns the factor applied to c given the average
// deadline of its batch. Bind records the result on the cloudlet.
func DegradationFactor(c *cloud.Cloudlet, avgDeadline float64) float64 {
	if c.Deadline < avgDeadline {
		return TightDegradation
	}
	return LooseDegradation
}

// AverageDeadline is the mean relative deadline of cloudlets, or 0.
func AverageDeadline(cloudlets []*cloud.Cloudlet) float64 {
	if len(cloudlets) == 0 {
		return 0
	}
	deadlines := make([]float64, len(cloudlets))
	for i, c := range cloudlets {
		deadlines[i] = c.Deadline
	}
	return stat.Mean(deadlines, nil)
}

func (p *QoSMinMin) bindGroup(out *Outcome, group []*cloud.Cloudlet, factor float64, vms []*cloud.VM, ready ReadyTimes) {
	pending := group
	for len(pending) > 0 {
		chosen := -1
		var chosenVM *cloud.VM
		var chosenF float64
		for i, c := range pending {
			vm, f, _ := bestVM(p.pred, false, c, vms, ready)
			if chosen < 0 || f < chosenF {
				chosen, chosenVM, chosenF = i, vm, f
			}
		}
		c := pending[chosen]
		pending = removeAt(pending, chosen)
		c.Degradation = factor

		if p.pred.SatisfiesQoS(c, chosenVM, ready) {
			out.bind(c, chosenVM, chosenF, ready)
			continue
		}
		p.compensate(out, c, factor, vms, ready)
	}
}

// compensate runs delay-compensation search for c.
func (p *QoSMinMin) compensate(out *Outcome, c *cloud.Cloudlet, factor float64, vms []*cloud.VM, ready ReadyTimes) {
	type candidate struct {
		vm     *cloud.VM
		finish float64
	}
	cands := make([]candidate, len(vms))
	for i, vm := range vms {
		cands[i] = candidate{vm: vm, finish: p.pred.FinishLine(c, vm, ready)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].finish < cands[j].finish })

	for _, cand := range cands {
		switch p.pred.Check(c, cand.vm, ready) {
		case VerdictBudgetViolated:
			continue
		case VerdictDeadlineViolated:
			s := Settle(c, cand.vm, p.pred.ExecutionTime(c, cand.vm), cand.finish, factor)
			if !s.Acceptable(c.Budget) {
				continue
			}
			d := out.bind(c, cand.vm, cand.finish, ready)
			d.Compensated = true
			d.Settlement = s
			return
		default:
			out.bind(c, cand.vm, cand.finish, ready)
			return
		}
	}
	out.cancel(c, "no vm acceptable after delay compensation")
}
