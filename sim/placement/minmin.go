package placement

import "github.com/qos-sim/qos-sim/sim/cloud"

// MinMin repeatedly binds the (cloudlet, VM) pair with the globally smallest
// finish line. With qos set, only QoS-satisfying VMs are candidates and a
// cloudlet left with none is canceled.
type MinMin struct {
	pred Predictor
	qos  bool
}

func (p *MinMin) Name() string {
	if p.qos {
		return PolicyIMinMin
	}
	return PolicyMinMin
}

// Bind implements Policy.
func (p *MinMin) Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	return greedyBind(p.pred, p.qos, false, cloudlets, vms, ready)
}

// MaxMin computes every cloudlet's best VM and binds the cloudlet whose best
// finish line is the largest, so long cloudlets are not starved. With qos
// set it filters and cancels like MinMin.
type MaxMin struct {
	pred Predictor
	qos  bool
}

func (p *MaxMin) Name() string {
	if p.qos {
		return PolicyIMaxMin
	}
	return PolicyMaxMin
}

// Bind implements Policy.
func (p *MaxMin) Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	return greedyBind(p.pred, p.qos, true, cloudlets, vms, ready)
}

// bestVM returns the VM with the smallest finish line for c. With qos set,
// only QoS-satisfying VMs count.
func bestVM(pred Predictor, qos bool, c *cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) (*cloud.VM, float64, bool) {
	var best *cloud.VM
	var bestF float64
	for _, vm := range vms {
		if qos && !pred.SatisfiesQoS(c, vm, ready) {
			continue
		}
		f := pred.FinishLine(c, vm, ready)
		if best == nil || f < bestF {
			best, bestF = vm, f
		}
	}
	return best, bestF, best != nil
}

func greedyBind(pred Predictor, qos, largest bool, cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	var out Outcome
	if len(vms) == 0 {
		return out
	}
	pending := unassigned(cloudlets)
	for len(pending) > 0 {
		kept := make([]*cloud.Cloudlet, 0, len(pending))
		chosen := -1
		var chosenVM *cloud.VM
		var chosenF float64
		for _, c := range pending {
			vm, f, ok := bestVM(pred, qos, c, vms, ready)
			if !ok {
				out.cancel(c, reasonNoQoSVM)
				continue
			}
			kept = append(kept, c)
			if chosen < 0 || (largest && f > chosenF) || (!largest && f < chosenF) {
				chosen, chosenVM, chosenF = len(kept)-1, vm, f
			}
		}
		pending = kept
		if chosen < 0 {
			break
		}
		out.bind(pending[chosen], chosenVM, chosenF, ready)
		pending = removeAt(pending, chosen)
	}
	return out
}
