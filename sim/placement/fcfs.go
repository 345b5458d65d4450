package placement

import "github.com/qos-sim/qos-sim/sim/cloud"

// FCFSRR assigns cloudlets to VMs round-robin in submission order. With qos
// set, a candidate VM is taken only if it satisfies the cloudlet's QoS; on
// rejection the following VMs are tried in round-robin order, and the
// cloudlet is canceled if none qualifies. The round-robin position only
// advances on a successful bind and persists across Bind calls.
type FCFSRR struct {
	pred    Predictor
	qos     bool
	counter int
}

func (p *FCFSRR) Name() string {
	if p.qos {
		return PolicyIFCFSRR
	}
	return PolicyFCFSRR
}

// Bind implements Policy.
func (p *FCFSRR) Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	var out Outcome
	if len(vms) == 0 {
		return out
	}
	for _, c := range unassigned(cloudlets) {
		start := p.counter % len(vms)
		placed := false
		for k := 0; k < len(vms); k++ {
			vm := vms[(start+k)%len(vms)]
			if p.qos && !p.pred.SatisfiesQoS(c, vm, ready) {
				continue
			}
			out.bind(c, vm, p.pred.FinishLine(c, vm, ready), ready)
			p.counter++
			placed = true
			break
		}
		if !placed {
			out.cancel(c, reasonNoQoSVM)
		}
	}
	return out
}
