package placement

import (
	"math"

	"github.com/markphelps/optional"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// Sufferage binds in passes. In each pass every unassigned cloudlet claims
// its best VM; a claim on a VM already claimed this pass replaces the
// holder only if its sufferage (second-best minus best finish line) is
// strictly greater. Displaced cloudlets retry in the next pass. A cloudlet
// with a single candidate VM has infinite sufferage.
//
// With qos set, only QoS-satisfying VMs are candidates and a cloudlet left
// with none is canceled.
type Sufferage struct {
	pred Predictor
	qos  bool
}

func (p *Sufferage) Name() string {
	if p.qos {
		return PolicyISufferage
	}
	return PolicySufferage
}

type sufferageClaim struct {
	cloudlet  *cloud.Cloudlet
	vm        *cloud.VM
	finish    float64
	sufferage float64
	displaced bool
}

// Bind implements Policy.
func (p *Sufferage) Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome {
	var out Outcome
	if len(vms) == 0 {
		return out
	}
	pending := unassigned(cloudlets)
	for len(pending) > 0 {
		holders := make(map[int]*sufferageClaim)
		var claims []*sufferageClaim
		for _, c := range pending {
			vm, best, second, ok := p.bestTwo(c, vms, ready)
			if !ok {
				out.cancel(c, reasonNoQoSVM)
				continue
			}
			claim := &sufferageClaim{
				cloudlet:  c,
				vm:        vm,
				finish:    best,
				sufferage: second.OrElse(math.Inf(1)) - best,
			}
			holder, taken := holders[vm.ID]
			if taken && claim.sufferage <= holder.sufferage {
				continue
			}
			if taken {
				holder.displaced = true
			}
			holders[vm.ID] = claim
			claims = append(claims, claim)
		}
		if len(claims) == 0 {
			break
		}
		won := make(map[*cloud.Cloudlet]bool, len(claims))
		for _, cl := range claims {
			if cl.displaced {
				continue
			}
			out.bind(cl.cloudlet, cl.vm, cl.finish, ready)
			won[cl.cloudlet] = true
		}
		next := pending[:0]
		for _, c := range pending {
			if !won[c] && !c.Done() {
				next = append(next, c)
			}
		}
		pending = next
	}
	return out
}

// bestTwo returns the VM with the smallest finish line for c, that finish
// line, and the second-smallest one when a second candidate exists.
func (p *Sufferage) bestTwo(c *cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) (*cloud.VM, float64, optional.Float64, bool) {
	var best *cloud.VM
	var bestF float64
	var second optional.Float64
	for _, vm := range vms {
		if p.qos && !p.pred.SatisfiesQoS(c, vm, ready) {
			continue
		}
		f := p.pred.FinishLine(c, vm, ready)
		switch {
		case best == nil:
			best, bestF = vm, f
		case f < bestF:
			second = optional.NewFloat64(bestF)
			best, bestF = vm, f
		case !second.Present() || f < second.OrElse(math.Inf(1)):
			second = optional.NewFloat64(f)
		}
	}
	return best, bestF, second, best != nil
}
