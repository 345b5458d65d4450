// Package placement binds cloudlets to VMs. Every policy is a greedy,
// deterministic strategy driven by predicted finish lines; ties go to the
// cloudlet, then the VM, that comes first in input order.
package placement

import (
	"fmt"
	"sort"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// Policy names.
const (
	PolicyFCFSRR     = "fcfs-rr"
	PolicyIFCFSRR    = "i-fcfs-rr"
	PolicyMinMin     = "min-min"
	PolicyIMinMin    = "i-min-min"
	PolicyMaxMin     = "max-min"
	PolicyIMaxMin    = "i-max-min"
	PolicySufferage  = "sufferage"
	PolicyISufferage = "i-sufferage"
	PolicyQoSMinMin  = "qos-min-min"
)

// ValidPolicies is the set of recognized policy names. Empty selects fcfs-rr.
var ValidPolicies = map[string]bool{
	"":               true,
	PolicyFCFSRR:     true,
	PolicyIFCFSRR:    true,
	PolicyMinMin:     true,
	PolicyIMinMin:    true,
	PolicyMaxMin:     true,
	PolicyIMaxMin:    true,
	PolicySufferage:  true,
	PolicyISufferage: true,
	PolicyQoSMinMin:  true,
}

// IsValidPolicy returns true if name is a recognized policy.
func IsValidPolicy(name string) bool {
	return ValidPolicies[name]
}

// PolicyNames returns every policy name in sorted order.
func PolicyNames() []string {
	names := make([]string, 0, len(ValidPolicies))
	for n := range ValidPolicies {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Policy binds unassigned cloudlets to VMs.
//
// Bind only considers cloudlets that are unassigned and not finished or
// canceled. It sets VMID on the cloudlets it binds, cancels the ones a
// QoS-aware policy cannot place, and advances ready for every bound VM.
type Policy interface {
	Name() string
	Bind(cloudlets []*cloud.Cloudlet, vms []*cloud.VM, ready ReadyTimes) Outcome
}

// Decision records one binding.
type Decision struct {
	CloudletID  int
	VMID        int
	FinishLine  float64
	Compensated bool
	Settlement  Settlement
}

// Cancellation records a cloudlet the policy refused to place.
type Cancellation struct {
	CloudletID int
	Reason     string
}

// Outcome lists the decisions of one Bind call in the order they were made.
type Outcome struct {
	Bound    []Decision
	Canceled []Cancellation
}

// NewPolicy creates the named policy.
// Valid names are defined in ValidPolicies. Empty string defaults to fcfs-rr.
// Panics on unrecognized names.
func NewPolicy(name string, pred Predictor) Policy {
	if !IsValidPolicy(name) {
		panic(fmt.Sprintf("unknown placement policy %q", name))
	}
	switch name {
	case "", PolicyFCFSRR:
		return &FCFSRR{pred: pred}
	case PolicyIFCFSRR:
		return &FCFSRR{pred: pred, qos: true}
	case PolicyMinMin:
		return &MinMin{pred: pred}
	case PolicyIMinMin:
		return &MinMin{pred: pred, qos: true}
	case PolicyMaxMin:
		return &MaxMin{pred: pred}
	case PolicyIMaxMin:
		return &MaxMin{pred: pred, qos: true}
	case PolicySufferage:
		return &Sufferage{pred: pred}
	case PolicyISufferage:
		return &Sufferage{pred: pred, qos: true}
	case PolicyQoSMinMin:
		return &QoSMinMin{pred: pred}
	default:
		panic(fmt.Sprintf("unhandled placement policy %q", name))
	}
}

// unassigned returns the cloudlets a policy may place, in input order.
func unassigned(cloudlets []*cloud.Cloudlet) []*cloud.Cloudlet {
	var out []*cloud.Cloudlet
	for _, c := range cloudlets {
		if !c.Bound() && !c.Done() {
			out = append(out, c)
		}
	}
	return out
}

func (o *Outcome) bind(c *cloud.Cloudlet, vm *cloud.VM, finish float64, ready ReadyTimes) *Decision {
	c.VMID = vm.ID
	ready[vm.ID] = finish
	o.Bound = append(o.Bound, Decision{CloudletID: c.ID, VMID: vm.ID, FinishLine: finish})
	return &o.Bound[len(o.Bound)-1]
}

func (o *Outcome) cancel(c *cloud.Cloudlet, reason string) {
	c.Cancel()
	o.Canceled = append(o.Canceled, Cancellation{CloudletID: c.ID, Reason: reason})
}

const reasonNoQoSVM = "no vm satisfies deadline and budget"

func removeAt(cs []*cloud.Cloudlet, i int) []*cloud.Cloudlet {
	return append(cs[:i], cs[i+1:]...)
}
