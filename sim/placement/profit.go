package placement

import (
	"math"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// OperatingCostRatio is the share of income the provider spends running a
// cloudlet.
const OperatingCostRatio = 0.2

// Degradation factors scale the compensation owed for a late cloudlet.
// Loose-deadline cloudlets get the larger factor and so a smaller
// compensation per second of delay.
const (
	TightDegradation = 1.0
	LooseDegradation = 2.0
)

// Settlement is the provider's bill for a cloudlet that finishes late.
type Settlement struct {
	NormalIncome float64 `json:"normal_income"`
	Delay        float64 `json:"delay"`
	Compensation float64 `json:"compensation"`
	FinalCost    float64 `json:"final_cost"`
	Profit       float64 `json:"profit"`
}

// Settle prices running c on vm for execTime seconds and finishing at
// finishTime. Compensation grows linearly with the delay past the absolute
// deadline, normalized by the deadline window and the degradation factor.
func Settle(c *cloud.Cloudlet, vm *cloud.VM, execTime, finishTime, factor float64) Settlement {
	income := vm.CostPerSec * execTime
	delay := finishTime - c.AbsoluteDeadline()
	window := factor * (c.AbsoluteDeadline() - c.SubmitTime)

	var comp float64
	switch {
	case delay == 0:
		comp = 0
	case window <= 0:
		comp = math.Copysign(math.Inf(1), delay)
	default:
		comp = income / window * delay
	}
	return Settlement{
		NormalIncome: income,
		Delay:        delay,
		Compensation: comp,
		FinalCost:    income - comp,
		Profit:       income - OperatingCostRatio*income - comp,
	}
}

// Acceptable reports whether the provider still profits and the owner can
// still pay the compensated price.
func (s Settlement) Acceptable(budget float64) bool {
	return s.Profit >= 0 && s.FinalCost <= budget
}
