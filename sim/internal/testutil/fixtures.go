// Package testutil provides shared test infrastructure for the simulator.
// It consolidates fixture builders and assertion helpers used across the
// sim/ sub-package tests.
package testutil

import (
	"math"
	"testing"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// Cloudlets builds single-PE cloudlets with ids 0..n-1 submitted at time 0.
// All slices must have the same length.
func Cloudlets(lengths, deadlines, budgets []float64) []*cloud.Cloudlet {
	out := make([]*cloud.Cloudlet, len(lengths))
	for i := range lengths {
		out[i] = cloud.NewCloudlet(i, lengths[i], 1, deadlines[i], budgets[i])
	}
	return out
}

// UniformVMs builds n single-PE VMs with ids 0..n-1.
func UniformVMs(n int, mips, costPerSec float64) []*cloud.VM {
	out := make([]*cloud.VM, n)
	for i := range out {
		out[i] = cloud.NewVM(i, mips, 1, costPerSec)
	}
	return out
}

// VMIDs returns the VM assignment of each cloudlet, in order.
func VMIDs(cloudlets []*cloud.Cloudlet) []int {
	out := make([]int, len(cloudlets))
	for i, c := range cloudlets {
		out[i] = c.VMID
	}
	return out
}
