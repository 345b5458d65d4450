package placement

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/internal/testutil"
)

func TestQoSMinMin_CompensatesLooseLateCloudlet(t *testing.T) {
	// GIVEN one VM, a tight cloudlet, and two loose ones that cannot both
	// finish on time
	vms := testutil.UniformVMs(1, 100, 0.01)
	cls := testutil.Cloudlets([]float64{1000, 1500, 5000}, []float64{10, 22, 22}, []float64{1, 1, 1})

	// WHEN QoS-MinMin binds
	out := NewPolicy(PolicyQoSMinMin, Predictor{}).Bind(cls, vms, NewReadyTimes(vms, 0))

	// THEN the tight one is bound on time, the first loose one is accepted
	// with compensation, and the last one is canceled as unprofitable
	require.Len(t, out.Bound, 2)
	assert.Equal(t, Decision{CloudletID: 0, VMID: 0, FinishLine: 10}, out.Bound[0])

	late := out.Bound[1]
	assert.Equal(t, 1, late.CloudletID)
	assert.Equal(t, 25.0, late.FinishLine)
	assert.True(t, late.Compensated)
	testutil.AssertFloat64Equal(t, "delay", 3, late.Settlement.Delay, 1e-9)
	testutil.AssertFloat64Equal(t, "compensation", 0.15/44*3, late.Settlement.Compensation, 1e-9)
	assert.GreaterOrEqual(t, late.Settlement.Profit, 0.0)

	require.Len(t, out.Canceled, 1)
	assert.Equal(t, 2, out.Canceled[0].CloudletID)
	assert.Equal(t, cloud.StatusCanceled, cls[2].Status())

	// AND each cloudlet keeps the factor of the group it was placed in
	assert.Equal(t, TightDegradation, cls[0].Degradation)
	assert.Equal(t, LooseDegradation, cls[1].Degradation)
}

func TestQoSMinMin_SkipsBudgetViolatorDuringCompensation(t *testing.T) {
	// GIVEN a fast VM the cloudlet cannot afford and a cheap slow one that
	// misses the deadline by a little
	vms := []*cloud.VM{cloud.NewVM(0, 200, 1, 1.0), cloud.NewVM(1, 100, 1, 0.001)}
	cls := testutil.Cloudlets([]float64{2000}, []float64{15}, []float64{0.1})

	out := NewPolicy(PolicyQoSMinMin, Predictor{}).Bind(cls, vms, NewReadyTimes(vms, 0))

	require.Len(t, out.Bound, 1)
	assert.Equal(t, 1, out.Bound[0].VMID)
	assert.True(t, out.Bound[0].Compensated)
	assert.Equal(t, 20.0, out.Bound[0].FinishLine)
}

func TestQoSMinMin_TightGroupFirst(t *testing.T) {
	vms := testutil.UniformVMs(1, 100, 0)
	// The loose cloudlet is shorter, so plain Min-Min would take it first.
	cls := testutil.Cloudlets([]float64{500, 1000}, []float64{100, 10}, []float64{1, 1})

	out := NewPolicy(PolicyQoSMinMin, Predictor{}).Bind(cls, vms, NewReadyTimes(vms, 0))

	require.Len(t, out.Bound, 2)
	assert.Equal(t, 1, out.Bound[0].CloudletID)
	assert.Equal(t, 0, out.Bound[1].CloudletID)
	assert.Empty(t, out.Canceled)
}

func TestDegradationFactor(t *testing.T) {
	cls := testutil.Cloudlets([]float64{1, 1, 1}, []float64{10, 20, 30}, []float64{1, 1, 1})
	avg := AverageDeadline(cls)
	assert.Equal(t, 20.0, avg)
	assert.Equal(t, TightDegradation, DegradationFactor(cls[0], avg))
	assert.Equal(t, LooseDegradation, DegradationFactor(cls[1], avg))
	assert.Equal(t, LooseDegradation, DegradationFactor(cls[2], avg))
	assert.Equal(t, 0.0, AverageDeadline(nil))
}

func randomWorkload(seed uint64, n, m int) ([]*cloud.Cloudlet, []*cloud.VM) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	mips := []float64{42, 83, 125, 167, 208}
	costs := []float64{0.16, 0.29, 0.71, 0.54, 1.08}
	vms := make([]*cloud.VM, m)
	for i := range vms {
		vms[i] = cloud.NewVM(i, mips[i%5], 1, costs[i%5]/3600)
	}
	cls := make([]*cloud.Cloudlet, n)
	for i := range cls {
		length := float64(10000 + 5000*rng.IntN(10))
		deadline := float64(3600 * (1 + rng.IntN(5)))
		budget := 0.01 + 0.01*float64(rng.IntN(10))
		cls[i] = cloud.NewCloudlet(i, length, 1, deadline/20, budget)
	}
	return cls, vms
}

// replay walks decisions in order against a fresh readiness map and checks
// each was QoS-feasible (or profitably compensated) when it was made.
func replay(t *testing.T, pred Predictor, out Outcome, cls []*cloud.Cloudlet, vms []*cloud.VM) {
	t.Helper()
	ready := NewReadyTimes(vms, 0)
	for _, d := range out.Bound {
		c, ok := cloud.FindCloudlet(cls, d.CloudletID)
		require.True(t, ok)
		vm, ok := cloud.FindVM(vms, d.VMID)
		require.True(t, ok)
		testutil.AssertFloat64Equal(t, "finish line", pred.FinishLine(c, vm, ready), d.FinishLine, 1e-12)
		if d.Compensated {
			assert.GreaterOrEqual(t, d.Settlement.Profit, 0.0, "cloudlet %d", c.ID)
			assert.LessOrEqual(t, d.Settlement.FinalCost, c.Budget, "cloudlet %d", c.ID)
		} else {
			assert.True(t, pred.SatisfiesQoS(c, vm, ready), "cloudlet %d on vm %d", c.ID, vm.ID)
		}
		ready[vm.ID] = d.FinishLine
	}
}

func TestQoSAwarePolicies_AcceptOnlyFeasiblePlacements(t *testing.T) {
	names := []string{PolicyIFCFSRR, PolicyIMinMin, PolicyIMaxMin, PolicyISufferage, PolicyQoSMinMin}
	for _, name := range names {
		for seed := uint64(1); seed <= 5; seed++ {
			cls, vms := randomWorkload(seed, 60, 6)
			out := NewPolicy(name, Predictor{}).Bind(cls, vms, NewReadyTimes(vms, 0))
			t.Run(name, func(t *testing.T) {
				replay(t, Predictor{}, out, cls, vms)
				assert.Equal(t, len(cls), len(out.Bound)+len(out.Canceled), "every cloudlet is bound or canceled")
			})
		}
	}
}

func TestPolicies_Deterministic(t *testing.T) {
	for _, name := range PolicyNames() {
		t.Run(name, func(t *testing.T) {
			clsA, vmsA := randomWorkload(11, 40, 5)
			clsB, vmsB := randomWorkload(11, 40, 5)
			outA := NewPolicy(name, Predictor{}).Bind(clsA, vmsA, NewReadyTimes(vmsA, 0))
			outB := NewPolicy(name, Predictor{}).Bind(clsB, vmsB, NewReadyTimes(vmsB, 0))
			assert.Equal(t, outA, outB)
			assert.True(t, slices.Equal(testutil.VMIDs(clsA), testutil.VMIDs(clsB)))
		})
	}
}
