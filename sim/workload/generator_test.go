package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qos-sim/qos-sim/sim/cloud"
)

func TestGenerate_DefaultSpecReproducesReferenceTables(t *testing.T) {
	// GIVEN the default spec
	w, err := Generate(DefaultSpec(), 42)
	require.NoError(t, err)

	// THEN VMs cycle through the five flavors
	require.Len(t, w.VMs, 20)
	assert.Equal(t, 42.0, w.VMs[0].MIPS)
	assert.Equal(t, 208.0, w.VMs[4].MIPS)
	assert.Equal(t, 2, w.VMs[4].PEs)
	assert.Equal(t, 42.0, w.VMs[5].MIPS)
	assert.InDelta(t, 1.08/3600, w.VMs[9].CostPerSec, 1e-15)
	for i, vm := range w.VMs {
		assert.Equal(t, i, vm.ID)
	}

	// AND cloudlets cycle length, deadline, and budget
	require.Len(t, w.Cloudlets, 300)
	c := w.Cloudlets[12]
	assert.Equal(t, 12, c.ID)
	assert.Equal(t, 20000.0, c.Length)
	assert.Equal(t, 3*Hour, c.Deadline)
	assert.InDelta(t, 0.03, c.Budget, 1e-12)
	assert.Equal(t, 0.0, c.SubmitTime)
	assert.Equal(t, cloud.Unassigned, c.VMID)
	assert.Equal(t, cloud.StatusCreated, c.Status())
}

func TestGenerate_Deterministic(t *testing.T) {
	spec := DefaultSpec()
	spec.Cloudlets.Length = DistSpec{Type: "gaussian", Params: map[string]float64{"mean": 30000, "std_dev": 8000, "min": 1000, "max": 60000}}
	spec.Cloudlets.Arrival = &DistSpec{Type: "exponential", Params: map[string]float64{"mean": 10}}

	a, err := Generate(spec, 7)
	require.NoError(t, err)
	b, err := Generate(spec, 7)
	require.NoError(t, err)
	c, err := Generate(spec, 8)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Cloudlets[1].Length, c.Cloudlets[1].Length, "different seeds diverge")
}

func TestGenerate_ArrivalsAreMonotonic(t *testing.T) {
	spec := DefaultSpec()
	spec.Cloudlets.Count = 50
	spec.Cloudlets.Arrival = &DistSpec{Type: "uniform", Params: map[string]float64{"min": 1, "max": 3}}

	w, err := Generate(spec, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, w.Cloudlets[0].SubmitTime)
	for i := 1; i < len(w.Cloudlets); i++ {
		gap := w.Cloudlets[i].SubmitTime - w.Cloudlets[i-1].SubmitTime
		if gap < 1 || gap > 3 {
			t.Fatalf("cloudlet %d: gap %v outside [1, 3]", i, gap)
		}
	}
}

func TestGenerate_FieldStreamsAreIndependent(t *testing.T) {
	// GIVEN two specs that differ only in the budget distribution
	a := DefaultSpec()
	a.Cloudlets.Length = DistSpec{Type: "uniform", Params: map[string]float64{"min": 1000, "max": 2000}}
	b := DefaultSpec()
	b.Cloudlets.Length = a.Cloudlets.Length
	b.Cloudlets.Budget = DistSpec{Type: "uniform", Params: map[string]float64{"min": 0, "max": 1}}

	wa, err := Generate(a, 3)
	require.NoError(t, err)
	wb, err := Generate(b, 3)
	require.NoError(t, err)

	// THEN lengths are unaffected
	for i := range wa.Cloudlets {
		assert.Equal(t, wa.Cloudlets[i].Length, wb.Cloudlets[i].Length)
	}
}

func TestGenerate_InvalidSpec(t *testing.T) {
	spec := DefaultSpec()
	spec.Cloudlets.Length.Type = "nope"
	_, err := Generate(spec, 1)
	assert.Error(t, err)
}
