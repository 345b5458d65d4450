package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/internal/testutil"
	"github.com/qos-sim/qos-sim/sim/placement"
)

func ran(t *testing.T, c *cloud.Cloudlet, vmID int, start, finish float64) *cloud.Cloudlet {
	t.Helper()
	c.VMID = vmID
	require.NoError(t, c.Begin(start))
	require.NoError(t, c.Complete(finish))
	return c
}

// fixture: one on-time cloudlet, one late, one over budget, one canceled.
func fixture(t *testing.T) Input {
	t.Helper()
	vms := testutil.UniformVMs(2, 100, 0.01)
	canceled := cloud.NewCloudlet(3, 1000, 1, 20, 1)
	canceled.Cancel()
	return Input{
		Policy: placement.PolicyMinMin,
		VMs:    vms,
		Cloudlets: []*cloud.Cloudlet{
			ran(t, cloud.NewCloudlet(0, 1000, 1, 20, 1), 0, 0, 10),
			ran(t, cloud.NewCloudlet(1, 1500, 1, 10, 1), 0, 10, 25),
			ran(t, cloud.NewCloudlet(2, 500, 1, 20, 0.01), 1, 0, 5),
			canceled,
		},
		Clock:           25,
		EventsProcessed: 17,
	}
}

func TestCompute_Accounting(t *testing.T) {
	// GIVEN a finished Min-Min run
	in := fixture(t)

	// WHEN the report is computed
	r := Compute(in)

	// THEN counts, rates, and timings reflect only the completed cloudlets
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 4, r.Submitted)
	assert.Equal(t, 3, r.Completed)
	assert.Equal(t, 1, r.Canceled)
	assert.Equal(t, 0, r.Failed)
	assert.Equal(t, 0.75, r.CompletionRate)
	assert.Equal(t, 1, r.DeadlineViolations)
	assert.Equal(t, 1, r.BudgetViolations)
	assert.Equal(t, 2, r.Violations)
	testutil.AssertFloat64Equal(t, "violation rate", 2.0/3, r.ViolationRate, 1e-12)
	assert.Equal(t, 25.0, r.Makespan)
	testutil.AssertFloat64Equal(t, "avg wait", 10.0/3, r.AvgWait, 1e-12)
	testutil.AssertFloat64Equal(t, "avg turnaround", 40.0/3, r.AvgTurnaround, 1e-12)
	testutil.AssertFloat64Equal(t, "vm finish std", 10, r.VMFinishStdDev, 1e-12)
	assert.Equal(t, int64(17), r.EventsProcessed)

	// AND profit is +80% on time, -20% on each violation
	testutil.AssertFloat64Equal(t, "income", 0.3, r.Income, 1e-12)
	testutil.AssertFloat64Equal(t, "profit", 0.08-0.03-0.01, r.Profit, 1e-12)
}

func TestCompute_QoSMinMinSettlesLateCloudlets(t *testing.T) {
	in := fixture(t)
	in.Policy = placement.PolicyQoSMinMin

	r := Compute(in)

	// The late cloudlet has the shortest deadline, so it is tight (factor 1):
	// delay 15 over a 10s window on 0.15 income costs 0.225.
	late := 0.15 - 0.2*0.15 - 0.15/10*15
	testutil.AssertFloat64Equal(t, "profit", 0.08+late-0.01, r.Profit, 1e-12)
	assert.Equal(t, 2, r.Violations, "violations are counted the same way")
}

func TestCompute_QoSMinMinKeepsBindTimeFactor(t *testing.T) {
	// GIVEN the late cloudlet was classified loose when it was placed
	in := fixture(t)
	in.Policy = placement.PolicyQoSMinMin
	in.Cloudlets[1].Degradation = placement.LooseDegradation

	r := Compute(in)

	// THEN the report settles it with factor 2, not the run-wide class
	late := 0.15 - 0.2*0.15 - 0.15/20*15
	testutil.AssertFloat64Equal(t, "profit", 0.08+late-0.01, r.Profit, 1e-12)
}

func TestCompute_EmptyRun(t *testing.T) {
	r := Compute(Input{Policy: placement.PolicyFCFSRR})
	assert.Equal(t, 0, r.Submitted)
	assert.Equal(t, 0.0, r.CompletionRate)
	assert.Equal(t, 0.0, r.Makespan)
	assert.Equal(t, 0.0, r.Profit)
}

func TestCompute_UnfinishedCloudlets(t *testing.T) {
	vms := testutil.UniformVMs(1, 100, 0.01)
	queued := cloud.NewCloudlet(0, 1000, 1, 20, 1)
	require.NoError(t, queued.Queue())
	failed := cloud.NewCloudlet(1, 1000, 1, 20, 1)
	require.NoError(t, failed.Fail())

	r := Compute(Input{Policy: placement.PolicyMinMin, VMs: vms, Cloudlets: []*cloud.Cloudlet{queued, failed}})

	assert.Equal(t, 1, r.Unfinished)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 0, r.Completed)
}

func TestReport_PrintAndSave(t *testing.T) {
	r := Compute(fixture(t))

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== Simulation Metrics ==="))
	assert.Contains(t, out, "Completed Cloudlets  : 3 (75.00%)")
	assert.Contains(t, out, "SLA Violations       : 2 (66.67%)")
	assert.Contains(t, out, "Makespan             : 25.00 s")
	assert.Contains(t, out, "Average Wait         : 3.33 s")
	assert.Contains(t, out, "Average Turnaround   : 13.33 s")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.SaveJSON(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.RunID, back.RunID)
	assert.Equal(t, r.Violations, back.Violations)

	assert.Error(t, r.SaveJSON(filepath.Join(t.TempDir(), "missing", "report.json")))
}

func TestPrintComparison(t *testing.T) {
	a := &Report{Policy: placement.PolicyMinMin, Completed: 10, Profit: 1.5}
	b := &Report{Policy: placement.PolicyQoSMinMin, Completed: 12, Profit: 2.5}
	c := &Report{Policy: placement.PolicySufferage, Completed: 9, Profit: 2.5}

	var buf bytes.Buffer
	PrintComparison(&buf, []*Report{a, b, c})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "makespan_s")
	assert.True(t, strings.HasPrefix(lines[2], placement.PolicyMinMin))
	assert.True(t, strings.HasPrefix(lines[3], placement.PolicyQoSMinMin))

	assert.Same(t, b, Best([]*Report{a, b, c}), "ties keep the earlier report")
	assert.Nil(t, Best(nil))
}
