package scenario

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/markphelps/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/datacenter"
	"github.com/qos-sim/qos-sim/sim/internal/testutil"
	"github.com/qos-sim/qos-sim/sim/placement"
	"github.com/qos-sim/qos-sim/sim/trace"
	"github.com/qos-sim/qos-sim/sim/workload"
)

// small is two 100-MIPS VMs and three cloudlets on one roomy host.
func small(policy string) *Scenario {
	return &Scenario{
		Seed:       1,
		Policy:     policy,
		TraceLevel: string(trace.TraceLevelDecisions),
		Datacenters: []DatacenterSpec{
			{Name: "dc-a", Hosts: []HostSpec{{MIPS: 1000, PEs: 8}}},
		},
		Workload: workload.Spec{
			VMs: workload.VMSpec{Count: 2, Types: []workload.VMType{{MIPS: 100, PEs: 1, CostPerHour: 36}}},
			Cloudlets: workload.CloudletSpec{
				Count:    3,
				PEs:      1,
				Length:   workload.DistSpec{Type: "cyclic", Values: []float64{1000, 2000, 500}},
				Deadline: workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 20}},
				Budget:   workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 1}},
			},
		},
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultScenario_IsValid(t *testing.T) {
	s := DefaultScenario()
	require.NoError(t, s.Validate())
	assert.Len(t, expandHosts(s.Datacenters[0].Hosts), 5)
	assert.Equal(t, 20, s.Workload.VMs.Count)
	assert.Equal(t, 300, s.Workload.Cloudlets.Count)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	// GIVEN a scenario with seven independent mistakes
	s := DefaultScenario()
	s.Policy = "bogus"
	s.TraceLevel = "loud"
	s.Datacenters = []DatacenterSpec{{Name: RegistryName, MigrationFailure: "retry"}}
	s.Network.Links = []LinkSpec{{From: "nowhere", To: RegistryName, Delay: -1}}

	// WHEN it is validated
	err := s.Validate()

	// THEN each mistake is reported
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 7)
}

func TestValidate_MigrationsAndWithdrawGrace(t *testing.T) {
	s := small(placement.PolicyMinMin)
	grace := math.Inf(1)
	s.WithdrawGrace = &grace
	s.Migrations = []MigrationSpec{
		{At: 1, VM: 0, Host: 0},
		{At: -1, VM: 2, Host: -3},
	}

	err := s.Validate()

	// at, vm range, host minimum, and the grace
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.Contains(t, err.Error(), "migrations[1].vm: 2 is not one of the 2 vms")
	assert.Contains(t, err.Error(), "withdraw_grace")
}

func TestValidate_WorkloadErrorsArePrefixed(t *testing.T) {
	s := DefaultScenario()
	s.Workload.Cloudlets.Length.Type = "zipf"
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workload: cloudlets.length")
}

func TestLoad(t *testing.T) {
	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := writeFile(t, `
seed: 7
policy: min-min
datacenters:
  - name: east
    transfer_rate: 50
    hosts:
      - {mips: 1000, pes: 4, count: 2}
network:
  default: 0.5
  links:
    - {from: broker, to: east, delay: 0.1}
`)
		s, err := Load(path)
		require.NoError(t, err)
		require.NoError(t, s.Validate())
		assert.Equal(t, int64(7), s.Seed)
		assert.Equal(t, placement.PolicyMinMin, s.Policy)
		assert.Len(t, expandHosts(s.Datacenters[0].Hosts), 2)
		assert.Equal(t, 300, s.Workload.Cloudlets.Count)
		assert.Equal(t, 0.5, s.Network.Default)
	})

	t.Run("omitted policy is fcfs-rr", func(t *testing.T) {
		s, err := Load(writeFile(t, "seed: 7\n"))
		require.NoError(t, err)
		assert.Equal(t, placement.PolicyFCFSRR, s.Policy)
		assert.Equal(t, int64(7), s.Seed)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		_, err := Load(writeFile(t, "polcy: min-min\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestApply_OnlyPresentOverrides(t *testing.T) {
	s := DefaultScenario()
	s.Apply(Overrides{
		Policy:       optional.NewString(placement.PolicySufferage),
		NumCloudlets: optional.NewInt(10),
	})
	assert.Equal(t, placement.PolicySufferage, s.Policy)
	assert.Equal(t, 10, s.Workload.Cloudlets.Count)
	assert.Equal(t, int64(42), s.Seed, "absent override leaves the field alone")
	assert.Equal(t, 20, s.Workload.VMs.Count)
}

func TestRun_MinMinEndToEnd(t *testing.T) {
	// GIVEN the small scenario under Min-Min
	s := small(placement.PolicyMinMin)

	// WHEN it runs
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	// THEN the run matches the placement plan and the report prices it
	assert.Equal(t, []int{1, 0, 0}, testutil.VMIDs(res.Cloudlets))
	assert.Equal(t, 25.0, res.Stats.Clock)
	r := res.Report
	assert.Equal(t, 3, r.Completed)
	assert.Equal(t, 1, r.DeadlineViolations)
	assert.Equal(t, 25.0, r.Makespan)
	testutil.AssertFloat64Equal(t, "profit", 0.08+0.04-0.04, r.Profit, 1e-9)

	require.NotNil(t, res.Trace)
	assert.Equal(t, 3, res.Trace.BoundCount)
	assert.Equal(t, int64(3), res.Counters["broker.cloudlets_returned"])
	assert.Equal(t, int64(3), res.Counters["datacenter.cloudlets_completed"])
}

func TestRun_TransferRateDelaysExecution(t *testing.T) {
	s := small(placement.PolicyMinMin)
	s.Datacenters[0].TransferRate = 100
	s.Workload.Cloudlets.FileSize = &workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 100}}

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	for _, c := range res.Cloudlets {
		assert.Equal(t, cloud.StatusSuccess, c.Status())
		assert.GreaterOrEqual(t, c.ActualCPUTime, c.Length/100+1)
	}
	assert.Greater(t, res.Stats.Clock, 25.0)
}

func TestRun_HorizonLeavesWorkUnfinished(t *testing.T) {
	s := small(placement.PolicyMinMin)
	s.Horizon = 8

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Stats.Clock, 8.0)
	assert.Equal(t, 1, res.Report.Completed, "only the 5s cloudlet finishes")
	assert.Equal(t, 2, res.Report.Unfinished)
}

func TestRun_MigrationFailurePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		wantErr bool
	}{
		{"abort stops the run", datacenter.MigrationAbort, true},
		{"default aborts", "", true},
		{"skip keeps running", datacenter.MigrationSkip, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a migration at t=1 to a host the datacenter does not have
			s := small(placement.PolicyMinMin)
			s.Datacenters[0].MigrationFailure = tt.policy
			s.Migrations = []MigrationSpec{{At: 1, VM: 0, Host: 5}}

			// WHEN the scenario runs
			res, err := s.Run(context.Background())

			// THEN abort surfaces the failure and skip finishes the work
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, datacenter.ErrHostNotFound), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, res.Report.Completed)
			assert.Equal(t, int64(1), res.Counters["datacenter.migration_failures"])
			assert.Equal(t, int64(1), res.Counters["broker.migration_failures"])
		})
	}
}

func TestRun_MigrationMovesVM(t *testing.T) {
	// GIVEN two hosts, one VM on each, and vm 0 moved to host 1 at t=1
	s := small(placement.PolicyMinMin)
	s.Datacenters[0].Hosts = []HostSpec{{MIPS: 1000, PEs: 8, Count: 2}}
	s.Migrations = []MigrationSpec{{At: 1, VM: 0, Host: 1}}

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.VMs[0].HostID)
	assert.Equal(t, 3, res.Report.Completed)
	assert.Equal(t, int64(1), res.Counters["datacenter.migrations"])
	assert.Equal(t, int64(1), res.Counters["broker.migrations"])
}

func TestRun_WithdrawGraceCancelsOverdueCloudlet(t *testing.T) {
	// GIVEN the 2000 MI cloudlet runs from 5 to 25 against a deadline of 20
	s := small(placement.PolicyMinMin)
	grace := 2.0
	s.WithdrawGrace = &grace

	// WHEN overdue cloudlets are withdrawn 2s past their deadline
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	// THEN it is canceled at 22 and the run ends there
	assert.Equal(t, cloud.StatusCanceled, res.Cloudlets[1].Status())
	assert.Equal(t, 22.0, res.Stats.Clock)
	assert.Equal(t, 2, res.Report.Completed)
	assert.Equal(t, 1, res.Report.Canceled)
	assert.Equal(t, 0, res.Report.DeadlineViolations)
	assert.Equal(t, int64(1), res.Counters["broker.cloudlets_withdrawn"])
	assert.Equal(t, int64(1), res.Counters["datacenter.cloudlets_canceled"])
}

func TestRun_InvalidScenario(t *testing.T) {
	s := small("bogus")
	_, err := s.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := small(placement.PolicyMinMin).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare_OneResultPerPolicy(t *testing.T) {
	s := DefaultScenario()
	s.Workload.VMs.Count = 5
	s.Workload.Cloudlets.Count = 40

	results, err := s.Compare(context.Background(), placement.PolicyNames())
	require.NoError(t, err)
	require.Len(t, results, len(placement.PolicyNames()))
	for i, res := range results {
		assert.Equal(t, placement.PolicyNames()[i], res.Report.Policy)
		r := res.Report
		assert.Equal(t, 40, r.Submitted)
		assert.Equal(t, r.Submitted, r.Completed+r.Canceled+r.Failed+r.Unfinished)
	}
	assert.Equal(t, placement.PolicyFCFSRR, s.Policy, "compare does not mutate the scenario")
}

func TestRun_Deterministic(t *testing.T) {
	run := func() []float64 {
		s := DefaultScenario()
		s.Workload.Cloudlets.Count = 60
		s.Workload.Cloudlets.Arrival = &workload.DistSpec{Type: "exponential", Params: map[string]float64{"mean": 120}}
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		out := []float64{res.Stats.Clock, res.Report.Profit, float64(res.Report.Violations)}
		for _, c := range res.Cloudlets {
			out = append(out, c.FinishTime, float64(c.VMID))
		}
		return out
	}
	assert.Equal(t, run(), run())
}
