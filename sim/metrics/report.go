// Package metrics turns the cloudlets returned by a run into an SLA report.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/placement"
)

// Input is everything the report needs from a finished run.
type Input struct {
	Policy          string
	Cloudlets       []*cloud.Cloudlet
	VMs             []*cloud.VM
	Clock           float64
	EventsProcessed int64
}

// Report is the end-of-run SLA accounting for one policy.
type Report struct {
	RunID  string `json:"run_id"`
	Policy string `json:"policy"`

	Submitted      int     `json:"submitted"`
	Completed      int     `json:"completed"`
	Canceled       int     `json:"canceled"`
	Failed         int     `json:"failed"`
	Unfinished     int     `json:"unfinished"`
	CompletionRate float64 `json:"completion_rate"`

	DeadlineViolations int     `json:"deadline_violations"`
	BudgetViolations   int     `json:"budget_violations"`
	Violations         int     `json:"violations"`
	ViolationRate      float64 `json:"violation_rate"`

	Makespan       float64 `json:"makespan"`
	AvgWait        float64 `json:"avg_wait"`
	AvgTurnaround  float64 `json:"avg_turnaround"`
	P95Turnaround  float64 `json:"p95_turnaround"`
	VMFinishStdDev float64 `json:"vm_finish_std_dev"`

	Income float64 `json:"income"`
	Profit float64 `json:"profit"`

	SimClock        float64 `json:"sim_clock"`
	EventsProcessed int64   `json:"events_processed"`
}

// Compute builds the report. Only cloudlets that completed count toward the
// timing, violation, and profit figures.
func Compute(in Input) *Report {
	r := &Report{
		RunID:           uuid.New(),
		Policy:          in.Policy,
		Submitted:       len(in.Cloudlets),
		SimClock:        in.Clock,
		EventsProcessed: in.EventsProcessed,
	}

	var done []*cloud.Cloudlet
	for _, c := range in.Cloudlets {
		switch c.Status() {
		case cloud.StatusSuccess:
			done = append(done, c)
		case cloud.StatusCanceled:
			r.Canceled++
		case cloud.StatusFailed:
			r.Failed++
		default:
			r.Unfinished++
		}
	}
	r.Completed = len(done)
	if r.Submitted > 0 {
		r.CompletionRate = float64(r.Completed) / float64(r.Submitted)
	}
	if len(done) == 0 {
		return r
	}

	avgDeadline := placement.AverageDeadline(in.Cloudlets)
	finishes := make([]float64, 0, len(done))
	waits := make([]float64, 0, len(done))
	turnarounds := make([]float64, 0, len(done))
	lastFinish := make(map[int]float64)

	for _, c := range done {
		vm, ok := cloud.FindVM(in.VMs, c.VMID)
		if !ok {
			logrus.Warnf("metrics: cloudlet %d ran on unknown vm %d", c.ID, c.VMID)
			continue
		}
		finishes = append(finishes, c.FinishTime)
		waits = append(waits, c.ExecStartTime-c.SubmitTime)
		turnarounds = append(turnarounds, c.FinishTime-c.SubmitTime)
		if c.FinishTime > lastFinish[vm.ID] {
			lastFinish[vm.ID] = c.FinishTime
		}

		income := c.ActualCPUTime * vm.CostPerSec
		r.Income += income
		r.Profit += profit(in.Policy, c, vm, income, avgDeadline, r)
	}
	if r.Completed > 0 {
		r.ViolationRate = float64(r.Violations) / float64(r.Completed)
	}
	if len(finishes) == 0 {
		return r
	}

	r.Makespan = floats.Max(finishes)
	r.AvgWait = stat.Mean(waits, nil)
	r.AvgTurnaround = stat.Mean(turnarounds, nil)
	slices.Sort(turnarounds)
	r.P95Turnaround = stat.Quantile(0.95, stat.LinInterp, turnarounds, nil)

	perVM := make([]float64, 0, len(lastFinish))
	for _, vm := range in.VMs {
		if f, ok := lastFinish[vm.ID]; ok {
			perVM = append(perVM, f)
		}
	}
	_, r.VMFinishStdDev = stat.PopMeanStdDev(perVM, nil)
	return r
}

// profit is the provider's take on one completed cloudlet. It also bumps the
// violation counters on r.
func profit(policy string, c *cloud.Cloudlet, vm *cloud.VM, income, avgDeadline float64, r *Report) float64 {
	overBudget := income > c.Budget
	late := c.FinishTime > c.AbsoluteDeadline()
	if overBudget {
		r.BudgetViolations++
	}
	if late {
		r.DeadlineViolations++
	}
	if !overBudget && !late {
		return (1 - placement.OperatingCostRatio) * income
	}
	r.Violations++
	if overBudget || policy != placement.PolicyQoSMinMin {
		return -placement.OperatingCostRatio * income
	}

	factor := c.Degradation
	if factor == 0 {
		factor = placement.DegradationFactor(c, avgDeadline)
	}
	s := placement.Settle(c, vm, c.ActualCPUTime, c.FinishTime, factor)
	if s.FinalCost > c.Budget {
		return -placement.OperatingCostRatio * income
	}
	return s.Profit
}

// Print writes the report as a text block. Times are in simulated seconds,
// like the JSON fields.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Policy               : %s\n", r.Policy)
	fmt.Fprintf(w, "Run ID               : %s\n", r.RunID)
	fmt.Fprintf(w, "Submitted Cloudlets  : %d\n", r.Submitted)
	fmt.Fprintf(w, "Completed Cloudlets  : %d (%.2f%%)\n", r.Completed, 100*r.CompletionRate)
	fmt.Fprintf(w, "Canceled Cloudlets   : %d\n", r.Canceled)
	if r.Failed > 0 || r.Unfinished > 0 {
		fmt.Fprintf(w, "Failed / Unfinished  : %d / %d\n", r.Failed, r.Unfinished)
	}
	fmt.Fprintf(w, "SLA Violations       : %d (%.2f%%)\n", r.Violations, 100*r.ViolationRate)
	fmt.Fprintf(w, "  deadline / budget  : %d / %d\n", r.DeadlineViolations, r.BudgetViolations)
	if r.Completed > 0 {
		fmt.Fprintf(w, "Makespan             : %.2f s\n", r.Makespan)
		fmt.Fprintf(w, "Average Wait         : %.2f s\n", r.AvgWait)
		fmt.Fprintf(w, "Average Turnaround   : %.2f s\n", r.AvgTurnaround)
		fmt.Fprintf(w, "P95 Turnaround       : %.2f s\n", r.P95Turnaround)
		fmt.Fprintf(w, "VM Finish Std Dev    : %.2f s\n", r.VMFinishStdDev)
	}
	fmt.Fprintf(w, "Income               : %.4f\n", r.Income)
	fmt.Fprintf(w, "Provider Profit      : %.4f\n", r.Profit)
	fmt.Fprintf(w, "Simulation Clock     : %.2f s (%d events)\n", r.SimClock, r.EventsProcessed)
}

// SaveJSON writes the report to path.
func (r *Report) SaveJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	logrus.Infof("Report written to %s", path)
	return nil
}
