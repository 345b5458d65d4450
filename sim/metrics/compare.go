package metrics

import (
	"fmt"
	"io"
)

// PrintComparison writes one row per report, in the order given.
func PrintComparison(w io.Writer, reports []*Report) {
	fmt.Fprintln(w, "=== Policy Comparison ===")
	fmt.Fprintf(w, "%-14s %9s %9s %9s %10s %12s %12s %12s\n",
		"policy", "completed", "canceled", "violated", "viol_rate", "makespan_s", "avg_wait_s", "profit")
	for _, r := range reports {
		fmt.Fprintf(w, "%-14s %9d %9d %9d %9.2f%% %12.2f %12.2f %12.4f\n",
			r.Policy, r.Completed, r.Canceled, r.Violations, 100*r.ViolationRate,
			r.Makespan, r.AvgWait, r.Profit)
	}
}

// Best returns the report with the highest profit, ties going to the
// earlier one. It returns nil for an empty slice.
func Best(reports []*Report) *Report {
	var best *Report
	for _, r := range reports {
		if best == nil || r.Profit > best.Profit {
			best = r
		}
	}
	return best
}
