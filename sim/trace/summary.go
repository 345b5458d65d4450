package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions     int
	BoundCount         int
	CanceledCount      int
	CompensatedCount   int
	MeanCompensation   float64 // over compensated bindings only
	MaxCompensation    float64
	UniqueTargets      int
	TargetDistribution map[int]int // VM ID → count of cloudlets bound
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	summary.BoundCount = len(st.Binds)
	summary.CanceledCount = len(st.Cancels)
	summary.TotalDecisions = summary.BoundCount + summary.CanceledCount

	total := 0.0
	for _, b := range st.Binds {
		summary.TargetDistribution[b.VMID]++
		if !b.Compensated {
			continue
		}
		summary.CompensatedCount++
		total += b.Compensation
		if b.Compensation > summary.MaxCompensation {
			summary.MaxCompensation = b.Compensation
		}
	}
	if summary.CompensatedCount > 0 {
		summary.MeanCompensation = total / float64(summary.CompensatedCount)
	}

	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
