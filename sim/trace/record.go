// Package trace provides decision-trace recording for placement policy analysis.
// This package has no dependencies on sim/ or its entities; it stores pure data types.
package trace

// BindRecord captures a single cloudlet-to-VM binding.
type BindRecord struct {
	CloudletID int
	VMID       int
	Clock      float64 // logical time of the placement pass
	Policy     string
	FinishLine float64 // predicted finish time at bind time

	// Set when the binding was accepted through delay compensation.
	Compensated  bool
	Delay        float64
	Compensation float64
	Profit       float64
}

// CancelRecord captures a cloudlet a policy refused to place.
type CancelRecord struct {
	CloudletID int
	Clock      float64
	Policy     string
	Reason     string
}
