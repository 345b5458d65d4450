package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every bind and cancel decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects placement decision records during a run.
type SimulationTrace struct {
	Config  TraceConfig
	Binds   []BindRecord
	Cancels []CancelRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:  config,
		Binds:   make([]BindRecord, 0),
		Cancels: make([]CancelRecord, 0),
	}
}

// Enabled reports whether records should be collected. Safe on nil.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordBind appends a binding record.
func (st *SimulationTrace) RecordBind(record BindRecord) {
	st.Binds = append(st.Binds, record)
}

// RecordCancel appends a cancellation record.
func (st *SimulationTrace) RecordCancel(record CancelRecord) {
	st.Cancels = append(st.Cancels, record)
}

// Mark returns the number of bind and cancel records. Safe on nil.
func (st *SimulationTrace) Mark() (binds, cancels int) {
	if st == nil {
		return 0, 0
	}
	return len(st.Binds), len(st.Cancels)
}

// Rewind drops records made after Mark returned binds and cancels.
func (st *SimulationTrace) Rewind(binds, cancels int) {
	if st == nil {
		return
	}
	st.Binds = st.Binds[:min(binds, len(st.Binds))]
	st.Cancels = st.Cancels[:min(cancels, len(st.Cancels))]
}
