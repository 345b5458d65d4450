package sim

// LatencyMatrix is a symmetric DelayModel keyed by entity id pairs.
// Pairs without an entry use Default.
type LatencyMatrix struct {
	Default float64
	links   map[[2]int]float64
}

// NewLatencyMatrix creates a matrix with the given default delay.
func NewLatencyMatrix(def float64) *LatencyMatrix {
	return &LatencyMatrix{Default: def, links: make(map[[2]int]float64)}
}

// Set records the delay between a and b in both directions.
func (m *LatencyMatrix) Set(a, b int, delay float64) {
	m.links[linkKey(a, b)] = delay
}

// Delay implements DelayModel.
func (m *LatencyMatrix) Delay(src, dst int) float64 {
	if d, ok := m.links[linkKey(src, dst)]; ok {
		return d
	}
	return m.Default
}

func linkKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
