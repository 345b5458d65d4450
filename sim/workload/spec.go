package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

// Spec is the top-level workload configuration: the VM fleet a broker leases
// and the cloudlets it submits. Loaded from YAML via LoadSpec(path) or
// embedded in a scenario file.
type Spec struct {
	VMs       VMSpec       `yaml:"vms"`
	Cloudlets CloudletSpec `yaml:"cloudlets"`
}

// VMSpec describes Count VMs whose characteristics cycle through Types.
type VMSpec struct {
	Count int      `yaml:"count" validate:"min=0"`
	Types []VMType `yaml:"types" validate:"min=1"`
}

// VMType is one VM flavor. Cost is quoted per hour, as cloud providers do.
type VMType struct {
	MIPS        float64 `yaml:"mips" validate:"nonzero"`
	PEs         int     `yaml:"pes" validate:"min=1"`
	CostPerHour float64 `yaml:"cost_per_hour" validate:"min=0"`
}

// CloudletSpec describes Count cloudlets. Each field is drawn from its own
// distribution; Arrival, when set, samples inter-submission gaps so that
// cloudlets reach the broker over time instead of all at t=0.
type CloudletSpec struct {
	Count    int       `yaml:"count" validate:"min=0"`
	PEs      int       `yaml:"pes" validate:"min=1"`
	Length   DistSpec  `yaml:"length"`
	Deadline DistSpec  `yaml:"deadline"`
	Budget   DistSpec  `yaml:"budget"`
	FileSize *DistSpec `yaml:"file_size,omitempty"`
	Arrival  *DistSpec `yaml:"arrival,omitempty"`
}

// DistSpec parameterizes a sampled field.
//
//	cyclic:      values (index i takes values[i % len])
//	constant:    value
//	uniform:     min, max
//	gaussian:    mean, std_dev, min, max (clamped)
//	exponential: mean
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Values []float64          `yaml:"values,omitempty"`
}

var validDistTypes = map[string]bool{
	"cyclic": true, "constant": true, "uniform": true, "gaussian": true, "exponential": true,
}

// Hour in simulated seconds.
const Hour = 3600.0

// DefaultSpec reproduces the reference experiment: 20 VMs of five cyclic
// flavors and 300 cloudlets whose length, deadline, and budget cycle through
// fixed tables.
func DefaultSpec() *Spec {
	lengths := make([]float64, 10)
	budgets := make([]float64, 10)
	for i := range lengths {
		lengths[i] = 10000 + 5000*float64(i)
		budgets[i] = 0.01 * float64(i+1)
	}
	return &Spec{
		VMs: VMSpec{
			Count: 20,
			Types: []VMType{
				{MIPS: 42, PEs: 1, CostPerHour: 0.16},
				{MIPS: 83, PEs: 1, CostPerHour: 0.29},
				{MIPS: 125, PEs: 2, CostPerHour: 0.71},
				{MIPS: 167, PEs: 1, CostPerHour: 0.54},
				{MIPS: 208, PEs: 2, CostPerHour: 1.08},
			},
		},
		Cloudlets: CloudletSpec{
			Count:    300,
			PEs:      1,
			Length:   DistSpec{Type: "cyclic", Values: lengths},
			Deadline: DistSpec{Type: "cyclic", Values: []float64{1 * Hour, 2 * Hour, 3 * Hour, 4 * Hour, 5 * Hour}},
			Budget:   DistSpec{Type: "cyclic", Values: budgets},
		},
	}
}

// LoadSpec reads and parses a YAML workload specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	return &spec, nil
}

// Validate checks every field and reports all problems at once.
func (s *Spec) Validate() error {
	var errs error
	if err := validator.Validate(s.VMs); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("vms: %w", err))
	}
	if err := validator.Validate(s.Cloudlets); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cloudlets: %w", err))
	}
	errs = multierr.Append(errs, validateDistSpec("cloudlets.length", &s.Cloudlets.Length))
	errs = multierr.Append(errs, validateDistSpec("cloudlets.deadline", &s.Cloudlets.Deadline))
	errs = multierr.Append(errs, validateDistSpec("cloudlets.budget", &s.Cloudlets.Budget))
	if s.Cloudlets.FileSize != nil {
		errs = multierr.Append(errs, validateDistSpec("cloudlets.file_size", s.Cloudlets.FileSize))
	}
	if s.Cloudlets.Arrival != nil {
		errs = multierr.Append(errs, validateDistSpec("cloudlets.arrival", s.Cloudlets.Arrival))
	}
	return errs
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: cyclic, constant, uniform, gaussian, exponential", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	for i, val := range d.Values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.values[%d] must be a finite number, got %f", prefix, i, val)
		}
	}
	return nil
}
