// Package scenario loads a run description from YAML and wires the kernel,
// the registry, the datacenters, and the broker into one simulation.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/markphelps/optional"
	"go.uber.org/multierr"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"github.com/qos-sim/qos-sim/sim/datacenter"
	"github.com/qos-sim/qos-sim/sim/placement"
	"github.com/qos-sim/qos-sim/sim/trace"
	"github.com/qos-sim/qos-sim/sim/workload"
)

// Entity names the scenario reserves for itself.
const (
	RegistryName = "registry"
	BrokerName   = "broker"
)

// Scenario is a complete run description.
type Scenario struct {
	Seed        int64            `yaml:"seed"`
	Horizon     float64          `yaml:"horizon,omitempty"` // 0 runs to completion
	Policy      string           `yaml:"policy"`
	TraceLevel  string           `yaml:"trace_level,omitempty"`
	Datacenters []DatacenterSpec `yaml:"datacenters"`
	Network     NetworkSpec      `yaml:"network,omitempty"`
	Workload    workload.Spec    `yaml:"workload"`

	// Migrations are issued by the broker when they fall due.
	Migrations []MigrationSpec `yaml:"migrations,omitempty"`
	// WithdrawGrace is how long past its deadline a cloudlet may still run
	// before the broker cancels it. Unset never withdraws.
	WithdrawGrace *float64 `yaml:"withdraw_grace,omitempty"`
}

// MigrationSpec moves VM to host index Host of the datacenter running it,
// at time At.
type MigrationSpec struct {
	At   float64 `yaml:"at"`
	VM   int     `yaml:"vm" validate:"min=0"`
	Host int     `yaml:"host" validate:"min=0"`
}

// DatacenterSpec describes one datacenter and its hosts.
type DatacenterSpec struct {
	Name             string     `yaml:"name" validate:"nonzero"`
	Hosts            []HostSpec `yaml:"hosts" validate:"min=1"`
	TransferRate     float64    `yaml:"transfer_rate,omitempty" validate:"min=0"` // MB/s
	MigrationFailure string     `yaml:"migration_failure,omitempty"`
}

// HostSpec is Count identical hosts. Count 0 means one.
type HostSpec struct {
	MIPS  float64 `yaml:"mips" validate:"nonzero"`
	PEs   int     `yaml:"pes" validate:"min=1"`
	Count int     `yaml:"count,omitempty" validate:"min=0"`
}

// NetworkSpec sets message delays between entities, in seconds.
type NetworkSpec struct {
	Default float64    `yaml:"default,omitempty"`
	Links   []LinkSpec `yaml:"links,omitempty"`
}

// LinkSpec is a symmetric delay between two named entities.
type LinkSpec struct {
	From  string  `yaml:"from"`
	To    string  `yaml:"to"`
	Delay float64 `yaml:"delay"`
}

// Overrides are command-line values that replace scenario fields when set.
type Overrides struct {
	Policy       optional.String
	Seed         optional.Int64
	NumVMs       optional.Int
	NumCloudlets optional.Int
	TraceLevel   optional.String
	Horizon      optional.Float64
}

// DefaultScenario is the reference experiment on a single datacenter of five
// hosts.
func DefaultScenario() *Scenario {
	hosts := make([]HostSpec, 5)
	for i := range hosts {
		hosts[i] = HostSpec{MIPS: 600 + 100*float64(i), PEs: 11 + i}
	}
	return &Scenario{
		Seed:        42,
		Policy:      placement.PolicyFCFSRR,
		TraceLevel:  string(trace.TraceLevelNone),
		Datacenters: []DatacenterSpec{{Name: "datacenter-0", Hosts: hosts}},
		Workload:    *workload.DefaultSpec(),
	}
}

// Load reads a scenario file on top of DefaultScenario, so omitted sections
// keep their defaults. Unknown keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	s := DefaultScenario()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return s, nil
}

// Apply copies every present override into s.
func (s *Scenario) Apply(o Overrides) {
	if v, err := o.Policy.Get(); err == nil {
		s.Policy = v
	}
	if v, err := o.Seed.Get(); err == nil {
		s.Seed = v
	}
	if v, err := o.NumVMs.Get(); err == nil {
		s.Workload.VMs.Count = v
	}
	if v, err := o.NumCloudlets.Get(); err == nil {
		s.Workload.Cloudlets.Count = v
	}
	if v, err := o.TraceLevel.Get(); err == nil {
		s.TraceLevel = v
	}
	if v, err := o.Horizon.Get(); err == nil {
		s.Horizon = v
	}
}

// Validate checks every field and reports all problems at once.
func (s *Scenario) Validate() error {
	var errs error
	if !placement.IsValidPolicy(s.Policy) {
		errs = multierr.Append(errs, fmt.Errorf("policy: unknown %q; valid: %v", s.Policy, placement.PolicyNames()))
	}
	if !trace.IsValidTraceLevel(s.TraceLevel) {
		errs = multierr.Append(errs, fmt.Errorf("trace_level: unknown %q; valid: none, decisions", s.TraceLevel))
	}
	if s.Horizon < 0 || math.IsNaN(s.Horizon) {
		errs = multierr.Append(errs, fmt.Errorf("horizon: must be >= 0, got %v", s.Horizon))
	}
	if len(s.Datacenters) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("datacenters: at least one is required"))
	}

	names := map[string]bool{RegistryName: true, BrokerName: true}
	for i, dc := range s.Datacenters {
		if err := validator.Validate(dc); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("datacenters[%d]: %w", i, err))
		}
		if dc.Name != "" && names[dc.Name] {
			errs = multierr.Append(errs, fmt.Errorf("datacenters[%d]: name %q is already taken", i, dc.Name))
		}
		names[dc.Name] = true
		if !datacenter.ValidMigrationPolicies[dc.MigrationFailure] {
			errs = multierr.Append(errs, fmt.Errorf("datacenters[%d].migration_failure: unknown %q; valid: abort, skip", i, dc.MigrationFailure))
		}
	}

	if !finiteNonNegative(s.Network.Default) {
		errs = multierr.Append(errs, fmt.Errorf("network.default: must be a finite delay >= 0, got %v", s.Network.Default))
	}
	for i, l := range s.Network.Links {
		if !names[l.From] || !names[l.To] {
			errs = multierr.Append(errs, fmt.Errorf("network.links[%d]: unknown endpoint in %q -> %q", i, l.From, l.To))
		}
		if !finiteNonNegative(l.Delay) {
			errs = multierr.Append(errs, fmt.Errorf("network.links[%d].delay: must be a finite delay >= 0, got %v", i, l.Delay))
		}
	}

	for i, m := range s.Migrations {
		if err := validator.Validate(m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migrations[%d]: %w", i, err))
		}
		if !finiteNonNegative(m.At) {
			errs = multierr.Append(errs, fmt.Errorf("migrations[%d].at: must be a finite time >= 0, got %v", i, m.At))
		}
		if m.VM >= s.Workload.VMs.Count {
			errs = multierr.Append(errs, fmt.Errorf("migrations[%d].vm: %d is not one of the %d vms", i, m.VM, s.Workload.VMs.Count))
		}
	}
	if s.WithdrawGrace != nil && !finiteNonNegative(*s.WithdrawGrace) {
		errs = multierr.Append(errs, fmt.Errorf("withdraw_grace: must be a finite delay >= 0, got %v", *s.WithdrawGrace))
	}

	if err := s.Workload.Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("workload: %w", err))
	}
	return errs
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
