package scenario

import (
	"context"
	"fmt"

	"github.com/markphelps/optional"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"

	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/broker"
	"github.com/qos-sim/qos-sim/sim/cloud"
	"github.com/qos-sim/qos-sim/sim/datacenter"
	"github.com/qos-sim/qos-sim/sim/metrics"
	"github.com/qos-sim/qos-sim/sim/placement"
	"github.com/qos-sim/qos-sim/sim/registry"
	"github.com/qos-sim/qos-sim/sim/trace"
	"github.com/qos-sim/qos-sim/sim/workload"
)

// Result is the outcome of one scenario run.
type Result struct {
	Report    *metrics.Report
	Trace     *trace.TraceSummary // nil when tracing is off
	Stats     sim.Stats
	Counters  map[string]int64 // broker and datacenter counters summed over tags
	VMs       []*cloud.VM
	Cloudlets []*cloud.Cloudlet
}

// Run validates s, generates its workload, and simulates it to completion
// (or to the horizon).
func (s *Scenario) Run(ctx context.Context) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	wl, err := workload.Generate(&s.Workload, s.Seed)
	if err != nil {
		return nil, err
	}

	latency := sim.NewLatencyMatrix(s.Network.Default)
	opts := []sim.Option{sim.WithDelayModel(latency)}
	if s.Horizon > 0 {
		opts = append(opts, sim.WithHorizon(s.Horizon))
	}
	simulation := sim.NewSimulation(opts...)
	reporter := newRunReporter()
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Reporter:               reporter,
		OmitCardinalityMetrics: true,
	}, 0)
	defer closer.Close()

	regID, err := simulation.Register(registry.New(RegistryName))
	if err != nil {
		return nil, err
	}
	dcs := make([]*datacenter.Datacenter, 0, len(s.Datacenters))
	for _, spec := range s.Datacenters {
		dc := datacenter.New(spec.Name, regID, datacenter.Config{
			Hosts:            expandHosts(spec.Hosts),
			TransferRate:     spec.TransferRate,
			MigrationFailure: spec.MigrationFailure,
		}, scope)
		if _, err := simulation.Register(dc); err != nil {
			return nil, err
		}
		dcs = append(dcs, dc)
	}

	var tr *trace.SimulationTrace
	if trace.TraceLevel(s.TraceLevel) == trace.TraceLevelDecisions {
		tr = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	}
	// Predictions stage files at the first datacenter's rate.
	pred := placement.Predictor{TransferTime: dcs[0].TransferTime}
	cfg := broker.Config{
		RegistryID: regID,
		Policy:     placement.NewPolicy(s.Policy, pred),
		Predictor:  pred,
		VMs:        wl.VMs,
		Cloudlets:  wl.Cloudlets,
		Trace:      tr,
		Scope:      scope,
	}
	for _, m := range s.Migrations {
		cfg.Migrations = append(cfg.Migrations, broker.Migration{At: m.At, VMID: m.VM, HostID: m.Host})
	}
	if s.WithdrawGrace != nil {
		cfg.WithdrawGrace = optional.NewFloat64(*s.WithdrawGrace)
	}
	b := broker.New(BrokerName, cfg)
	if _, err := simulation.Register(b); err != nil {
		return nil, err
	}
	if err := s.wireLinks(simulation, latency); err != nil {
		return nil, err
	}

	logrus.Infof("Running scenario: policy=%s seed=%d vms=%d cloudlets=%d datacenters=%d",
		s.Policy, s.Seed, len(wl.VMs), len(wl.Cloudlets), len(dcs))
	stats, err := simulation.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation %s: %w", s.Policy, err)
	}

	res := &Result{
		Report: metrics.Compute(metrics.Input{
			Policy:          s.Policy,
			Cloudlets:       wl.Cloudlets,
			VMs:             wl.VMs,
			Clock:           stats.Clock,
			EventsProcessed: stats.EventsProcessed,
		}),
		Stats:     stats,
		VMs:       wl.VMs,
		Cloudlets: wl.Cloudlets,
	}
	if tr != nil {
		res.Trace = trace.Summarize(tr)
	}
	// Closing the root scope reports every metric once.
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("closing metrics: %w", err)
	}
	res.Counters = reporter.Counters()
	return res, nil
}

// Compare runs s once per policy on the same seeded workload.
func (s *Scenario) Compare(ctx context.Context, policies []string) ([]*Result, error) {
	results := make([]*Result, 0, len(policies))
	for _, p := range policies {
		run := *s
		run.Policy = p
		res, err := run.Run(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Scenario) wireLinks(simulation *sim.Simulation, latency *sim.LatencyMatrix) error {
	for _, l := range s.Network.Links {
		from, err := simulation.EntityID(l.From)
		if err != nil {
			return fmt.Errorf("network link %s: %w", l.From, err)
		}
		to, err := simulation.EntityID(l.To)
		if err != nil {
			return fmt.Errorf("network link %s: %w", l.To, err)
		}
		latency.Set(from, to, l.Delay)
	}
	return nil
}

func expandHosts(specs []HostSpec) []cloud.Host {
	var hosts []cloud.Host
	for _, h := range specs {
		n := max(h.Count, 1)
		for range n {
			hosts = append(hosts, cloud.Host{ID: len(hosts), MIPS: h.MIPS, PEs: h.PEs})
		}
	}
	return hosts
}
