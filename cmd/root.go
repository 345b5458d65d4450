package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/markphelps/optional"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qos-sim/qos-sim/sim/metrics"
	"github.com/qos-sim/qos-sim/sim/placement"
	"github.com/qos-sim/qos-sim/sim/scenario"
	"github.com/qos-sim/qos-sim/sim/trace"
)

var (
	scenarioPath string  // Scenario YAML; empty uses the built-in reference experiment
	policyName   string  // Placement policy
	seed         int64   // Seed for workload generation
	numVMs       int     // VM count override
	numCloudlets int     // Cloudlet count override
	traceLevel   string  // Decision trace level
	horizon      float64 // Simulation horizon in seconds (0 runs to completion)
	logLevel     string  // Log verbosity level
	resultsPath  string  // File to save the JSON report to
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qos-sim",
	Short: "Discrete-event simulator for QoS-aware cloud workload placement",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd runs one policy and prints its SLA report
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the placement simulation with one policy",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := buildScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := s.Run(ctx)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		res.Report.Print(os.Stdout)
		if res.Trace != nil {
			printTraceSummary(os.Stdout, res.Trace)
		}
		if resultsPath != "" {
			if err := res.Report.SaveJSON(resultsPath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		logrus.Info("Simulation complete.")
	},
}

// compareCmd runs every policy on the same workload
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run every placement policy on the same seeded workload",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := buildScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		results, err := s.Compare(ctx, placement.PolicyNames())
		if err != nil {
			logrus.Fatalf("Comparison failed: %v", err)
		}
		reports := make([]*metrics.Report, len(results))
		for i, r := range results {
			reports[i] = r.Report
		}
		metrics.PrintComparison(os.Stdout, reports)
		if best := metrics.Best(reports); best != nil {
			fmt.Printf("Most profitable policy: %s\n", best.Policy)
		}
	},
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the available placement policies",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range placement.PolicyNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

// buildScenario loads the scenario and applies every flag the user set.
func buildScenario(cmd *cobra.Command) (*scenario.Scenario, error) {
	s := scenario.DefaultScenario()
	if scenarioPath != "" {
		loaded, err := scenario.Load(scenarioPath)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	s.Apply(overrides(cmd))
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

func overrides(cmd *cobra.Command) scenario.Overrides {
	var o scenario.Overrides
	flags := cmd.Flags()
	if flags.Changed("policy") {
		o.Policy = optional.NewString(policyName)
	}
	if flags.Changed("seed") {
		o.Seed = optional.NewInt64(seed)
	}
	if flags.Changed("num-vms") {
		o.NumVMs = optional.NewInt(numVMs)
	}
	if flags.Changed("num-cloudlets") {
		o.NumCloudlets = optional.NewInt(numCloudlets)
	}
	if flags.Changed("trace-level") {
		o.TraceLevel = optional.NewString(traceLevel)
	}
	if flags.Changed("horizon") {
		o.Horizon = optional.NewFloat64(horizon)
	}
	return o
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Placement Trace ===")
	fmt.Fprintf(w, "Decisions            : %d\n", s.TotalDecisions)
	fmt.Fprintf(w, "Bound / Canceled     : %d / %d\n", s.BoundCount, s.CanceledCount)
	fmt.Fprintf(w, "Compensated          : %d (mean %.6f, max %.6f)\n", s.CompensatedCount, s.MeanCompensation, s.MaxCompensation)
	fmt.Fprintf(w, "VMs Used             : %d\n", s.UniqueTargets)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	for _, c := range []*cobra.Command{runCmd, compareCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "", "Path to a scenario YAML file")
		c.Flags().Int64Var(&seed, "seed", 42, "Seed for workload generation")
		c.Flags().IntVar(&numVMs, "num-vms", 20, "Number of VMs the broker leases")
		c.Flags().IntVar(&numCloudlets, "num-cloudlets", 300, "Number of cloudlets submitted")
		c.Flags().Float64Var(&horizon, "horizon", 0, "Simulation horizon in seconds (0 runs to completion)")
	}
	runCmd.Flags().StringVar(&policyName, "policy", placement.PolicyFCFSRR, fmt.Sprintf("Placement policy %v", placement.PolicyNames()))
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelNone), "Decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&resultsPath, "results-path", "", "Save the JSON report to this file")

	rootCmd.AddCommand(runCmd, compareCmd, policiesCmd)
}
