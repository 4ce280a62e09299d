package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brownout-sim/brownout-sim/runner"
	sim "github.com/brownout-sim/brownout-sim/sim"
)

var (
	sweepOutDir     string   // Results root; one subdirectory per algorithm
	sweepAlgorithms []string // Algorithm identifiers to sweep
	sweepCommand    []string // Simulation command argv prefix; empty re-invokes this binary
	sweepConfigPath string   // Optional sweep config YAML; flags override nothing set in it
	sweepParallel   int      // Max concurrent runs; 0 = fully parallel
)

// sweepCmd runs one simulation per algorithm in parallel, then prints the
// aggregate reports. Arguments after "--" are forwarded verbatim to every
// spawned run.
var sweepCmd = &cobra.Command{
	Use:   "sweep [-- passthrough args...]",
	Short: "Run one simulation per algorithm in parallel and aggregate results",
	Run: func(cmd *cobra.Command, args []string) {
		var cfg *runner.Config
		if sweepConfigPath != "" {
			loaded, err := runner.LoadConfig(sweepConfigPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			cfg = loaded
			cfg.Passthrough = append(cfg.Passthrough, args...)
		} else {
			cfg = &runner.Config{
				OutDir:      sweepOutDir,
				Algorithms:  sweepAlgorithms,
				Command:     sweepCommand,
				Passthrough: args,
				MaxParallel: sweepParallel,
			}
		}

		results, err := runner.Run(context.Background(), cfg)
		if err != nil {
			logrus.Fatalf("sweep failed: %v", err)
		}
		for _, res := range results {
			if !res.OK() {
				logrus.Warnf("run %s did not complete cleanly; its rows will be missing below", res.Algorithm)
			}
		}

		printReports(cfg.OutDir, cfg.Algorithms)
	},
}

// printReports writes the three aggregate reports to stdout.
func printReports(outDir string, algorithms []string) {
	rows := runner.CollectFinalRows(outDir, algorithms)

	fmt.Println("# final results by algorithm")
	for _, line := range runner.SortedByAlgorithm(rows) {
		fmt.Println(line)
	}

	fmt.Println("# final results by performance")
	for _, line := range runner.SortedByScore(rows) {
		fmt.Println(line)
	}

	fmt.Println("# optional requests")
	sums := runner.CollectOptionalSummaries(outDir, algorithms)
	for _, line := range runner.FormatOptionalReport(sums) {
		fmt.Println(line)
	}
}

// defaultSweepAlgorithms lists every algorithm the bundled simulator knows.
func defaultSweepAlgorithms() []string {
	names := make([]string, len(sim.Algorithms))
	for i, a := range sim.Algorithms {
		names[i] = string(a)
	}
	return names
}

func init() {
	sweepCmd.Flags().StringVar(&sweepOutDir, "outdir", "results", "Results root directory")
	sweepCmd.Flags().StringSliceVar(&sweepAlgorithms, "algorithms", defaultSweepAlgorithms(), "Algorithm identifiers to sweep")
	sweepCmd.Flags().StringArrayVar(&sweepCommand, "command", nil, "Simulation command argv prefix (repeat per token); default re-invokes this binary's run subcommand")
	sweepCmd.Flags().StringVar(&sweepConfigPath, "config", "", "Sweep config YAML (overrides the other flags)")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", 0, "Max concurrent runs (0 = fully parallel)")

	rootCmd.AddCommand(sweepCmd)
}
