package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/brownout-sim/brownout-sim/sim"
)

var (
	// CLI flags for a single simulation run
	runAlgorithm    string  // Load-balancing algorithm under test
	runOutDir       string  // Destination folder for results and logs
	runSeed         int64   // Master seed for all simulation RNG subsystems
	runReplicas     int     // Number of backend replicas
	runTimeSlice    float64 // Time slice of the replica scheduler
	runControlPd    float64 // Control period of the load balancer
	runThinkTime    float64 // Mean think time of closed-loop clients
	runSetpoint     float64 // Response-time setpoint of the brownout controller
	runDimmerGain   float64 // Gain of the brownout controller (0 disables)
	runScenarioPath string  // Scenario YAML; empty means the default steady scenario

	// replica service-time model
	runTimeYMean  float64 // Mean service time with optional content
	runTimeYStdev float64 // Stdev of service time with optional content
	runTimeNMean  float64 // Mean service time without optional content
	runTimeNStdev float64 // Stdev of service time without optional content
)

// runCmd executes one simulation for one algorithm.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one brownout load-balancer simulation",
	Run: func(cmd *cobra.Command, args []string) {
		algorithm, err := sim.ParseAlgorithm(runAlgorithm)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		scenario := sim.DefaultScenario()
		if runScenarioPath != "" {
			scenario, err = sim.LoadScenario(runScenarioPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		if err := os.MkdirAll(runOutDir, 0o755); err != nil {
			logrus.Fatalf("create outdir: %v", err)
		}

		replicaCfg := sim.DefaultReplicaConfig()
		replicaCfg.TimeSlice = runTimeSlice
		replicaCfg.TimeOptional = sim.ServiceTime{Mean: runTimeYMean, Stdev: runTimeYStdev}
		replicaCfg.TimeMandatory = sim.ServiceTime{Mean: runTimeNMean, Stdev: runTimeNStdev}
		replicaCfg.Setpoint = runSetpoint
		replicaCfg.DimmerGain = runDimmerGain

		exp, err := sim.NewExperiment(sim.ExperimentConfig{
			Algorithm:     algorithm,
			OutputDir:     runOutDir,
			Seed:          runSeed,
			Replicas:      runReplicas,
			ControlPeriod: runControlPd,
			ThinkTime:     runThinkTime,
			Replica:       replicaCfg,
			Scenario:      scenario,
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		startTime := time.Now()
		results, err := exp.Run()
		if err != nil {
			logrus.Fatalf("simulation failed: %v", err)
		}
		logrus.Infof("simulation finished in %s", time.Since(startTime))

		fmt.Println(sim.CSVHeader())
		fmt.Println(results.CSVRow())
	},
}

func init() {
	runCmd.Flags().StringVar(&runAlgorithm, "algorithm", string(sim.AlgorithmWeightedRR), "Load-balancing algorithm (weighted-RR, SQF, RR, random)")
	runCmd.Flags().StringVar(&runOutDir, "outdir", ".", "Destination folder for results and logs")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Master seed for the simulation RNG")
	runCmd.Flags().IntVar(&runReplicas, "replicas", 5, "Number of backend replicas")
	runCmd.Flags().Float64Var(&runTimeSlice, "time-slice", 0.01, "Time slice of the replica scheduler")
	runCmd.Flags().Float64Var(&runControlPd, "control-period", 1.0, "Control period of the load balancer")
	runCmd.Flags().Float64Var(&runThinkTime, "think-time", 1.0, "Mean think time of closed-loop clients")
	runCmd.Flags().Float64Var(&runSetpoint, "rc-setpoint", 1.0, "Response-time setpoint of the brownout controller")
	runCmd.Flags().Float64Var(&runDimmerGain, "dimmer-gain", 0.25, "Gain of the brownout controller (0 disables dimming)")
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "Scenario YAML file (default: steady 50 req/s for 100s)")

	runCmd.Flags().Float64Var(&runTimeYMean, "service-time-y", 0.07, "Mean service time with optional content")
	runCmd.Flags().Float64Var(&runTimeYStdev, "service-time-y-stdev", 0.01, "Stdev of service time with optional content")
	runCmd.Flags().Float64Var(&runTimeNMean, "service-time-n", 0.00067, "Mean service time without optional content")
	runCmd.Flags().Float64Var(&runTimeNStdev, "service-time-n-stdev", 0.0001, "Stdev of service time without optional content")

	rootCmd.AddCommand(runCmd)
}
