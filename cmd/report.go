package cmd

import (
	"github.com/spf13/cobra"
)

var (
	reportOutDir     string
	reportAlgorithms []string
)

// reportCmd re-runs only the aggregation phase over an existing results
// tree, without spawning any simulations.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate an existing results tree into the sweep reports",
	Run: func(cmd *cobra.Command, args []string) {
		printReports(reportOutDir, reportAlgorithms)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOutDir, "outdir", "results", "Results root directory")
	reportCmd.Flags().StringSliceVar(&reportAlgorithms, "algorithms", defaultSweepAlgorithms(), "Algorithm identifiers to aggregate")

	rootCmd.AddCommand(reportCmd)
}
