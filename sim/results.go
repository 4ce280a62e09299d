// Final per-run results: the one-row summary each simulation writes to
// sim-final-results.csv and echoes to stdout.

package sim

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// FinalResults summarizes one simulation run. Field order mirrors the CSV
// row: the algorithm identifier comes first and the performance score
// (requests completed with optional content) second, so downstream sorts by
// field 1 (alphabetic) and field 2 (numeric, descending) are meaningful.
type FinalResults struct {
	Algorithm               string
	NumRequestsWithOptional int
	NumRequests             int
	OptionalRatio           float64
	AvgResponseTime         float64
	P95ResponseTime         float64
	P99ResponseTime         float64
	MaxResponseTime         float64
	StddevResponseTime      float64
}

// ComputeFinalResults derives the run summary from the collected response
// times. An empty run yields all-zero statistics rather than NaNs so the
// CSV stays numerically sortable.
func ComputeFinalResults(algorithm string, responseTimes []float64, withOptional int) FinalResults {
	fr := FinalResults{
		Algorithm:               algorithm,
		NumRequestsWithOptional: withOptional,
		NumRequests:             len(responseTimes),
	}
	if len(responseTimes) == 0 {
		return fr
	}

	sorted := append([]float64(nil), responseTimes...)
	sort.Float64s(sorted)

	fr.OptionalRatio = float64(withOptional) / float64(len(responseTimes))
	fr.AvgResponseTime = stat.Mean(sorted, nil)
	fr.P95ResponseTime = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	fr.P99ResponseTime = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	fr.MaxResponseTime = sorted[len(sorted)-1]
	fr.StddevResponseTime = stat.StdDev(sorted, nil)
	return fr
}

// csvHeader lists the column names of the final-results row.
var csvHeader = []string{
	"loadBalancingAlgorithm",
	"numRequestsWithOptional",
	"numRequests",
	"optionalRatio",
	"avgResponseTime",
	"p95ResponseTime",
	"p99ResponseTime",
	"maxResponseTime",
	"stddevResponseTime",
}

// CSVHeader returns the comma-joined column names. Printed to stdout only;
// the CSV file holds the value row alone so aggregate sorting stays purely
// numeric.
func CSVHeader() string {
	return strings.Join(csvHeader, ",")
}

// CSVRow renders the summary as one comma-delimited record.
func (fr FinalResults) CSVRow() string {
	return fmt.Sprintf("%s,%d,%d,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f",
		fr.Algorithm,
		fr.NumRequestsWithOptional,
		fr.NumRequests,
		fr.OptionalRatio,
		fr.AvgResponseTime,
		fr.P95ResponseTime,
		fr.P99ResponseTime,
		fr.MaxResponseTime,
		fr.StddevResponseTime)
}
