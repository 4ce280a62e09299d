// Aggregation of per-algorithm result files into the three sweep reports:
// final-result rows sorted by algorithm, the same rows sorted by performance
// score, and the fixed-width optional-requests report from the detail logs.

package runner

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// FinalResultsFile is the one-row run summary each simulation writes.
	FinalResultsFile = "sim-final-results.csv"
	// DetailLogFile is the per-control-period trace; only its last row is
	// consulted here.
	DetailLogFile = "sim-lb.csv"

	// 1-indexed columns of DetailLogFile holding the total and optional
	// request counts. External contract with the simulation process; with
	// the stock 5-replica cluster these are the two counters after the
	// per-replica latency columns.
	totalRequestsColumn    = 22
	optionalRequestsColumn = 23
)

// FinalRow is one final-results record read back from an algorithm's output
// directory.
type FinalRow struct {
	Line      string
	Algorithm string
	// Score is the numeric second field; NaN when missing or malformed.
	Score float64
}

// CollectFinalRows reads the final-results file of every listed algorithm.
// The directories are enumerated explicitly from the algorithm list, never
// globbed. Algorithms with a missing or empty file are omitted silently.
func CollectFinalRows(outDir string, algorithms []string) []FinalRow {
	var rows []FinalRow
	for _, alg := range algorithms {
		path := filepath.Join(AlgorithmDir(outDir, alg), FinalResultsFile)
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Debugf("skipping %s: %v", alg, err)
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			rows = append(rows, parseFinalRow(line))
		}
	}
	return rows
}

func parseFinalRow(line string) FinalRow {
	row := FinalRow{Line: line, Score: math.NaN()}
	fields := strings.Split(line, ",")
	row.Algorithm = strings.TrimSpace(fields[0])
	if len(fields) > 1 {
		if score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err == nil {
			row.Score = score
		} else {
			logrus.Debugf("unparseable score in row %q: %v", line, err)
		}
	}
	return row
}

// SortedByAlgorithm returns the rows' lines sorted lexicographically by
// full line; with the algorithm identifier in field 1 this sorts by
// algorithm first.
func SortedByAlgorithm(rows []FinalRow) []string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.Line
	}
	sort.Strings(lines)
	return lines
}

// SortedByScore returns the rows' lines sorted in descending numeric order
// of the second field. Rows with an unparseable score sort last; ties keep
// their input order.
func SortedByScore(rows []FinalRow) []string {
	sorted := append([]FinalRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Score, sorted[j].Score
		if math.IsNaN(sj) {
			return !math.IsNaN(si)
		}
		if math.IsNaN(si) {
			return false
		}
		return si > sj
	})
	lines := make([]string, len(sorted))
	for i, r := range sorted {
		lines[i] = r.Line
	}
	return lines
}

// OptionalSummary is one line of the extended report: the total and
// optional request counts from the last row of an algorithm's detail log.
type OptionalSummary struct {
	Algorithm        string
	TotalRequests    int64
	OptionalRequests int64
}

// CollectOptionalSummaries reads the last line of every listed algorithm's
// detail log and extracts the request counters, truncating any fractional
// part. Algorithms with missing, empty, or too-narrow logs are omitted.
func CollectOptionalSummaries(outDir string, algorithms []string) []OptionalSummary {
	var sums []OptionalSummary
	for _, alg := range algorithms {
		path := filepath.Join(AlgorithmDir(outDir, alg), DetailLogFile)
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Debugf("skipping %s: %v", alg, err)
			continue
		}
		line := lastNonEmptyLine(string(data))
		if line == "" {
			logrus.Debugf("skipping %s: empty detail log", alg)
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < optionalRequestsColumn {
			logrus.Debugf("skipping %s: detail log row has %d fields, want >= %d",
				alg, len(fields), optionalRequestsColumn)
			continue
		}
		total, err1 := parseCount(fields[totalRequestsColumn-1])
		optional, err2 := parseCount(fields[optionalRequestsColumn-1])
		if err1 != nil || err2 != nil {
			logrus.Debugf("skipping %s: unparseable counters %q %q",
				alg, fields[totalRequestsColumn-1], fields[optionalRequestsColumn-1])
			continue
		}
		sums = append(sums, OptionalSummary{
			Algorithm:        alg,
			TotalRequests:    total,
			OptionalRequests: optional,
		})
	}
	return sums
}

// parseCount reads an integer or float field, truncating toward zero.
func parseCount(field string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f)), nil
}

// FormatOptionalReport renders the extended report: fixed-width lines of
// algorithm name, total requests, and optional requests, sorted in
// descending order of the optional-requests count (stable on ties).
func FormatOptionalReport(sums []OptionalSummary) []string {
	sorted := append([]OptionalSummary(nil), sums...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OptionalRequests > sorted[j].OptionalRequests
	})
	lines := make([]string, len(sorted))
	for i, s := range sorted {
		lines[i] = fmt.Sprintf("%-24s %10d %10d", s.Algorithm, s.TotalRequests, s.OptionalRequests)
	}
	return lines
}

func lastNonEmptyLine(data string) string {
	lines := strings.Split(data, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
