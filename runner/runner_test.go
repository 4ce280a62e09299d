package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test: it is the fake simulator the runner
// tests spawn. It understands the runner's "--algorithm X --outdir Y"
// contract plus a few behavior-steering passthrough flags.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	var algorithm, outDir, behavior string
	var delay time.Duration
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "--algorithm":
			algorithm = args[i+1]
		case "--outdir":
			outDir = args[i+1]
		case "--behavior":
			behavior = args[i+1]
		case "--delay":
			delay, _ = time.ParseDuration(args[i+1])
		}
	}
	time.Sleep(delay)

	if behavior == "fail" || (behavior == "fail-"+algorithm) {
		fmt.Fprintln(os.Stderr, "simulated crash")
		os.Exit(3)
	}

	score := 10 * (int64(algorithm[0]) - int64('A') + 1) // A -> 10, B -> 20, ...
	final := fmt.Sprintf("%s,%d\n", algorithm, score)
	if err := os.WriteFile(filepath.Join(outDir, FinalResultsFile), []byte(final), 0o644); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

// helperConfig builds a sweep config whose runs re-invoke this test binary
// as the fake simulator.
func helperConfig(t *testing.T, algorithms []string, passthrough ...string) *Config {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return &Config{
		OutDir:      filepath.Join(t.TempDir(), "results"),
		Algorithms:  algorithms,
		Command:     []string{os.Args[0], "-test.run=TestHelperProcess$", "--"},
		Passthrough: passthrough,
	}
}

func TestRun_CreatesDirectoryPerAlgorithm(t *testing.T) {
	cfg := helperConfig(t, []string{"A", "B", "C"})

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	for _, alg := range cfg.Algorithms {
		info, err := os.Stat(AlgorithmDir(cfg.OutDir, alg))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestRun_IsIdempotentOverDirectories(t *testing.T) {
	cfg := helperConfig(t, []string{"A", "B"})

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	_, err = Run(context.Background(), cfg)
	require.NoError(t, err, "re-running over existing directories must not fail")
}

func TestRun_BarrierBeforeAggregation(t *testing.T) {
	// GIVEN runs that each take a noticeable time to produce output
	cfg := helperConfig(t, []string{"A", "B", "C"}, "--delay", "100ms")

	// WHEN Run returns
	start := time.Now()
	results, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// THEN every run has terminated and written its file: the barrier held
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.True(t, res.OK(), "run %s: %v", res.Algorithm, res.Err)
		assert.FileExists(t, filepath.Join(res.OutDir, FinalResultsFile))
	}
}

func TestRun_RunsInParallel(t *testing.T) {
	// four 200ms runs, fully parallel, must take well under 4x200ms
	cfg := helperConfig(t, []string{"A", "B", "C", "D"}, "--delay", "200ms")

	start := time.Now()
	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 700*time.Millisecond)
}

func TestRun_FailedRunIsCapturedNotPropagated(t *testing.T) {
	cfg := helperConfig(t, []string{"A", "B"}, "--behavior", "fail-B")

	results, err := Run(context.Background(), cfg)
	require.NoError(t, err, "a failed run must not fail the sweep")
	require.Len(t, results, 2)

	byAlg := map[string]RunResult{}
	for _, res := range results {
		byAlg[res.Algorithm] = res
	}
	assert.True(t, byAlg["A"].OK())
	assert.False(t, byAlg["B"].OK())
	assert.Equal(t, 3, byAlg["B"].ExitCode)
	assert.Contains(t, byAlg["B"].Stderr, "simulated crash")
	assert.NotEmpty(t, byAlg["B"].InvocationID)

	// the failed run's row is simply missing from aggregation
	rows := CollectFinalRows(cfg.OutDir, cfg.Algorithms)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Algorithm)
}

func TestRun_ResultsKeepAlgorithmOrder(t *testing.T) {
	cfg := helperConfig(t, []string{"C", "A", "B"})

	results, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, alg := range cfg.Algorithms {
		assert.Equal(t, alg, results[i].Algorithm)
	}
}

func TestRun_MaxParallelBoundsConcurrency(t *testing.T) {
	cfg := helperConfig(t, []string{"A", "B"}, "--delay", "150ms")
	cfg.MaxParallel = 1

	start := time.Now()
	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond,
		"with parallelism 1 the runs must serialize")
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	_, err := Run(context.Background(), &Config{})
	assert.Error(t, err)
}
