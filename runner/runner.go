// Fan-out/fan-in orchestration of per-algorithm simulation processes: one
// subprocess per algorithm identifier, all in parallel, joined at a single
// barrier before any aggregation reads their output.

package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunResult captures the outcome of one spawned simulation run. Captured
// for the operator's benefit only: a failed run never fails the sweep, it
// just leaves a hole in the aggregate reports.
type RunResult struct {
	Algorithm    string
	InvocationID string
	OutDir       string
	ExitCode     int
	Err          error
	Duration     time.Duration
	Stdout       string
	Stderr       string
}

// OK reports whether the run exited cleanly.
func (r RunResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Run executes the sweep: create every algorithm's output directory, spawn
// one simulation process per algorithm, wait for all of them, and return
// the per-run results in algorithm order.
//
// Directory-creation failure is the only fatal error. Individual run
// failures are recorded in the returned results and logged, never
// propagated: aggregation downstream simply skips their missing output.
func Run(ctx context.Context, cfg *Config) ([]RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	command := cfg.Command
	if len(command) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own executable: %w", err)
		}
		command = []string{self, "run"}
	}

	// phase 1: idempotent directory creation, before any process starts
	for _, alg := range cfg.Algorithms {
		dir := AlgorithmDir(cfg.OutDir, alg)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}

	// phase 2: full-parallel fan-out, one process per algorithm
	results := make([]RunResult, len(cfg.Algorithms))
	eg, egCtx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		eg.SetLimit(cfg.MaxParallel)
	}
	for i, alg := range cfg.Algorithms {
		i, alg := i, alg
		eg.Go(func() error {
			results[i] = spawn(egCtx, command, cfg, alg)
			return nil
		})
	}

	// phase 3: the barrier; aggregation must not read before this returns
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func spawn(ctx context.Context, command []string, cfg *Config, alg string) RunResult {
	res := RunResult{
		Algorithm:    alg,
		InvocationID: uuid.NewString(),
		OutDir:       AlgorithmDir(cfg.OutDir, alg),
	}

	argv := append([]string{}, command...)
	argv = append(argv, "--algorithm", alg, "--outdir", res.OutDir)
	argv = append(argv, cfg.Passthrough...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Infof("[%s] starting %s: %v", res.InvocationID, alg, argv)
	start := time.Now()
	res.Err = cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if res.OK() {
		logrus.Infof("[%s] %s finished in %s", res.InvocationID, alg, res.Duration)
	} else {
		logrus.Warnf("[%s] %s failed after %s (exit %d): %v; stderr: %s",
			res.InvocationID, alg, res.Duration, res.ExitCode, res.Err, res.Stderr)
	}
	return res
}

// AlgorithmDir returns the output directory owned by one algorithm's run.
func AlgorithmDir(outDir, algorithm string) string {
	return filepath.Join(outDir, algorithm)
}
