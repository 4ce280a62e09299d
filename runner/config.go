package runner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one sweep: which algorithms to run, where results go,
// and how to invoke the per-algorithm simulation process. It replaces the
// implicit working-directory and shell-globbing state of ad-hoc sweep
// scripts with an explicit value passed into Run.
type Config struct {
	// OutDir is the results root; each algorithm owns OutDir/<algorithm>/.
	OutDir string `yaml:"outdir"`

	// Algorithms is the ordered list of algorithm identifiers to sweep.
	Algorithms []string `yaml:"algorithms"`

	// Command is the argv prefix of the simulation process. The runner
	// appends "--algorithm <id> --outdir <dir>" plus Passthrough to it.
	// Empty means: re-invoke this binary's "run" subcommand.
	Command []string `yaml:"command,omitempty"`

	// Passthrough is forwarded verbatim to every spawned run.
	Passthrough []string `yaml:"passthrough,omitempty"`

	// MaxParallel bounds concurrent runs; 0 means fully parallel.
	MaxParallel int `yaml:"max_parallel,omitempty"`
}

// LoadConfig reads a sweep config from a YAML file and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sweep config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sweep config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks sweep config invariants.
func (cfg *Config) Validate() error {
	if cfg.OutDir == "" {
		return fmt.Errorf("outdir must not be empty")
	}
	if len(cfg.Algorithms) == 0 {
		return fmt.Errorf("at least one algorithm is required")
	}
	seen := make(map[string]bool, len(cfg.Algorithms))
	for _, alg := range cfg.Algorithms {
		if alg == "" {
			return fmt.Errorf("empty algorithm identifier")
		}
		if seen[alg] {
			return fmt.Errorf("duplicate algorithm %q", alg)
		}
		seen[alg] = true
	}
	if cfg.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	return nil
}
