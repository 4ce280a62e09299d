// Wires one complete simulation run: kernel, load balancer, replicas, and
// clients, driven by a scenario.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ExperimentConfig holds everything needed for one simulation run.
type ExperimentConfig struct {
	Algorithm     Algorithm
	OutputDir     string
	Seed          int64
	Replicas      int
	ControlPeriod float64
	ThinkTime     float64 // mean think time of closed-loop clients
	Replica       ReplicaConfig
	Scenario      *Scenario
}

// Experiment is one assembled simulation run.
type Experiment struct {
	cfg      ExperimentConfig
	kernel   *Kernel
	lb       *LoadBalancer
	replicas []*Replica
	open     *OpenLoopClient
	closed   []*ClosedLoopClient
	rng      *PartitionedRNG
}

// NewExperiment validates the configuration and builds the simulation
// entities. The kernel's output streams are rooted at cfg.OutputDir.
func NewExperiment(cfg ExperimentConfig) (*Experiment, error) {
	if _, err := ParseAlgorithm(string(cfg.Algorithm)); err != nil {
		return nil, err
	}
	if cfg.Replicas <= 0 {
		return nil, fmt.Errorf("replicas must be positive, got %d", cfg.Replicas)
	}
	if err := cfg.Replica.Validate(); err != nil {
		return nil, fmt.Errorf("replica config: %w", err)
	}
	if cfg.Scenario == nil {
		return nil, fmt.Errorf("no scenario configured")
	}
	if err := cfg.Scenario.Validate(); err != nil {
		return nil, err
	}
	if cfg.ControlPeriod <= 0 {
		cfg.ControlPeriod = 1
	}
	if cfg.ThinkTime <= 0 {
		cfg.ThinkTime = 1
	}

	e := &Experiment{
		cfg:    cfg,
		kernel: NewKernel(cfg.OutputDir),
		rng:    NewPartitionedRNG(cfg.Seed),
	}

	e.lb = NewLoadBalancer(e.kernel, e.rng.ForSubsystem(SubsystemLoadBalancer), cfg.Algorithm, cfg.ControlPeriod)
	for i := 0; i < cfg.Replicas; i++ {
		r := NewReplica(e.kernel, i, e.rng.ForSubsystem(SubsystemReplica(i)), cfg.Replica)
		e.replicas = append(e.replicas, r)
		e.lb.AddBackend(r)
	}

	if cfg.Algorithm == AlgorithmWeightedRR {
		// weight each backend by its optional-content service rate
		weights := make([]float64, len(e.replicas))
		for i, r := range e.replicas {
			weights[i] = 1 / r.Config.TimeOptional.Mean
		}
		if err := e.lb.SetWeights(weights); err != nil {
			return nil, err
		}
	}

	e.open = NewOpenLoopClient(e.kernel, e.rng.ForSubsystem(SubsystemClients), e.lb)
	return e, nil
}

// Run schedules the scenario steps, drains the event queue up to the
// scenario's end, and returns the final results. Output files are flushed
// before returning.
func (e *Experiment) Run() (FinalResults, error) {
	for _, step := range e.cfg.Scenario.Steps {
		step := step
		e.kernel.Add(step.At, func() { e.applyStep(step) })
	}

	logrus.Infof("running %s for %gs with %d replicas (seed %d)",
		e.cfg.Algorithm, e.cfg.Scenario.EndOfSimulation, e.cfg.Replicas, e.cfg.Seed)
	e.kernel.Run(e.cfg.Scenario.EndOfSimulation)

	responseTimes := append([]float64(nil), e.open.Stats.ResponseTimes...)
	withOptional := e.open.Stats.CompletedWithOptional
	for _, c := range e.closed {
		responseTimes = append(responseTimes, c.Stats.ResponseTimes...)
		withOptional += c.Stats.CompletedWithOptional
	}

	fr := ComputeFinalResults(string(e.cfg.Algorithm), responseTimes, withOptional)
	if err := e.kernel.Output("final-results", fr.CSVRow()); err != nil {
		return fr, err
	}
	if err := e.kernel.Close(); err != nil {
		return fr, err
	}
	return fr, nil
}

func (e *Experiment) applyStep(step ScenarioStep) {
	switch {
	case step.SetRate != nil:
		logrus.Debugf("[t=%g] set rate to %g", e.kernel.Now(), *step.SetRate)
		e.open.SetRate(*step.SetRate)
	case step.AddClients != nil:
		for i := 0; i < *step.AddClients; i++ {
			id := len(e.closed)
			e.closed = append(e.closed,
				NewClosedLoopClient(e.kernel, e.rng.ForSubsystem(SubsystemClients), e.lb, id, e.cfg.ThinkTime))
		}
	case step.DelClients != nil:
		for i := 0; i < *step.DelClients && len(e.closed) > 0; i++ {
			// deactivated clients stay in the slice so their stats survive
			for j := len(e.closed) - 1; j >= 0; j-- {
				if e.closed[j].active {
					e.closed[j].Deactivate()
					break
				}
			}
		}
	case step.ChangeServiceTime != nil:
		ch := step.ChangeServiceTime
		if ch.Replica < 0 || ch.Replica >= len(e.replicas) {
			logrus.Warnf("[t=%g] change_service_time: no replica %d", e.kernel.Now(), ch.Replica)
			return
		}
		r := e.replicas[ch.Replica]
		r.Config.TimeOptional = ServiceTime{Mean: ch.OptionalMean, Stdev: ch.OptionalStdev}
		r.Config.TimeMandatory = ServiceTime{Mean: ch.MandatoryMean, Stdev: ch.MandatoryStdev}
	}
}
