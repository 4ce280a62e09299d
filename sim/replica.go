// Implements the replica server model: processor-sharing with a fixed time
// slice over an unbounded number of concurrent requests, plus the per-replica
// brownout controller that drives the dimmer from observed latencies.

package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// ServiceTime is a normal service-time distribution (mean, standard
// deviation). Draws are clamped at zero.
type ServiceTime struct {
	Mean  float64
	Stdev float64
}

// ReplicaConfig holds the tunables of one replica.
type ReplicaConfig struct {
	TimeSlice     float64     // scheduler quantum; longer requests observe context switching
	TimeOptional  ServiceTime // service time with optional content
	TimeMandatory ServiceTime // service time without optional content
	ReportPeriod  float64     // how often to report metrics
	Setpoint      float64     // response-time target for the brownout controller
	DimmerGain    float64     // controller gain; 0 disables dimmer adaptation
	InitialDimmer float64
}

// DefaultReplicaConfig returns the stock replica model parameters.
func DefaultReplicaConfig() ReplicaConfig {
	return ReplicaConfig{
		TimeSlice:     0.01,
		TimeOptional:  ServiceTime{Mean: 0.07, Stdev: 0.01},
		TimeMandatory: ServiceTime{Mean: 0.00067, Stdev: 0.0001},
		ReportPeriod:  1,
		Setpoint:      1,
		DimmerGain:    0.25,
		InitialDimmer: 1,
	}
}

// Validate checks the replica model parameters. A non-positive time slice
// would leave the scheduler spinning at a single timestamp, and a
// non-positive optional service-time mean breaks the weighted-RR weight
// derivation, so both are rejected up front.
func (cfg ReplicaConfig) Validate() error {
	if cfg.TimeSlice <= 0 {
		return fmt.Errorf("time slice must be positive, got %v", cfg.TimeSlice)
	}
	if cfg.ReportPeriod <= 0 {
		return fmt.Errorf("report period must be positive, got %v", cfg.ReportPeriod)
	}
	if cfg.TimeOptional.Mean <= 0 {
		return fmt.Errorf("optional service-time mean must be positive, got %v", cfg.TimeOptional.Mean)
	}
	if cfg.TimeMandatory.Mean < 0 {
		return fmt.Errorf("mandatory service-time mean must not be negative, got %v", cfg.TimeMandatory.Mean)
	}
	if cfg.TimeOptional.Stdev < 0 || cfg.TimeMandatory.Stdev < 0 {
		return fmt.Errorf("service-time stdev must not be negative")
	}
	return nil
}

// Replica simulates one backend server. The scheduling model is
// processor-sharing approximated by round-robin with a fixed time slice;
// there must be at most one pending schedule/complete event at a time.
type Replica struct {
	Name   string
	Config ReplicaConfig

	// Dimmer is the probability that a routed request carries optional
	// content. Adjusted by the report loop when DimmerGain > 0.
	Dimmer float64

	// Latency summary of the last report period, consumed by the load
	// balancer's control loop.
	LastAvgLatency float64
	LastMaxLatency float64

	kernel *Kernel
	rng    *rand.Rand

	active          []*Request // round-robin run queue; head is next to run
	latestLatencies []float64

	// utilization accounting
	activeTime     float64
	activeStarted  float64
	busy           bool
	lastActiveTime float64
}

// NewReplica attaches a replica to the kernel and starts its report loop.
func NewReplica(k *Kernel, id int, rng *rand.Rand, cfg ReplicaConfig) *Replica {
	r := &Replica{
		Name:   fmt.Sprintf("server%d", id),
		Config: cfg,
		Dimmer: cfg.InitialDimmer,
		kernel: k,
		rng:    rng,
	}
	r.runReportLoop()
	return r
}

// QueueLength returns the number of requests currently being served.
// The SQF load-balancing algorithm keys on this.
func (r *Replica) QueueLength() int {
	return len(r.active)
}

// ActiveTime computes the simulated time this replica has been busy. The
// value is derived lazily instead of being updated at every context switch.
func (r *Replica) ActiveTime() float64 {
	ret := r.activeTime
	if r.busy {
		ret += r.kernel.Now() - r.activeStarted
	}
	return ret
}

// Serve accepts a request for execution. When the request completes,
// req.OnReply is invoked with the departure time filled in.
func (r *Replica) Serve(req *Request) {
	// activate the scheduler if it is idle
	if len(r.active) == 0 {
		r.kernel.Add(0, r.scheduleNext)
	}
	req.Arrival = r.kernel.Now()
	req.remaining = r.drawServiceTime(req.WithOptional)
	r.active = append(r.active, req)
}

func (r *Replica) drawServiceTime(withOptional bool) float64 {
	st := r.Config.TimeMandatory
	if withOptional {
		st = r.Config.TimeOptional
	}
	return math.Max(r.rng.NormFloat64()*st.Stdev+st.Mean, 0)
}

// scheduleNext is the context-switch point of the processor-sharing model.
// It runs when the run queue transitions from empty, when a quantum expires,
// and after each completion while requests remain.
func (r *Replica) scheduleNext() {
	req := r.active[0]
	r.active = r.active[1:]

	if !r.busy {
		r.busy = true
		r.activeStarted = r.kernel.Now()
	}

	quantum := math.Min(r.Config.TimeSlice, req.remaining)
	req.remaining -= quantum

	if req.remaining == 0 {
		// leave it at the front; onCompleted pops it
		r.active = append([]*Request{req}, r.active...)
		r.kernel.Add(quantum, r.onCompleted)
	} else {
		// preempted: back of the queue for round-robin
		r.active = append(r.active, req)
		r.kernel.Add(quantum, r.scheduleNext)
	}
}

func (r *Replica) onCompleted() {
	r.activeTime += r.kernel.Now() - r.activeStarted
	r.busy = false

	req := r.active[0]
	r.active = r.active[1:]

	req.Departure = r.kernel.Now()
	r.latestLatencies = append(r.latestLatencies, req.Departure-req.Arrival)
	if req.OnReply != nil {
		req.OnReply(req)
	}

	if len(r.active) > 0 {
		r.scheduleNext()
	}
}

// runReportLoop periodically reports utilization and latency, updates the
// dimmer, and re-arms itself.
func (r *Replica) runReportLoop() {
	utilization := (r.ActiveTime() - r.lastActiveTime) / r.Config.ReportPeriod
	r.lastActiveTime = r.ActiveTime()

	r.LastAvgLatency = avgOrZero(r.latestLatencies)
	r.LastMaxLatency = maxOrZero(r.latestLatencies)

	// brownout control: shed optional content when the worst latency of the
	// period overshoots the setpoint, restore it when there is headroom
	if r.Config.DimmerGain > 0 {
		r.Dimmer += r.Config.DimmerGain * (r.Config.Setpoint - r.LastMaxLatency)
		r.Dimmer = math.Min(math.Max(r.Dimmer, 0), 1)
	}

	r.kernel.Output(r.Name, fmt.Sprintf("%g,%g,%g,%g,%g",
		r.kernel.Now(), r.LastAvgLatency, r.LastMaxLatency, utilization, r.Dimmer))

	r.latestLatencies = nil
	r.kernel.Add(r.Config.ReportPeriod, r.runReportLoop)
}

func avgOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOrZero(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
