// Implements the load balancer: algorithm selection, request routing, and
// the periodic control loop that emits the sim-lb.csv trace.

package sim

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
)

// Algorithm names one load-balancing policy.
type Algorithm string

const (
	AlgorithmRandom     Algorithm = "random"
	AlgorithmRoundRobin Algorithm = "RR"
	AlgorithmWeightedRR Algorithm = "weighted-RR"
	AlgorithmSQF        Algorithm = "SQF"
)

// Algorithms lists every supported policy, in the order used as sweep default.
var Algorithms = []Algorithm{
	AlgorithmWeightedRR,
	AlgorithmSQF,
	AlgorithmRoundRobin,
	AlgorithmRandom,
}

// ParseAlgorithm validates an algorithm identifier.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == s {
			return a, nil
		}
	}
	names := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		names[i] = string(a)
	}
	return "", fmt.Errorf("unsupported algorithm %q (supported: %s)", s, strings.Join(names, " "))
}

// LoadBalancer routes requests to backend replicas according to the
// configured algorithm and periodically reports cluster state.
type LoadBalancer struct {
	Algorithm     Algorithm
	ControlPeriod float64

	kernel *Kernel
	rng    *rand.Rand

	backends []*Replica
	weights  []float64 // weighted-RR weights, normalized
	credits  []float64 // smooth weighted round-robin state
	rrIndex  int

	// cumulative counters; the last sim-lb.csv row carries the totals
	totalRequests    int64
	optionalRequests int64

	// requests routed per backend during the current control period,
	// reported as effective weights
	periodRouted []int64
}

// NewLoadBalancer creates a load balancer and starts its control loop.
func NewLoadBalancer(k *Kernel, rng *rand.Rand, algorithm Algorithm, controlPeriod float64) *LoadBalancer {
	lb := &LoadBalancer{
		Algorithm:     algorithm,
		ControlPeriod: controlPeriod,
		kernel:        k,
		rng:           rng,
	}
	lb.runControlLoop()
	return lb
}

// AddBackend registers a replica with an initial weight of 1/n after
// renormalization.
func (lb *LoadBalancer) AddBackend(r *Replica) {
	lb.backends = append(lb.backends, r)
	lb.periodRouted = append(lb.periodRouted, 0)
	n := len(lb.backends)
	lb.weights = make([]float64, n)
	lb.credits = make([]float64, n)
	for i := range lb.weights {
		lb.weights[i] = 1 / float64(n)
	}
}

// SetWeights replaces the weighted-RR weights. The weights must be positive
// and are normalized to sum to 1.
func (lb *LoadBalancer) SetWeights(weights []float64) error {
	if len(weights) != len(lb.backends) {
		return fmt.Errorf("got %d weights for %d backends", len(weights), len(lb.backends))
	}
	var sum float64
	for _, w := range weights {
		if w <= 0 {
			return fmt.Errorf("weights must be positive, got %v", w)
		}
		sum += w
	}
	lb.weights = make([]float64, len(weights))
	for i, w := range weights {
		lb.weights[i] = w / sum
	}
	lb.credits = make([]float64, len(weights))
	return nil
}

// Route picks a backend for the request, stamps the optional-content
// decision from that backend's dimmer, and hands the request over.
func (lb *LoadBalancer) Route(req *Request) {
	if len(lb.backends) == 0 {
		panic("Route: no backends registered")
	}
	i := lb.pickBackend()
	backend := lb.backends[i]

	req.WithOptional = lb.rng.Float64() < backend.Dimmer

	lb.totalRequests++
	if req.WithOptional {
		lb.optionalRequests++
	}
	lb.periodRouted[i]++

	logrus.Debugf("routing %s to %s (optional=%v)", req.ID, backend.Name, req.WithOptional)
	backend.Serve(req)
}

func (lb *LoadBalancer) pickBackend() int {
	switch lb.Algorithm {
	case AlgorithmRandom:
		return lb.rng.Intn(len(lb.backends))
	case AlgorithmRoundRobin:
		i := lb.rrIndex
		lb.rrIndex = (lb.rrIndex + 1) % len(lb.backends)
		return i
	case AlgorithmWeightedRR:
		// smooth weighted round-robin: accrue credit by weight, run the
		// backend with the most credit, then charge it one unit
		best := 0
		for i := range lb.backends {
			lb.credits[i] += lb.weights[i]
			if lb.credits[i] > lb.credits[best] {
				best = i
			}
		}
		lb.credits[best]--
		return best
	case AlgorithmSQF:
		return lb.shortestQueue()
	default:
		panic(fmt.Sprintf("pickBackend: unknown algorithm %q", lb.Algorithm))
	}
}

func (lb *LoadBalancer) shortestQueue() int {
	best := 0
	for i, b := range lb.backends {
		if b.QueueLength() < lb.backends[best].QueueLength() {
			best = i
		}
	}
	return best
}

// runControlLoop emits one sim-lb.csv row per control period:
//
//	time, weight[0..R), dimmer[0..R), avgLatency[0..R), maxLatency[0..R),
//	totalRequests, optionalRequests, effectiveWeight[0..R)
//
// With the default R=5 replicas, totalRequests and optionalRequests land at
// 1-indexed columns 22 and 23, which the sweep's extended report consumes.
func (lb *LoadBalancer) runControlLoop() {
	if len(lb.backends) > 0 {
		var fields []string
		fields = append(fields, fmt.Sprintf("%g", lb.kernel.Now()))
		for _, w := range lb.weights {
			fields = append(fields, fmt.Sprintf("%g", w))
		}
		for _, b := range lb.backends {
			fields = append(fields, fmt.Sprintf("%g", b.Dimmer))
		}
		for _, b := range lb.backends {
			fields = append(fields, fmt.Sprintf("%g", b.LastAvgLatency))
		}
		for _, b := range lb.backends {
			fields = append(fields, fmt.Sprintf("%g", b.LastMaxLatency))
		}
		fields = append(fields, fmt.Sprintf("%d", lb.totalRequests))
		fields = append(fields, fmt.Sprintf("%d", lb.optionalRequests))

		var periodTotal int64
		for _, n := range lb.periodRouted {
			periodTotal += n
		}
		for i := range lb.periodRouted {
			ew := 0.0
			if periodTotal > 0 {
				ew = float64(lb.periodRouted[i]) / float64(periodTotal)
			}
			fields = append(fields, fmt.Sprintf("%g", ew))
			lb.periodRouted[i] = 0
		}

		lb.kernel.Output("lb", strings.Join(fields, ","))
	}

	lb.kernel.Add(lb.ControlPeriod, lb.runControlLoop)
}

// TotalRequests returns the cumulative number of routed requests.
func (lb *LoadBalancer) TotalRequests() int64 { return lb.totalRequests }

// OptionalRequests returns the cumulative number of requests routed with
// optional content.
func (lb *LoadBalancer) OptionalRequests() int64 { return lb.optionalRequests }
