package sim

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm_Known(t *testing.T) {
	for _, name := range []string{"random", "RR", "weighted-RR", "SQF"} {
		got, err := ParseAlgorithm(name)
		if err != nil {
			t.Errorf("ParseAlgorithm(%q): unexpected error %v", name, err)
		}
		if string(got) != name {
			t.Errorf("ParseAlgorithm(%q) = %q", name, got)
		}
	}
}

func TestAlgorithms_ListsEveryPolicy(t *testing.T) {
	assert.Equal(t, []Algorithm{
		AlgorithmWeightedRR,
		AlgorithmSQF,
		AlgorithmRoundRobin,
		AlgorithmRandom,
	}, Algorithms)
}

func TestParseAlgorithm_Unknown(t *testing.T) {
	if _, err := ParseAlgorithm("theta-diff"); err == nil {
		t.Error("expected error for unimplemented algorithm identifier")
	}
}

// lbFixture builds a load balancer with n idle replicas on a fresh kernel.
func lbFixture(t *testing.T, algorithm Algorithm, n int) (*Kernel, *LoadBalancer) {
	t.Helper()
	k := NewKernel(t.TempDir())
	lb := NewLoadBalancer(k, rand.New(rand.NewSource(7)), algorithm, 1)
	cfg := DefaultReplicaConfig()
	cfg.DimmerGain = 0
	for i := 0; i < n; i++ {
		lb.AddBackend(NewReplica(k, i, rand.New(rand.NewSource(int64(i))), cfg))
	}
	return k, lb
}

func TestLoadBalancer_RoundRobin_Cycles(t *testing.T) {
	_, lb := lbFixture(t, AlgorithmRoundRobin, 3)

	var picks []int
	for i := 0; i < 6; i++ {
		picks = append(picks, lb.pickBackend())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, picks)
}

func TestLoadBalancer_SQF_PicksShortestQueue(t *testing.T) {
	_, lb := lbFixture(t, AlgorithmSQF, 3)

	// load backends 0 and 1 with requests that never finish within the test
	lb.backends[0].Serve(&Request{ID: "x", WithOptional: true})
	lb.backends[0].Serve(&Request{ID: "y", WithOptional: true})
	lb.backends[1].Serve(&Request{ID: "z", WithOptional: true})

	assert.Equal(t, 2, lb.pickBackend(), "backend 2 has the empty queue")
}

func TestLoadBalancer_WeightedRR_FollowsWeights(t *testing.T) {
	_, lb := lbFixture(t, AlgorithmWeightedRR, 2)
	require.NoError(t, lb.SetWeights([]float64{3, 1}))

	counts := map[int]int{}
	for i := 0; i < 4; i++ {
		counts[lb.pickBackend()]++
	}
	// smooth weighted round-robin: 3 of every 4 picks hit the heavy backend
	assert.Equal(t, 3, counts[0])
	assert.Equal(t, 1, counts[1])
}

func TestLoadBalancer_SetWeights_Validation(t *testing.T) {
	_, lb := lbFixture(t, AlgorithmWeightedRR, 2)

	if err := lb.SetWeights([]float64{1, 2, 3}); err == nil {
		t.Error("expected error for wrong weight count")
	}
	if err := lb.SetWeights([]float64{1, 0}); err == nil {
		t.Error("expected error for non-positive weight")
	}
}

func TestLoadBalancer_Route_CountsOptionalRequests(t *testing.T) {
	_, lb := lbFixture(t, AlgorithmRoundRobin, 2)

	for i := 0; i < 50; i++ {
		lb.Route(&Request{ID: "r"})
	}

	assert.Equal(t, int64(50), lb.TotalRequests())
	// dimmers start at 1, so every request carries optional content
	assert.Equal(t, int64(50), lb.OptionalRequests())
}

func TestLoadBalancer_ControlLoop_RowLayout(t *testing.T) {
	// GIVEN the stock cluster size of 5 replicas
	dir := t.TempDir()
	k := NewKernel(dir)
	lb := NewLoadBalancer(k, rand.New(rand.NewSource(7)), AlgorithmRoundRobin, 1)
	cfg := DefaultReplicaConfig()
	cfg.DimmerGain = 0
	for i := 0; i < 5; i++ {
		lb.AddBackend(NewReplica(k, i, rand.New(rand.NewSource(int64(i))), cfg))
	}
	for i := 0; i < 7; i++ {
		lb.Route(&Request{ID: "r"})
	}

	// WHEN at least one control period elapses
	k.Run(2)
	require.NoError(t, k.Close())

	data, err := os.ReadFile(filepath.Join(dir, "sim-lb.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NotEmpty(t, lines)

	// THEN each row is 1 + 5R + 2 fields wide, with the request counters at
	// 1-indexed columns 22 and 23
	fields := strings.Split(lines[len(lines)-1], ",")
	require.Len(t, fields, 28)
	assert.Equal(t, "7", fields[21], "column 22 holds total requests")
	assert.Equal(t, "7", fields[22], "column 23 holds optional requests")
}
