package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Subsystem names for PartitionedRNG. Each subsystem draws from its own
// deterministic stream so that, e.g., adding a replica never perturbs the
// client arrival sequence.
const (
	SubsystemClients      = "clients"
	SubsystemLoadBalancer = "loadbalancer"
)

// SubsystemReplica returns the RNG subsystem name for replica i.
func SubsystemReplica(i int) string {
	return fmt.Sprintf("replica_%d", i)
}

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName). The same subsystem name
// always returns the same *rand.Rand instance (cached).
//
// Thread-safety: NOT thread-safe. The simulation is single-threaded.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	derived := p.seed ^ int64(h.Sum64())
	rng := rand.New(rand.NewSource(derived))
	p.subsystems[name] = rng
	return rng
}
