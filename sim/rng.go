package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration MUST
// produce identical results.
type SimulationKey uint64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemChurn drives renewal-process sampling.
	SubsystemChurn = "churn"

	// SubsystemProtocol drives peer selection and protocol coin flips.
	SubsystemProtocol = "protocol"

	// SubsystemTopology drives random graph generation.
	SubsystemTopology = "topology"
)

// SubsystemNode returns the subsystem name for node N.
func SubsystemNode(id int) string {
	return fmt.Sprintf("node_%d", id)
}

// SubsystemTrial returns the subsystem name for trial N of an experiment row.
func SubsystemTrial(id int) string {
	return fmt.Sprintf("trial_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Each subsystem gets a PCG stream seeded with (masterSeed, fnv1a64(name)).
// The returned *rand.Rand also satisfies rand.Source, so it can be handed to
// gonum distributions as their Src.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewPCG(uint64(p.key), fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Derive returns a child key for the named subsystem, used to give each
// independent run of an experiment its own PartitionedRNG.
func (p *PartitionedRNG) Derive(name string) SimulationKey {
	return SimulationKey(uint64(p.key) ^ fnv1a64(name))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
