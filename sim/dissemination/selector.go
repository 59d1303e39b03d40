package dissemination

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/inference-sim/gossip-sim/sim/topology"
)

// Selection is the result of a peer selection attempt.
type Selection int

const (
	// Selected means a peer was chosen.
	Selected Selection = iota
	// NoPeer means no neighbor passes the filter.
	NoPeer
	// NoLivePeer means eligible neighbors exist but all are down.
	NoLivePeer
	// SkipRound means the selector chose not to send this round.
	SkipRound
)

func (s Selection) String() string {
	switch s {
	case Selected:
		return "selected"
	case NoPeer:
		return "no_peer"
	case NoLivePeer:
		return "no_live_peer"
	case SkipRound:
		return "skip_round"
	default:
		return fmt.Sprintf("Selection(%d)", int(s))
	}
}

// Liveness reports node availability. *churn.ProcessSet implements it.
type Liveness interface {
	IsUp(node int) bool
}

// Selector picks the neighbor a node exchanges with this round. The filter
// tells which neighbors are worth selecting at all.
type Selector interface {
	Select(node int, filter func(peer int) bool) (int, Selection)
}

// eligible splits the filtered neighbors of node into the live ones and a
// flag telling whether any filtered neighbor was down.
func eligible(g topology.Graph, live Liveness, node int, filter func(int) bool, buf []int) ([]int, bool) {
	buf = buf[:0]
	down := false
	for i := 0; i < g.Degree(node); i++ {
		nb := g.Neighbor(node, i)
		if !filter(nb) {
			continue
		}
		if live.IsUp(nb) {
			buf = append(buf, nb)
		} else {
			down = true
		}
	}
	return buf, down
}

func noCandidate(down bool) (int, Selection) {
	if down {
		return -1, NoLivePeer
	}
	return -1, NoPeer
}

// RandomSelector picks uniformly among live eligible neighbors.
type RandomSelector struct {
	g    topology.Graph
	live Liveness
	rng  *rand.Rand
	buf  []int
}

func NewRandomSelector(g topology.Graph, live Liveness, rng *rand.Rand) *RandomSelector {
	return &RandomSelector{g: g, live: live, rng: rng}
}

func (s *RandomSelector) Select(node int, filter func(int) bool) (int, Selection) {
	var down bool
	s.buf, down = eligible(s.g, s.live, node, filter, s.buf)
	if len(s.buf) == 0 {
		return noCandidate(down)
	}
	return s.buf[s.rng.IntN(len(s.buf))], Selected
}

// CentralitySelector ranks live eligible neighbors by a centrality score and
// picks uniformly among the top ones. With psi >= 1 the top int(psi) are
// kept; with psi < 1 the top fraction psi (at least one), extended to
// include nodes tied with the last one kept.
type CentralitySelector struct {
	g      topology.Graph
	live   Liveness
	rng    *rand.Rand
	scores []float64
	psi    float64
	buf    []int
}

// NewCentralitySelector panics if psi is not positive or scores do not
// cover the graph.
func NewCentralitySelector(g topology.Graph, live Liveness, scores []float64, psi float64, rng *rand.Rand) *CentralitySelector {
	if psi <= 0 || math.IsNaN(psi) {
		panic(fmt.Sprintf("NewCentralitySelector: psi must be > 0, got %v", psi))
	}
	if len(scores) != g.Size() {
		panic(fmt.Sprintf("NewCentralitySelector: %d scores for %d nodes", len(scores), g.Size()))
	}
	return &CentralitySelector{g: g, live: live, rng: rng, scores: scores, psi: psi}
}

func (s *CentralitySelector) Select(node int, filter func(int) bool) (int, Selection) {
	var down bool
	s.buf, down = eligible(s.g, s.live, node, filter, s.buf)
	if len(s.buf) == 0 {
		return noCandidate(down)
	}
	// Highest score first, ties by node index.
	slices.SortFunc(s.buf, func(a, b int) int {
		if c := cmp.Compare(s.scores[b], s.scores[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	top := s.cut(s.buf)
	return s.buf[s.rng.IntN(top)], Selected
}

func (s *CentralitySelector) cut(ranked []int) int {
	if s.psi >= 1 {
		return min(len(ranked), int(s.psi))
	}
	top := max(1, int(math.Ceil(float64(len(ranked))*s.psi)))
	last := s.scores[ranked[top-1]]
	for top < len(ranked) && s.scores[ranked[top]] == last {
		top++
	}
	return top
}

// BalancingSelector caps a node's outbound rate: each round it sends with
// probability capacity, delegating the actual choice to an inner selector.
// NoPeer and NoLivePeer take precedence over SkipRound so idle protocols
// can still pause the runner.
type BalancingSelector struct {
	inner    Selector
	capacity float64
	rng      *rand.Rand
	skipped  int
}

// NewBalancingSelector panics unless 0 < capacity <= 1.
func NewBalancingSelector(inner Selector, capacity float64, rng *rand.Rand) *BalancingSelector {
	if capacity <= 0 || capacity > 1 || math.IsNaN(capacity) {
		panic(fmt.Sprintf("NewBalancingSelector: capacity must be in (0, 1], got %v", capacity))
	}
	return &BalancingSelector{inner: inner, capacity: capacity, rng: rng}
}

func (s *BalancingSelector) Select(node int, filter func(int) bool) (int, Selection) {
	peer, sel := s.inner.Select(node, filter)
	if sel != Selected {
		return peer, sel
	}
	if s.rng.Float64() >= s.capacity {
		s.skipped++
		return -1, SkipRound
	}
	return peer, Selected
}

// Skipped returns how many rounds were throttled.
func (s *BalancingSelector) Skipped() int { return s.skipped }

// SelectorSpec configures peer selection. Decoded from YAML.
type SelectorSpec struct {
	Type string `yaml:"type"`
	// Psi is the centrality cut for "centrality".
	Psi float64 `yaml:"psi,omitempty"`
	// Capacity is the send probability per round for "balancing".
	Capacity float64 `yaml:"capacity,omitempty"`
	// Inner is the selector wrapped by "balancing"; random when empty.
	Inner string `yaml:"inner,omitempty"`
}

var validSelectors = map[string]bool{
	"random":     true,
	"centrality": true,
	"balancing":  true,
}

// IsValidSelector reports whether name is a known selector type.
func IsValidSelector(name string) bool { return validSelectors[name] }

func selectorNames() string {
	names := make([]string, 0, len(validSelectors))
	for n := range validSelectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Validate checks the spec.
func (s *SelectorSpec) Validate() error {
	if !IsValidSelector(s.Type) {
		return fmt.Errorf("unknown selector %q; valid: %s", s.Type, selectorNames())
	}
	switch s.Type {
	case "centrality":
		if s.Psi <= 0 || math.IsNaN(s.Psi) {
			return fmt.Errorf("centrality selector psi must be > 0, got %v", s.Psi)
		}
	case "balancing":
		if s.Capacity <= 0 || s.Capacity > 1 || math.IsNaN(s.Capacity) {
			return fmt.Errorf("balancing selector capacity must be in (0, 1], got %v", s.Capacity)
		}
		if s.Inner != "" && s.Inner != "random" && s.Inner != "centrality" {
			return fmt.Errorf("balancing selector inner must be random or centrality, got %q", s.Inner)
		}
		if s.Inner == "centrality" && (s.Psi <= 0 || math.IsNaN(s.Psi)) {
			return fmt.Errorf("centrality selector psi must be > 0, got %v", s.Psi)
		}
	}
	return nil
}

// Build constructs the selector for one run. Betweenness is computed only
// when a centrality selector is requested.
func (s *SelectorSpec) Build(g *topology.Adjacency, live Liveness, rng *rand.Rand) (Selector, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	build := func(kind string) Selector {
		if kind == "centrality" {
			return NewCentralitySelector(g, live, topology.Betweenness(g), s.Psi, rng)
		}
		return NewRandomSelector(g, live, rng)
	}
	if s.Type == "balancing" {
		return NewBalancingSelector(build(s.Inner), s.Capacity, rng), nil
	}
	return build(s.Type), nil
}
