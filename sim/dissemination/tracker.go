package dissemination

import (
	"fmt"

	"github.com/inference-sim/gossip-sim/sim/topology"
)

// TrackOutcome classifies a message against a node's neighborhood.
type TrackOutcome int

const (
	// NoIntersection: no admitted neighbor is a destination and the
	// originator is not a neighbor either. Destination neighbors that admit
	// rejects count as absent, so re-tracking a message already queued for
	// every destination neighbor also lands here.
	NoIntersection TrackOutcome = iota
	// OriginatorOnly: the only overlap with the neighborhood is the originator.
	OriginatorOnly
	// Forward: at least one admitted neighbor is a destination.
	Forward
)

func (o TrackOutcome) String() string {
	switch o {
	case NoIntersection:
		return "no_intersection"
	case OriginatorOnly:
		return "originator_only"
	case Forward:
		return "forward"
	default:
		return fmt.Sprintf("TrackOutcome(%d)", int(o))
	}
}

// DestinationTracker counts, per neighbor, how many pending messages target
// it. Counts change incrementally and are never recomputed.
type DestinationTracker struct {
	g      topology.Graph
	node   int
	counts map[int]int
	total  int
}

// NewDestinationTracker creates an empty tracker for node.
func NewDestinationTracker(g topology.Graph, node int) *DestinationTracker {
	return &DestinationTracker{g: g, node: node, counts: make(map[int]int)}
}

// Track finds the neighbors that are destinations of m and pass admit, and
// counts one pending message for each of them when the outcome is Forward.
// Targets come back in neighbor order. Outcomes other than Forward do not
// tell a neighborhood without destinations apart from one whose
// destinations were all rejected by admit.
func (t *DestinationTracker) Track(m *Message, admit func(neighbor int) bool) (TrackOutcome, []int) {
	var targets []int
	originatorIsNeighbor := false
	for i := 0; i < t.g.Degree(t.node); i++ {
		nb := t.g.Neighbor(t.node, i)
		if nb == m.Originator() {
			originatorIsNeighbor = true
			continue
		}
		if m.IsDestination(t.g, nb) && admit(nb) {
			targets = append(targets, nb)
		}
	}
	if len(targets) == 0 {
		if originatorIsNeighbor {
			return OriginatorOnly, nil
		}
		return NoIntersection, nil
	}
	for _, nb := range targets {
		t.counts[nb]++
		t.total++
	}
	return Forward, targets
}

// Retain counts one more pending message for peer.
func (t *DestinationTracker) Retain(peer int) {
	t.counts[peer]++
	t.total++
}

// Release removes one pending message for peer. Panics on underflow.
func (t *DestinationTracker) Release(peer int) {
	c := t.counts[peer]
	if c <= 0 {
		panic(fmt.Sprintf("DestinationTracker(%d): release for %d with nothing pending", t.node, peer))
	}
	if c == 1 {
		delete(t.counts, peer)
	} else {
		t.counts[peer] = c - 1
	}
	t.total--
}

// Untrack releases every count held for peer and returns how many there were.
func (t *DestinationTracker) Untrack(peer int) int {
	c := t.counts[peer]
	delete(t.counts, peer)
	t.total -= c
	return c
}

// Count returns the number of pending messages for peer.
func (t *DestinationTracker) Count(peer int) int { return t.counts[peer] }

// CanSelect reports whether peer has anything pending.
func (t *DestinationTracker) CanSelect(peer int) bool { return t.counts[peer] > 0 }

// Total returns the number of pending (message, peer) pairs.
func (t *DestinationTracker) Total() int { return t.total }

// Peers returns how many neighbors have something pending.
func (t *DestinationTracker) Peers() int { return len(t.counts) }

// Reset drops every count.
func (t *DestinationTracker) Reset() {
	clear(t.counts)
	t.total = 0
}
