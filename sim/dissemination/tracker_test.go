package dissemination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
)

func msg(originator, seq int, audience Audience) *Message {
	return &Message{ID: history.Key{Originator: originator, Sequence: seq}, Audience: audience}
}

func all(int) bool { return true }

// assertCountsMatchQueues checks that the incremental per-peer counts equal
// a scan of the queues.
func assertCountsMatchQueues(t *testing.T, g topology.Graph, node int, p *PendingSet) {
	t.Helper()
	total := 0
	for i := 0; i < g.Degree(node); i++ {
		nb := g.Neighbor(node, i)
		scanned := len(p.Messages(nb))
		assert.Equal(t, scanned, p.tracker.Count(nb), "count for peer %d", nb)
		assert.Equal(t, scanned > 0, p.tracker.CanSelect(nb), "can select %d", nb)
		total += scanned
	}
	assert.Equal(t, total, p.tracker.Total())
	assert.Equal(t, total, p.Len())
}

func TestDestinationTracker_Outcomes(t *testing.T) {
	// Star centered on 0 plus edge 1-2.
	g, err := topology.FromEdges(4, [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		node    int
		m       *Message
		admit   func(int) bool
		outcome TrackOutcome
		targets []int
	}{
		{"broadcast from hub reaches leaves", 1, msg(0, 1, Broadcast), all, Forward, []int{2}},
		{"only originator in neighborhood", 3, msg(0, 1, Broadcast), all, OriginatorOnly, nil},
		{"admit rejects everyone", 0, msg(1, 1, Broadcast), func(int) bool { return false }, OriginatorOnly, nil},
		{"friends of a leaf exclude non-friends", 0, msg(3, 1, Friends), all, OriginatorOnly, nil},
		{"friends of 1 seen from 0", 0, msg(1, 1, Friends), all, Forward, []int{2}},
		{"no overlap at all", 3, msg(1, 1, Broadcast), func(int) bool { return false }, NoIntersection, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewDestinationTracker(g, tc.node)
			outcome, targets := tr.Track(tc.m, tc.admit)
			assert.Equal(t, tc.outcome, outcome)
			assert.Equal(t, tc.targets, targets)
			assert.Equal(t, len(tc.targets), tr.Total())
		})
	}
}

func TestDestinationTracker_ReleaseUnderflowPanics(t *testing.T) {
	tr := NewDestinationTracker(topology.Ring(4), 0)
	assert.Panics(t, func() { tr.Release(1) })
}

func TestDestinationTracker_Untrack(t *testing.T) {
	tr := NewDestinationTracker(topology.Ring(4), 0)
	tr.Retain(1)
	tr.Retain(1)
	tr.Retain(3)

	assert.Equal(t, 2, tr.Untrack(1))
	assert.Equal(t, 0, tr.Count(1))
	assert.Equal(t, 1, tr.Total())
	assert.Equal(t, 1, tr.Peers())
}

func TestPendingSet_CountsMatchQueuesAfterEveryMutation(t *testing.T) {
	// GIVEN node 0 of a complete graph on 5 nodes
	g := topology.Complete(5)
	p := NewPendingSet(NewDestinationTracker(g, 0))
	m1, m2, m3 := msg(1, 1, Broadcast), msg(2, 1, Broadcast), msg(4, 7, Friends)

	steps := []struct {
		name string
		do   func()
	}{
		{"track m1", func() { p.Track(m1, all) }},
		{"track m1 again is idempotent", func() { p.Track(m1, all) }},
		{"track m2 except 3", func() { p.Track(m2, func(nb int) bool { return nb != 3 }) }},
		{"add m2 for 3", func() { assert.True(t, p.Add(3, m2)) }},
		{"add m2 for 3 twice", func() { assert.False(t, p.Add(3, m2)) }},
		{"track m3", func() { p.Track(m3, all) }},
		{"pop 2", func() { assert.Equal(t, m1, p.Pop(2)) }},
		{"remove m2 for 4", func() { assert.True(t, p.Remove(4, m2)) }},
		{"remove missing", func() { assert.False(t, p.Remove(4, m2)) }},
		{"pop 3 twice", func() { p.Pop(3); p.Pop(3) }},
		{"clear", func() { p.Clear() }},
	}
	for _, st := range steps {
		st.do()
		t.Run(st.name, func(t *testing.T) { assertCountsMatchQueues(t, g, 0, p) })
	}
	assert.Equal(t, 0, p.Len())
}

func TestPendingSet_TrackingAgainChangesNothing(t *testing.T) {
	// GIVEN node 0 of a 6-ring with a third-party and a neighbor's message queued
	g := topology.Ring(6)
	p := NewPendingSet(NewDestinationTracker(g, 0))
	far, near := msg(3, 1, Broadcast), msg(1, 1, Broadcast)
	require.Equal(t, Forward, p.Track(far, all))
	require.Equal(t, Forward, p.Track(near, all))
	before := p.Len()

	// WHEN both are tracked again
	// THEN every destination neighbor is filtered out as already queued
	assert.Equal(t, NoIntersection, p.Track(far, all))
	assert.Equal(t, OriginatorOnly, p.Track(near, all))
	assert.Equal(t, before, p.Len())
	assertCountsMatchQueues(t, g, 0, p)
}

func TestPendingSet_PopIsFIFO(t *testing.T) {
	g := topology.Ring(4)
	p := NewPendingSet(NewDestinationTracker(g, 0))
	a, b := msg(2, 1, Broadcast), msg(2, 2, Broadcast)
	p.Add(1, a)
	p.Add(1, b)

	assert.Equal(t, []*Message{a, b}, p.Messages(1))
	assert.Equal(t, a, p.Pop(1))
	assert.Equal(t, b, p.Pop(1))
	assert.Empty(t, p.Peers())
}

func TestPendingSet_PopEmptyPanics(t *testing.T) {
	p := NewPendingSet(NewDestinationTracker(topology.Ring(4), 0))
	assert.Panics(t, func() { p.Pop(1) })
}

func TestPendingSet_Peers(t *testing.T) {
	g := topology.Complete(4)
	p := NewPendingSet(NewDestinationTracker(g, 0))
	outcome := p.Track(msg(0, 1, Broadcast), all)

	assert.Equal(t, Forward, outcome)
	assert.Equal(t, []int{1, 2, 3}, p.Peers())
	assert.True(t, p.Contains(2, msg(0, 1, Broadcast)))
}
