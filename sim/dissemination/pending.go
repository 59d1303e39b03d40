package dissemination

import (
	"fmt"
	"slices"

	"github.com/inference-sim/gossip-sim/sim/history"
)

type pendingKey struct {
	peer int
	msg  history.Key
}

// PendingSet is a node's "still to send" multimap: a FIFO of messages per
// neighbor plus a membership index. Per-peer counts live in the tracker and
// must always match the queues.
type PendingSet struct {
	queues  map[int][]*Message
	index   map[pendingKey]struct{}
	tracker *DestinationTracker
}

// NewPendingSet creates an empty set backed by tracker.
func NewPendingSet(tracker *DestinationTracker) *PendingSet {
	return &PendingSet{
		queues:  make(map[int][]*Message),
		index:   make(map[pendingKey]struct{}),
		tracker: tracker,
	}
}

// Track enqueues m for every admitted destination neighbor that does not
// already have it queued. Neighbors that already have m queued are
// rejected like any other, so tracking m a second time yields
// NoIntersection or OriginatorOnly and changes nothing.
func (p *PendingSet) Track(m *Message, admit func(neighbor int) bool) TrackOutcome {
	outcome, targets := p.tracker.Track(m, func(nb int) bool {
		return !p.Contains(nb, m) && admit(nb)
	})
	for _, nb := range targets {
		p.enqueue(nb, m)
	}
	return outcome
}

// Add enqueues m for a single peer. Returns false if it was already there.
func (p *PendingSet) Add(peer int, m *Message) bool {
	if p.Contains(peer, m) {
		return false
	}
	p.tracker.Retain(peer)
	p.enqueue(peer, m)
	return true
}

func (p *PendingSet) enqueue(peer int, m *Message) {
	p.queues[peer] = append(p.queues[peer], m)
	p.index[pendingKey{peer, m.ID}] = struct{}{}
}

// Pop removes and returns the oldest message queued for peer. Panics if
// there is none; callers must check Count first.
func (p *PendingSet) Pop(peer int) *Message {
	q := p.queues[peer]
	if len(q) == 0 {
		panic(fmt.Sprintf("PendingSet: pop for peer %d with nothing pending", peer))
	}
	m := q[0]
	q[0] = nil
	if len(q) == 1 {
		delete(p.queues, peer)
	} else {
		p.queues[peer] = q[1:]
	}
	delete(p.index, pendingKey{peer, m.ID})
	p.tracker.Release(peer)
	return m
}

// Remove cancels the send of m to peer. Returns false if it was not queued.
func (p *PendingSet) Remove(peer int, m *Message) bool {
	k := pendingKey{peer, m.ID}
	if _, ok := p.index[k]; !ok {
		return false
	}
	delete(p.index, k)
	q := p.queues[peer]
	i := slices.IndexFunc(q, func(x *Message) bool { return x.ID == m.ID })
	q = slices.Delete(q, i, i+1)
	if len(q) == 0 {
		delete(p.queues, peer)
	} else {
		p.queues[peer] = q
	}
	p.tracker.Release(peer)
	return true
}

// Contains reports whether m is queued for peer.
func (p *PendingSet) Contains(peer int, m *Message) bool {
	_, ok := p.index[pendingKey{peer, m.ID}]
	return ok
}

// Count returns how many messages are queued for peer.
func (p *PendingSet) Count(peer int) int { return p.tracker.Count(peer) }

// Len returns the number of queued (peer, message) pairs.
func (p *PendingSet) Len() int { return len(p.index) }

// Messages returns a copy of the queue for peer, oldest first.
func (p *PendingSet) Messages(peer int) []*Message { return slices.Clone(p.queues[peer]) }

// Peers returns the sorted neighbors that have something queued.
func (p *PendingSet) Peers() []int {
	peers := make([]int, 0, len(p.queues))
	for peer := range p.queues {
		peers = append(peers, peer)
	}
	slices.Sort(peers)
	return peers
}

// Clear drops everything.
func (p *PendingSet) Clear() {
	clear(p.queues)
	clear(p.index)
	p.tracker.Reset()
}
