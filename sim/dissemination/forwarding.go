package dissemination

import (
	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

// Forwarding is the history-forwarding strategy: every new message is
// queued for the destination neighbors its history does not already cover,
// and duplicate receipts send the receiver's history back so the sender can
// cancel sends that became useless.
type Forwarding struct {
	node    *Node
	history *history.Strategy
	pending *PendingSet
}

func newForwarding(n *Node) *Forwarding {
	return &Forwarding{
		node:    n,
		history: history.New(&n.cfg.History),
		pending: NewPendingSet(NewDestinationTracker(n.cfg.Graph, n.id)),
	}
}

// Pending exposes the pending set.
func (f *Forwarding) Pending() *PendingSet { return f.pending }

// History exposes the history strategy.
func (f *Forwarding) History() *history.Strategy { return f.history }

func (f *Forwarding) CanSelect(peer int) bool { return f.pending.Count(peer) > 0 }

func (f *Forwarding) Throttling(peer int) int { return min(f.node.cfg.ChunkSize, f.pending.Count(peer)) }

func (f *Forwarding) QueueSize() int { return f.pending.Len() }

func (f *Forwarding) Clear() {
	f.pending.Clear()
	f.history.Clear()
}

// Accepted adopts the history that came with m (or starts a fresh one),
// marks this node as having m, and queues m for every destination neighbor
// other than the sender that the history does not already cover.
func (f *Forwarding) Accepted(sender int, m *Message, rec history.Record) {
	self := f.node.id
	h := f.history.Adopt(m.ID, rec, m.DestinationCount(f.node.cfg.Graph))
	history.Add(h, self)
	f.pending.Track(m, func(nb int) bool {
		return nb != sender && !history.Contains(h, nb)
	})
}

// Exchange sends the oldest message pending for peer together with its
// history, then merges any feedback. Panics if nothing is pending for peer.
func (f *Forwarding) Exchange(now float64, peer int) {
	self := f.node.id
	m := f.pending.Pop(peer)
	h := f.history.GetOrCreate(m.ID, m.DestinationCount(f.node.cfg.Graph))
	history.Add(h, self)
	f.node.cfg.Monitor.Sent(self)

	target := f.node.net.nodes[peer].strategy.(*Forwarding)
	feedback, ok, fresh := target.receive(now, self, m, h)
	history.Add(h, peer)

	rec := trace.ExchangeRecord{
		Clock:      now,
		Sender:     self,
		Receiver:   peer,
		Originator: m.Originator(),
		Sequence:   m.ID.Sequence,
		Duplicate:  !fresh,
		Feedback:   ok,
	}
	if ok {
		history.Merge(h, feedback)
		rec.Cancelled = f.cancelCovered(m, h)
	}
	f.node.cfg.Trace.RecordExchange(rec)
}

// Receive hands m to the application. A new message is queued onward and
// yields no feedback. A duplicate merges the incoming history, cancels the
// local sends it covers and returns the local history as feedback; the
// boolean is false when there is no history to return.
//
// The caller keeps ownership of rec; it is cloned before being stored.
func (f *Forwarding) Receive(now float64, sender int, m *Message, rec history.Record) (history.Record, bool) {
	feedback, ok, _ := f.receive(now, sender, m, rec)
	return feedback, ok
}

func (f *Forwarding) receive(now float64, sender int, m *Message, rec history.Record) (history.Record, bool, bool) {
	if f.node.deliver(now, m) {
		f.Accepted(sender, m, rec)
		return nil, false, true
	}
	h := f.history.GetOrCreate(m.ID, m.DestinationCount(f.node.cfg.Graph))
	history.Add(h, f.node.id)
	history.Merge(h, rec)
	f.cancelCovered(m, h)
	if h == nil {
		return nil, false, false
	}
	return h, true, false
}

// cancelCovered drops the pending sends of m to neighbors that h proves
// already have it. Returns how many were dropped.
func (f *Forwarding) cancelCovered(m *Message, h history.Record) int {
	if h == nil {
		return 0
	}
	g := f.node.cfg.Graph
	cancelled := 0
	for i := 0; i < g.Degree(f.node.id); i++ {
		nb := g.Neighbor(f.node.id, i)
		if history.Contains(h, nb) && f.pending.Remove(nb, m) {
			cancelled++
		}
	}
	if cancelled > 0 {
		f.node.cfg.Monitor.Suppressed(f.node.id, cancelled)
	}
	return cancelled
}
