package dissemination

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/inference-sim/gossip-sim/sim"
	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

type rumor struct {
	msg     *Message
	targets []int
}

// RumorList is the hot rumor list of Demers et al. rumor mongering. The
// hottest rumors sit at the end. Per-neighbor destination counts are kept in
// a DestinationTracker so selection filters stay O(1).
type RumorList struct {
	rumors  []rumor
	tracker *DestinationTracker
	maxSize int
	giveUp  float64
	rng     *rand.Rand
}

// NewRumorList creates an empty list. maxSize <= 0 means unbounded.
func NewRumorList(tracker *DestinationTracker, maxSize int, giveUp float64, rng *rand.Rand) *RumorList {
	return &RumorList{tracker: tracker, maxSize: maxSize, giveUp: giveUp, rng: rng}
}

// Add pushes m as the hottest rumor. Returns false, leaving the list
// untouched, when no neighbor other than the originator is a destination.
// The coldest rumor is evicted when the list overflows.
func (l *RumorList) Add(m *Message) bool {
	outcome, targets := l.tracker.Track(m, func(int) bool { return true })
	if outcome != Forward {
		return false
	}
	l.rumors = append(l.rumors, rumor{msg: m, targets: targets})
	if l.maxSize > 0 && len(l.rumors) > l.maxSize {
		l.removeAt(0)
	}
	return true
}

func (l *RumorList) removeAt(pos int) {
	for _, nb := range l.rumors[pos].targets {
		l.tracker.Release(nb)
	}
	l.rumors = slices.Delete(l.rumors, pos, pos+1)
}

// Len returns the number of hot rumors.
func (l *RumorList) Len() int { return len(l.rumors) }

// At returns the rumor at pos, coldest first.
func (l *RumorList) At(pos int) *Message { return l.rumors[pos].msg }

// Messages returns the rumors, coldest first.
func (l *RumorList) Messages() []*Message {
	out := make([]*Message, len(l.rumors))
	for i, r := range l.rumors {
		out[i] = r.msg
	}
	return out
}

// MessagesFor returns how many hot rumors target peer.
func (l *RumorList) MessagesFor(peer int) int { return l.tracker.Count(peer) }

// Hottest returns the ascending positions of the n hottest rumors that
// target peer.
func (l *RumorList) Hottest(n, peer int) []int {
	var out []int
	for pos := len(l.rumors) - 1; pos >= 0 && len(out) < n; pos-- {
		if slices.Contains(l.rumors[pos].targets, peer) {
			out = append(out, pos)
		}
	}
	slices.Reverse(out)
	return out
}

// Demote applies the feedback of one exchange. positions must be ascending
// as returned by Hottest, useful[i] tells whether positions[i] helped. A
// useless rumor is dropped with the give-up probability, otherwise it swaps
// places with the next colder rumor.
func (l *RumorList) Demote(positions []int, useful []bool) {
	if len(positions) != len(useful) {
		panic(fmt.Sprintf("RumorList.Demote: %d positions, %d flags", len(positions), len(useful)))
	}
	removed := 0
	for i, pos := range positions {
		pos -= removed
		if useful[i] {
			continue
		}
		if l.rng.Float64() < l.giveUp {
			l.removeAt(pos)
			removed++
			continue
		}
		if pos > 0 {
			l.rumors[pos-1], l.rumors[pos] = l.rumors[pos], l.rumors[pos-1]
		}
	}
}

// DropAll empties the list.
func (l *RumorList) DropAll() {
	l.rumors = l.rumors[:0]
	l.tracker.Reset()
}

// RumorMonger is the non-blind Demers et al. strategy constrained to the
// overlay: each round a node pushes its hottest rumors for one peer and
// demotes the ones the peer already had.
type RumorMonger struct {
	node   *Node
	list   *RumorList
	useful []bool
}

func newRumorMonger(n *Node) *RumorMonger {
	rng := n.cfg.RNG.ForSubsystem(sim.SubsystemNode(n.id))
	tracker := NewDestinationTracker(n.cfg.Graph, n.id)
	return &RumorMonger{
		node: n,
		list: NewRumorList(tracker, n.cfg.MaxRumors, n.cfg.GiveUp, rng),
	}
}

// Rumors exposes the hot rumor list.
func (r *RumorMonger) Rumors() *RumorList { return r.list }

func (r *RumorMonger) CanSelect(peer int) bool { return r.list.MessagesFor(peer) > 0 }

func (r *RumorMonger) Throttling(peer int) int {
	if !r.CanSelect(peer) {
		return 0
	}
	return 1
}

func (r *RumorMonger) QueueSize() int { return r.list.Len() }

func (r *RumorMonger) Clear() { r.list.DropAll() }

func (r *RumorMonger) Accepted(_ int, m *Message, _ history.Record) { r.list.Add(m) }

// Exchange pushes up to ChunkSize of the hottest rumors targeting peer and
// demotes the useless ones. Panics if no rumor targets peer.
func (r *RumorMonger) Exchange(now float64, peer int) {
	positions := r.list.Hottest(r.node.cfg.ChunkSize, peer)
	if len(positions) == 0 {
		panic(fmt.Sprintf("RumorMonger(%d): exchange with %d and no rumor for it", r.node.id, peer))
	}
	target := r.node.net.nodes[peer].strategy.(*RumorMonger)
	r.useful = r.useful[:0]
	for _, pos := range positions {
		m := r.list.At(pos)
		fresh := target.receive(now, r.node.id, m)
		r.node.cfg.Monitor.Sent(r.node.id)
		r.node.cfg.Trace.RecordExchange(trace.ExchangeRecord{
			Clock:      now,
			Sender:     r.node.id,
			Receiver:   peer,
			Originator: m.Originator(),
			Sequence:   m.ID.Sequence,
			Duplicate:  !fresh,
		})
		r.useful = append(r.useful, fresh)
	}
	r.list.Demote(positions, r.useful)
}

// receive delivers m and reports whether it was new.
func (r *RumorMonger) receive(now float64, sender int, m *Message) bool {
	if !r.node.deliver(now, m) {
		return false
	}
	r.Accepted(sender, m, nil)
	return true
}
