package dissemination

import (
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
)

type postStatus struct {
	msg       *Message
	reachable map[int]bool
	delivered int
	last      float64
}

func (p *postStatus) complete() bool { return p.delivered == len(p.reachable) }

type nodeStats struct {
	received   int
	delaySum   float64
	duplicates int
	sent       int
	suppressed int
}

// Monitor records deliveries and traffic for one run. A post is complete
// once every destination reachable from its originator through other
// destinations has received it.
type Monitor struct {
	g          *topology.Adjacency
	posts      map[history.Key]*postStatus
	order      []history.Key
	nodes      []nodeStats
	open       int
	onComplete func()
}

// NewMonitor creates a monitor for the nodes of g.
func NewMonitor(g *topology.Adjacency) *Monitor {
	return &Monitor{
		g:     g,
		posts: make(map[history.Key]*postStatus),
		nodes: make([]nodeStats, g.Size()),
	}
}

// OnComplete registers fn to run whenever the last open post completes.
func (mo *Monitor) OnComplete(fn func()) { mo.onComplete = fn }

// Posted starts tracking m.
func (mo *Monitor) Posted(m *Message, now float64) {
	ps := &postStatus{msg: m, reachable: mo.reachable(m), last: now}
	mo.posts[m.ID] = ps
	mo.order = append(mo.order, m.ID)
	if ps.complete() {
		logrus.Warnf("[t=%.4f] %s has no reachable destination", now, m)
		mo.checkQuiescent()
		return
	}
	mo.open++
}

// reachable returns the destinations connected to the originator through
// destination nodes only.
func (mo *Monitor) reachable(m *Message) map[int]bool {
	out := make(map[int]bool)
	if m.Audience == Broadcast {
		for _, n := range topology.Component(mo.g, m.Originator()) {
			if n != m.Originator() {
				out[n] = true
			}
		}
		return out
	}
	queue := []int{m.Originator()}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, nb := range mo.g.Neighbors(u) {
			if !out[nb] && m.IsDestination(mo.g, nb) {
				out[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return out
}

// Delivered records the first delivery of m at node.
func (mo *Monitor) Delivered(node int, m *Message, now float64) {
	st := &mo.nodes[node]
	st.received++
	st.delaySum += now - m.PostTime
	ps, ok := mo.posts[m.ID]
	if !ok || !ps.reachable[node] {
		return
	}
	ps.delivered++
	ps.last = now
	if ps.complete() {
		mo.open--
		mo.checkQuiescent()
	}
}

func (mo *Monitor) checkQuiescent() {
	if mo.open == 0 && mo.onComplete != nil {
		mo.onComplete()
	}
}

// Duplicate records a copy of an already-delivered message at node.
func (mo *Monitor) Duplicate(node int) { mo.nodes[node].duplicates++ }

// Sent records one message sent by node.
func (mo *Monitor) Sent(node int) { mo.nodes[node].sent++ }

// Suppressed records pending sends of node cancelled by history feedback.
func (mo *Monitor) Suppressed(node, n int) { mo.nodes[node].suppressed += n }

// Open returns how many posts are not yet complete.
func (mo *Monitor) Open() int { return mo.open }

// Summary is the run-level digest of a monitor.
type Summary struct {
	Posts     int
	Completed int
	// E2EDelay is the mean time from post to last reachable delivery over
	// completed posts; zero when none completed.
	E2EDelay float64
	// Undelivered counts reachable destinations still missing a post.
	Undelivered int
	Delivered   int
	Sent        int
	Duplicates  int
	Suppressed  int
}

// Summary digests the run so far.
func (mo *Monitor) Summary() Summary {
	var s Summary
	delaySum := 0.0
	for _, k := range mo.order {
		ps := mo.posts[k]
		s.Posts++
		if ps.complete() {
			s.Completed++
			delaySum += ps.last - ps.msg.PostTime
		} else {
			s.Undelivered += len(ps.reachable) - ps.delivered
		}
	}
	if s.Completed > 0 {
		s.E2EDelay = delaySum / float64(s.Completed)
	}
	for _, st := range mo.nodes {
		s.Delivered += st.received
		s.Sent += st.sent
		s.Duplicates += st.duplicates
		s.Suppressed += st.suppressed
	}
	return s
}

// Metric is a named per-node series.
type Metric interface {
	ID() string
	Value(node int) float64
}

type metricFunc struct {
	id string
	fn func(node int) float64
}

func (m metricFunc) ID() string             { return m.id }
func (m metricFunc) Value(node int) float64 { return m.fn(node) }

// NodeMetrics returns the per-node series kept by the monitor.
func (mo *Monitor) NodeMetrics() []Metric {
	return []Metric{
		metricFunc{"receiver_delay", func(n int) float64 {
			st := mo.nodes[n]
			if st.received == 0 {
				return 0
			}
			return st.delaySum / float64(st.received)
		}},
		metricFunc{"duplicates", func(n int) float64 { return float64(mo.nodes[n].duplicates) }},
		metricFunc{"sent", func(n int) float64 { return float64(mo.nodes[n].sent) }},
		metricFunc{"suppressed", func(n int) float64 { return float64(mo.nodes[n].suppressed) }},
	}
}
