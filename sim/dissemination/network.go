// Package dissemination implements the flooding and rumor-mongering
// protocols that spread posts over a churning overlay.
//
// A Network is an arena of Node values, one per overlay node, all built from
// one shared read-only Config. Each Node is the application layer (it stores
// delivered messages and feeds the Monitor) and delegates the actual
// exchanges to one Strategy: history Forwarding or Demers RumorMonger.
// Exchanges are plain method calls between nodes of the same run.
package dissemination

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/gossip-sim/sim"
	"github.com/inference-sim/gossip-sim/sim/churn"
	"github.com/inference-sim/gossip-sim/sim/cyclic"
	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

// ProtocolKind selects the exchange strategy of every node in a run.
type ProtocolKind int

const (
	// HistoryForwarding floods along pending sends, pruned by history.
	HistoryForwarding ProtocolKind = iota
	// RumorMongering is the Demers et al. hot rumor protocol.
	RumorMongering
)

var protocolNames = map[string]ProtocolKind{
	"forwarding": HistoryForwarding,
	"demers":     RumorMongering,
}

func (k ProtocolKind) String() string {
	if k == RumorMongering {
		return "demers"
	}
	return "forwarding"
}

// ParseProtocol maps a configuration name to a ProtocolKind.
func ParseProtocol(name string) (ProtocolKind, error) {
	k, ok := protocolNames[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(protocolNames))
		for n := range protocolNames {
			names = append(names, n)
		}
		sort.Strings(names)
		return HistoryForwarding, fmt.Errorf("unknown protocol %q; valid: %s", name, strings.Join(names, ", "))
	}
	return k, nil
}

// Config is built once per run and shared read-only by every node.
type Config struct {
	Graph     *topology.Adjacency
	Processes *churn.ProcessSet
	Protocol  ProtocolKind
	History   history.Config
	Selector  Selector
	Monitor   *Monitor
	// Trace may be nil.
	Trace *trace.ExchangeTrace
	// RNG supplies per-node streams for rumor mongering.
	RNG *sim.PartitionedRNG

	// ChunkSize caps the messages sent to one peer per round.
	ChunkSize int
	// GiveUp is the probability that a useless rumor is dropped.
	GiveUp float64
	// MaxRumors bounds the hot rumor list; zero means unbounded.
	MaxRumors int
	Audience  Audience
}

// Validate checks the parts of the configuration that are not validated by
// their own packages.
func (c *Config) Validate() error {
	if c.Graph == nil || c.Processes == nil || c.Selector == nil || c.Monitor == nil || c.RNG == nil {
		return fmt.Errorf("dissemination config: graph, processes, selector, monitor and rng are required")
	}
	if c.Graph.Size() != c.Processes.Size() {
		return fmt.Errorf("dissemination config: graph has %d nodes, process set %d", c.Graph.Size(), c.Processes.Size())
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be >= 1, got %d", c.ChunkSize)
	}
	if c.GiveUp < 0 || c.GiveUp > 1 || math.IsNaN(c.GiveUp) {
		return fmt.Errorf("give-up probability must be in [0, 1], got %v", c.GiveUp)
	}
	if c.Protocol == RumorMongering && c.GiveUp == 0 {
		return fmt.Errorf("rumor mongering needs a give-up probability > 0")
	}
	if c.MaxRumors < 0 {
		return fmt.Errorf("max rumors must be >= 0, got %d", c.MaxRumors)
	}
	return c.History.Validate()
}

// Strategy is the exchange half of a node.
type Strategy interface {
	// CanSelect reports whether peer is worth exchanging with.
	CanSelect(peer int) bool
	// Throttling returns how many exchanges with peer to run this round.
	Throttling(peer int) int
	// Exchange runs one exchange with peer.
	Exchange(now float64, peer int)
	// Accepted is called when the node stores a new message, posted locally
	// or received from sender (sender == node for local posts).
	Accepted(sender int, m *Message, rec history.Record)
	// QueueSize returns the amount of outstanding work.
	QueueSize() int
	// Clear drops all protocol state.
	Clear()
}

// Network is the arena of nodes of one run.
type Network struct {
	cfg    *Config
	nodes  []*Node
	runner *cyclic.Runner
}

// NewNetwork builds one Node per graph node. Panics on an invalid config,
// which must be validated before the run starts.
func NewNetwork(cfg *Config) *Network {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("dissemination.NewNetwork: %v", err))
	}
	net := &Network{cfg: cfg, nodes: make([]*Node, cfg.Graph.Size())}
	for i := range net.nodes {
		net.nodes[i] = newNode(i, net)
	}
	return net
}

func newNode(id int, net *Network) *Node {
	n := &Node{id: id, net: net, cfg: net.cfg, store: make(map[history.Key]*Message)}
	switch net.cfg.Protocol {
	case RumorMongering:
		n.strategy = newRumorMonger(n)
	default:
		n.strategy = newForwarding(n)
	}
	return n
}

// Size returns the number of nodes.
func (net *Network) Size() int { return len(net.nodes) }

// Node returns node i.
func (net *Network) Node(i int) *Node { return net.nodes[i] }

// Config returns the shared configuration.
func (net *Network) Config() *Config { return net.cfg }

// Protocols returns the nodes as cyclic protocols, in index order.
func (net *Network) Protocols() []cyclic.Protocol {
	out := make([]cyclic.Protocol, len(net.nodes))
	for i, n := range net.nodes {
		out[i] = n
	}
	return out
}

// Runner creates the cyclic runner that ticks the nodes every period. Posts
// made through the network wake it up.
func (net *Network) Runner(period float64) *cyclic.Runner {
	net.runner = cyclic.NewRunner(period, net.Protocols(), net.cfg.Processes)
	return net.runner
}

// Post makes node publish a new message now and wakes the runner.
func (net *Network) Post(s *sim.Simulator, node int) *Message {
	m := net.nodes[node].Post(s.RawClock())
	net.wake(s)
	return m
}

// Reply makes node answer parent now and wakes the runner.
func (net *Network) Reply(s *sim.Simulator, node int, parent *Message) *Message {
	m := net.nodes[node].Reply(s.RawClock(), parent)
	net.wake(s)
	return m
}

func (net *Network) wake(s *sim.Simulator) {
	if net.runner != nil {
		net.runner.WakeUp(s)
	}
}

// Metrics returns every per-node series of the run.
func (net *Network) Metrics() []Metric {
	ms := net.cfg.Monitor.NodeMetrics()
	return append(ms,
		metricFunc{"cache_hit_rate", func(i int) float64 { return net.nodes[i].CacheStats().HitRate() }},
		metricFunc{"cache_accesses", func(i int) float64 { return float64(net.nodes[i].CacheStats().Accesses) }},
	)
}

// Node is one overlay node: its delivered messages and its exchange strategy.
type Node struct {
	id       int
	net      *Network
	cfg      *Config
	store    map[history.Key]*Message
	seq      int
	posted   int
	strategy Strategy
}

// ID returns the node index.
func (n *Node) ID() int { return n.id }

// Strategy returns the exchange strategy.
func (n *Node) Strategy() Strategy { return n.strategy }

// Post creates a new message with the configured audience. A message with
// no destination at all is stored but never enqueued.
func (n *Node) Post(now float64) *Message {
	return n.publish(now, nil, n.cfg.Audience)
}

// Reply creates a message answering parent, addressed to parent's audience.
func (n *Node) Reply(now float64, parent *Message) *Message {
	return n.publish(now, parent, parent.Audience)
}

func (n *Node) publish(now float64, parent *Message, audience Audience) *Message {
	n.seq++
	n.posted++
	m := &Message{
		ID:       history.Key{Originator: n.id, Sequence: n.seq},
		Parent:   parent,
		PostTime: now,
		Audience: audience,
	}
	n.store[m.ID] = m
	n.cfg.Monitor.Posted(m, now)
	if m.DestinationCount(n.cfg.Graph) == 0 {
		logrus.Warnf("[t=%.4f] node %d posted %s with no destination", now, n.id, m)
		return m
	}
	logrus.Debugf("[t=%.4f] node %d posted %s", now, n.id, m)
	n.strategy.Accepted(n.id, m, nil)
	return m
}

// deliver hands m to the application. Returns true if m was new.
func (n *Node) deliver(now float64, m *Message) bool {
	if _, ok := n.store[m.ID]; ok {
		n.cfg.Monitor.Duplicate(n.id)
		return false
	}
	n.store[m.ID] = m
	n.cfg.Monitor.Delivered(n.id, m, now)
	return true
}

// Has reports whether the node holds m.
func (n *Node) Has(id history.Key) bool {
	_, ok := n.store[id]
	return ok
}

// NextCycle selects a peer and runs up to Throttling(peer) exchanges.
func (n *Node) NextCycle(now float64, node int) {
	if n.strategy.QueueSize() == 0 {
		return
	}
	peer, sel := n.cfg.Selector.Select(n.id, n.strategy.CanSelect)
	if sel != Selected {
		n.cfg.Trace.RecordSelection(trace.SelectionRecord{Clock: now, Node: n.id, Reason: sel.String()})
		return
	}
	for k := n.Throttling(peer); k > 0 && n.strategy.CanSelect(peer); k-- {
		n.strategy.Exchange(now, peer)
	}
}

// State is Idle with nothing to send, Active when some selectable peer is
// up, Waiting otherwise.
func (n *Node) State() cyclic.State {
	if n.strategy.QueueSize() == 0 {
		return cyclic.Idle
	}
	g := n.cfg.Graph
	for i := 0; i < g.Degree(n.id); i++ {
		nb := g.Neighbor(n.id, i)
		if n.strategy.CanSelect(nb) && n.cfg.Processes.IsUp(nb) {
			return cyclic.Active
		}
	}
	return cyclic.Waiting
}

// Status is a snapshot of a node for reporting.
type Status struct {
	Delivered int
	Posted    int
	Queued    int
	State     cyclic.State
}

// Status returns a snapshot of the node.
func (n *Node) Status() Status {
	return Status{
		Delivered: len(n.store) - n.posted,
		Posted:    n.posted,
		Queued:    n.strategy.QueueSize(),
		State:     n.State(),
	}
}

// CanSelect reports whether the node has something for peer.
func (n *Node) CanSelect(peer int) bool { return n.strategy.CanSelect(peer) }

// Throttling returns min(chunk size, work pending for peer). Panics when
// there is nothing to send, which means the selection filter was bypassed.
func (n *Node) Throttling(peer int) int {
	k := n.strategy.Throttling(peer)
	if k <= 0 {
		panic(fmt.Sprintf("node %d: non-positive throttling %d for peer %d", n.id, k, peer))
	}
	return k
}

// Exchange runs one exchange with peer. Panics if the strategy has nothing
// for peer.
func (n *Node) Exchange(now float64, peer int) { n.strategy.Exchange(now, peer) }

// QueueSize returns the outstanding work of the strategy.
func (n *Node) QueueSize() int { return n.strategy.QueueSize() }

// CacheStats returns the history cache counters, zero for strategies
// without history.
func (n *Node) CacheStats() history.Stats {
	if f, ok := n.strategy.(*Forwarding); ok {
		return f.history.Stats()
	}
	return history.Stats{}
}

// Clear drops the protocol state but keeps delivered messages.
func (n *Node) Clear() { n.strategy.Clear() }
