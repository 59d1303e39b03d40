package dissemination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/gossip-sim/sim"
	"github.com/inference-sim/gossip-sim/sim/churn"
	"github.com/inference-sim/gossip-sim/sim/cyclic"
	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

// highestIDSelector deterministically picks the live eligible neighbor with
// the largest index.
type highestIDSelector struct {
	g    topology.Graph
	live Liveness
}

func (s highestIDSelector) Select(node int, filter func(int) bool) (int, Selection) {
	best := -1
	for i := 0; i < s.g.Degree(node); i++ {
		nb := s.g.Neighbor(node, i)
		if filter(nb) && s.live.IsUp(nb) && nb > best {
			best = nb
		}
	}
	if best < 0 {
		return -1, NoPeer
	}
	return best, Selected
}

func newTestNetwork(g *topology.Adjacency, ps *churn.ProcessSet, mutate func(*Config)) *Network {
	cfg := &Config{
		Graph:     g,
		Processes: ps,
		Protocol:  HistoryForwarding,
		History:   history.Config{Kind: history.None},
		Selector:  highestIDSelector{g: g, live: ps},
		Monitor:   NewMonitor(g),
		RNG:       sim.NewPartitionedRNG(sim.NewSimulationKey(7)),
		ChunkSize: 1,
		Audience:  Broadcast,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewNetwork(cfg)
}

// runPosts starts the processes and the runner, posts from each given node
// at time zero and runs until the runner pauses.
func runPosts(net *Network, posters ...int) (*sim.Simulator, *cyclic.Runner) {
	s := sim.NewSimulator(sim.Config{Horizon: 1000})
	net.Config().Processes.Start(s)
	r := net.Runner(1)
	for _, p := range posters {
		net.Post(s, p)
	}
	r.Start(s)
	s.Run()
	return s, r
}

func withHistory(kind history.Kind) func(*Config) {
	return func(c *Config) {
		c.History = history.Config{Kind: kind, Window: 16, Nodes: c.Graph.Size(), FalsePositive: 0.001}
	}
}

func TestNetwork_RingFloodingWithoutHistory(t *testing.T) {
	// GIVEN a 4-node ring, no churn, no history
	g := topology.Ring(4)
	net := newTestNetwork(g, churn.Fixed(4), nil)

	// WHEN node 0 posts
	_, r := runPosts(net, 0)

	// THEN every other node receives it exactly once
	sum := net.Config().Monitor.Summary()
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 3, sum.Delivered)
	assert.Zero(t, sum.Undelivered)
	assert.Zero(t, sum.Suppressed)
	assert.Equal(t, 5, sum.Sent)
	assert.Equal(t, 2, sum.Duplicates)
	assert.True(t, r.Paused())
	assert.LessOrEqual(t, r.Rounds(), 3)
	for i := 1; i < 4; i++ {
		assert.True(t, net.Node(i).Has(history.Key{Originator: 0, Sequence: 1}), "node %d", i)
	}
}

func TestNetwork_RingBitsetSendsFewerMessages(t *testing.T) {
	// GIVEN the same ring with exact bitset history
	g := topology.Ring(4)
	net := newTestNetwork(g, churn.Fixed(4), withHistory(history.Bitset))

	// WHEN node 0 posts
	runPosts(net, 0)

	// THEN the delivery set is the same with strictly fewer sends
	sum := net.Config().Monitor.Summary()
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 3, sum.Delivered)
	assert.Equal(t, 4, sum.Sent)
	assert.Less(t, sum.Sent, 5)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.Suppressed)
}

func TestNetwork_NothingStaysPendingForNodesKnownToHaveTheMessage(t *testing.T) {
	for _, kind := range []history.Kind{history.Bitset, history.Bloom} {
		t.Run(kind.String(), func(t *testing.T) {
			// GIVEN a complete graph where every node posts once
			g := topology.Complete(6)
			net := newTestNetwork(g, churn.Fixed(6), withHistory(kind))
			s := sim.NewSimulator(sim.Config{Horizon: 1000})
			net.Config().Processes.Start(s)
			r := net.Runner(1)
			for i := 0; i < g.Size(); i++ {
				net.Post(s, i)
			}
			r.Start(s)

			// WHEN the run advances one event at a time
			for s.Step(1) == 1 {
				// THEN no pending send targets a node whose local history
				// already proves it has the message, and the per-peer counts
				// still match the queues
				for i := 0; i < net.Size(); i++ {
					f := net.Node(i).Strategy().(*Forwarding)
					assertCountsMatchQueues(t, g, i, f.Pending())
					for _, peer := range f.Pending().Peers() {
						for _, m := range f.Pending().Messages(peer) {
							rec, ok := f.History().Peek(m.ID)
							if ok {
								require.False(t, rec.Contains(peer), "node %d still queues %s for %d", i, m, peer)
							}
						}
					}
				}
			}
			if kind == history.Bitset {
				assert.Equal(t, 6, net.Config().Monitor.Summary().Completed)
			}
		})
	}
}

func TestNetwork_PostWithoutDestinationIsNeverQueued(t *testing.T) {
	// GIVEN node 0 with no neighbors posting to its friends
	g, err := topology.FromEdges(3, [][2]int{{1, 2}})
	require.NoError(t, err)
	net := newTestNetwork(g, churn.Fixed(3), func(c *Config) { c.Audience = Friends })

	m := net.Node(0).Post(0)

	assert.Zero(t, m.DestinationCount(g))
	assert.Zero(t, net.Node(0).QueueSize())
	assert.Equal(t, cyclic.Idle, net.Node(0).State())
}

func TestNode_ThrottlingWithoutPendingPanics(t *testing.T) {
	net := newTestNetwork(topology.Ring(4), churn.Fixed(4), nil)
	assert.Panics(t, func() { net.Node(0).Throttling(1) })
	assert.Panics(t, func() { net.Node(0).Exchange(0, 1) })
}

func TestNode_ThrottlingIsCappedByChunkSize(t *testing.T) {
	// GIVEN node 0 of K4 with three posts queued for each neighbor
	net := newTestNetwork(topology.Complete(4), churn.Fixed(4), func(c *Config) { c.ChunkSize = 2 })
	n := net.Node(0)
	for i := 0; i < 3; i++ {
		n.Post(0)
	}

	assert.Equal(t, 2, n.Throttling(1))
	assert.Equal(t, 9, n.QueueSize())
	assert.Equal(t, Status{Delivered: 0, Posted: 3, Queued: 9, State: cyclic.Active}, n.Status())
}

func TestNode_StateWaitsForDownPeers(t *testing.T) {
	// GIVEN node 0 of a ring whose neighbors are both down
	g := topology.Ring(4)
	procs := []churn.Process{
		churn.NewFixedProcess(0),
		churn.NewRenewalProcess(1, churn.Infinite{}, churn.Infinite{}, churn.Down, nil),
		churn.NewFixedProcess(2),
		churn.NewRenewalProcess(3, churn.Infinite{}, churn.Infinite{}, churn.Down, nil),
	}
	ps := churn.NewProcessSet(procs)
	net := newTestNetwork(g, ps, nil)

	net.Node(0).Post(0)

	assert.Equal(t, cyclic.Waiting, net.Node(0).State())
}

func TestNetwork_ReplyReachesFriendsOfRootPoster(t *testing.T) {
	// GIVEN the star 0-{1,2,3} with friends audience
	g, err := topology.FromEdges(4, [][2]int{{0, 1}, {0, 2}, {0, 3}})
	require.NoError(t, err)
	net := newTestNetwork(g, churn.Fixed(4), func(c *Config) { c.Audience = Friends })
	s := sim.NewSimulator(sim.Config{Horizon: 100})
	net.Config().Processes.Start(s)
	r := net.Runner(1)
	post := net.Post(s, 0)
	r.Start(s)
	s.Run()
	require.True(t, net.Node(1).Has(post.ID))

	// WHEN 1 replies after the runner paused
	reply := net.Reply(s, 1, post)
	s.Run()

	// THEN the runner woke up and the root poster and its friends got it
	assert.Equal(t, 1, r.Wakeups())
	for _, n := range []int{0, 2, 3} {
		assert.True(t, net.Node(n).Has(reply.ID), "node %d", n)
	}
	assert.Equal(t, 2, net.Config().Monitor.Summary().Completed)
}

func TestNetwork_TraceRecordsExchanges(t *testing.T) {
	g := topology.Ring(4)
	et := trace.NewExchangeTrace(trace.TraceLevelSelections)
	net := newTestNetwork(g, churn.Fixed(4), func(c *Config) { c.Trace = et })

	runPosts(net, 0)

	summary := trace.Summarize(et)
	assert.Equal(t, 5, summary.TotalExchanges)
	assert.Equal(t, 3, summary.NewDeliveries)
	assert.Equal(t, 2, summary.Duplicates)
}

func TestNetwork_DemersQuiescesWithoutDuplicateDeliveries(t *testing.T) {
	// GIVEN rumor mongering on K8 with random peers and give-up probability 1
	g := topology.Complete(8)
	ps := churn.Fixed(8)
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(3))
	net := newTestNetwork(g, ps, func(c *Config) {
		c.Protocol = RumorMongering
		c.GiveUp = 1
		c.ChunkSize = 2
		c.RNG = rng
		c.Selector = NewRandomSelector(g, ps, rng.ForSubsystem(sim.SubsystemProtocol))
	})

	// WHEN node 0 posts
	_, r := runPosts(net, 0)

	// THEN the run quiesces, every delivery is a first delivery and no hot
	// rumor is left
	sum := net.Config().Monitor.Summary()
	holders := 0
	for i := 1; i < net.Size(); i++ {
		if net.Node(i).Has(history.Key{Originator: 0, Sequence: 1}) {
			holders++
		}
	}
	assert.True(t, r.Paused())
	assert.Equal(t, holders, sum.Delivered)
	assert.GreaterOrEqual(t, sum.Delivered, 1)
	assert.Equal(t, sum.Delivered+sum.Duplicates, sum.Sent)
	for i := 0; i < net.Size(); i++ {
		assert.Zero(t, net.Node(i).QueueSize(), "node %d", i)
	}
	assert.Zero(t, net.Node(0).CacheStats().Accesses)
}

func TestNetwork_MetricsIncludeCacheSeries(t *testing.T) {
	g := topology.Ring(4)
	net := newTestNetwork(g, churn.Fixed(4), withHistory(history.Bitset))
	runPosts(net, 0)

	ids := map[string]bool{}
	for _, m := range net.Metrics() {
		ids[m.ID()] = true
		for i := 0; i < net.Size(); i++ {
			v := m.Value(i)
			assert.GreaterOrEqual(t, v, 0.0, "%s at %d", m.ID(), i)
		}
	}
	for _, id := range []string{"receiver_delay", "duplicates", "sent", "suppressed", "cache_hit_rate", "cache_accesses"} {
		assert.True(t, ids[id], id)
	}
	assert.Positive(t, net.Node(0).CacheStats().Accesses)
}

func TestConfig_Validate(t *testing.T) {
	g := topology.Ring(4)
	base := func() *Config {
		return &Config{
			Graph: g, Processes: churn.Fixed(4), Selector: highestIDSelector{g: g},
			Monitor: NewMonitor(g), RNG: sim.NewPartitionedRNG(sim.NewSimulationKey(1)), ChunkSize: 1,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, false},
		{"missing monitor", func(c *Config) { c.Monitor = nil }, false},
		{"size mismatch", func(c *Config) { c.Processes = churn.Fixed(3) }, false},
		{"give-up above one", func(c *Config) { c.GiveUp = 2 }, false},
		{"demers never gives up", func(c *Config) { c.Protocol = RumorMongering }, false},
		{"bad history", func(c *Config) { c.History = history.Config{Kind: history.Bitset} }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
