package dissemination

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
)

// Audience is the destination predicate of a message.
type Audience int

const (
	// Broadcast targets every node except the originator.
	Broadcast Audience = iota
	// Friends targets the root poster and its neighbors, except the originator.
	Friends
)

var audienceNames = map[string]Audience{
	"broadcast": Broadcast,
	"friends":   Friends,
}

func (a Audience) String() string {
	if a == Friends {
		return "friends"
	}
	return "broadcast"
}

// ParseAudience maps a configuration name to an Audience.
func ParseAudience(name string) (Audience, error) {
	a, ok := audienceNames[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(audienceNames))
		for n := range audienceNames {
			names = append(names, n)
		}
		sort.Strings(names)
		return Broadcast, fmt.Errorf("unknown audience %q; valid: %s", name, strings.Join(names, ", "))
	}
	return a, nil
}

// Message is an immutable post or reply. Identity is ID.
type Message struct {
	ID       history.Key
	Parent   *Message
	PostTime float64
	Audience Audience
}

// Originator returns the node that created the message.
func (m *Message) Originator() int { return m.ID.Originator }

// Root walks the reply chain up to the original post.
func (m *Message) Root() *Message {
	r := m
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// IsDestination reports whether node should receive m. The predicate is
// evaluated on g each time it is asked.
func (m *Message) IsDestination(g topology.Graph, node int) bool {
	if node == m.ID.Originator || node < 0 || node >= g.Size() {
		return false
	}
	if m.Audience == Broadcast {
		return true
	}
	root := m.Root().ID.Originator
	return node == root || g.IsEdge(root, node)
}

// Destinations returns the sorted destination set of m.
func (m *Message) Destinations(g topology.Graph) []int {
	var out []int
	if m.Audience == Broadcast {
		out = make([]int, 0, g.Size()-1)
		for i := 0; i < g.Size(); i++ {
			if i != m.ID.Originator {
				out = append(out, i)
			}
		}
		return out
	}
	root := m.Root().ID.Originator
	if root != m.ID.Originator {
		out = append(out, root)
	}
	for i := 0; i < g.Degree(root); i++ {
		if nb := g.Neighbor(root, i); nb != m.ID.Originator {
			out = append(out, nb)
		}
	}
	sort.Ints(out)
	return out
}

// DestinationCount returns len(Destinations(g)) without allocating for
// broadcasts.
func (m *Message) DestinationCount(g topology.Graph) int {
	if m.Audience == Broadcast {
		return g.Size() - 1
	}
	return len(m.Destinations(g))
}

func (m *Message) String() string {
	if m.Parent != nil {
		return fmt.Sprintf("msg(%s re %s)", m.ID, m.Parent.ID)
	}
	return fmt.Sprintf("msg(%s)", m.ID)
}
