package dissemination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
)

func TestMessage_Destinations(t *testing.T) {
	// Path 0-1-2-3.
	g, err := topology.FromEdges(4, [][2]int{{0, 1}, {1, 2}, {2, 3}})
	require.NoError(t, err)

	tests := []struct {
		name string
		m    *Message
		want []int
	}{
		{"broadcast excludes originator", msg(1, 1, Broadcast), []int{0, 2, 3}},
		{"friends of an end node", msg(0, 1, Friends), []int{1}},
		{"friends of a middle node", msg(2, 1, Friends), []int{1, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.m.Destinations(g))
			assert.Equal(t, len(tc.want), tc.m.DestinationCount(g))
		})
	}
}

func TestMessage_ReplyTargetsFriendsOfRootPoster(t *testing.T) {
	// GIVEN a post by 2 on the path 0-1-2-3 and a reply by 3
	g, err := topology.FromEdges(4, [][2]int{{0, 1}, {1, 2}, {2, 3}})
	require.NoError(t, err)
	post := msg(2, 1, Friends)
	reply := &Message{ID: history.Key{Originator: 3, Sequence: 1}, Parent: post, Audience: Friends}

	// THEN the reply goes to the root poster and its friends except the replier
	assert.Same(t, post, reply.Root())
	assert.Equal(t, []int{1, 2}, reply.Destinations(g))
	assert.False(t, reply.IsDestination(g, 3))
	assert.False(t, reply.IsDestination(g, 7))
}

func TestParseAudience(t *testing.T) {
	a, err := ParseAudience("Friends")
	require.NoError(t, err)
	assert.Equal(t, Friends, a)
	assert.Equal(t, "friends", a.String())

	_, err = ParseAudience("everyone")
	assert.Error(t, err)
}

func TestParseProtocol(t *testing.T) {
	k, err := ParseProtocol("demers")
	require.NoError(t, err)
	assert.Equal(t, RumorMongering, k)
	assert.Equal(t, "demers", k.String())

	_, err = ParseProtocol("push-pull")
	assert.ErrorContains(t, err, "valid: demers, forwarding")
}
