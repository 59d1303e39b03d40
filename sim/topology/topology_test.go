package topology

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_NeighborsSortedAndSymmetric(t *testing.T) {
	g := Ring(4)

	assert.Equal(t, 4, g.Size())
	assert.Equal(t, []int{1, 3}, g.Neighbors(0))
	assert.Equal(t, []int{0, 2}, g.Neighbors(1))
	assert.Equal(t, 4, g.Edges())
	for u := 0; u < g.Size(); u++ {
		assert.Equal(t, 2, g.Degree(u))
		for i := 0; i < g.Degree(u); i++ {
			v := g.Neighbor(u, i)
			assert.True(t, g.IsEdge(v, u), "edge %d-%d not symmetric", u, v)
		}
	}
	assert.False(t, g.IsEdge(0, 2))
}

func TestComplete_EveryPairAdjacent(t *testing.T) {
	g := Complete(5)
	assert.Equal(t, 10, g.Edges())
	for u := 0; u < 5; u++ {
		assert.Equal(t, 4, g.Degree(u))
		assert.False(t, g.IsEdge(u, u))
	}
}

func TestGnp_DeterministicForSeed(t *testing.T) {
	a, err := Gnp(50, 0.1, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	b, err := Gnp(50, 0.1, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	assert.Equal(t, 50, a.Size())
	for u := 0; u < a.Size(); u++ {
		assert.Equal(t, a.Neighbors(u), b.Neighbors(u))
	}
}

func TestGnp_BadProbability(t *testing.T) {
	_, err := Gnp(10, 1.5, rand.New(rand.NewPCG(1, 2)))
	assert.Error(t, err)
}

func TestScaleFree_MinimumDegree(t *testing.T) {
	g, err := ScaleFree(100, 2, 0.3, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, 100, g.Size())
	// every node added after the seed set attaches with m edges
	for u := 0; u < g.Size(); u++ {
		if g.Degree(u) == 0 {
			t.Fatalf("node %d is isolated", u)
		}
	}
}

func TestFromEdges_Errors(t *testing.T) {
	_, err := FromEdges(3, [][2]int{{0, 3}})
	assert.Error(t, err)
	_, err = FromEdges(3, [][2]int{{1, 1}})
	assert.Error(t, err)
}

func TestBetweenness_PathAndStar(t *testing.T) {
	path, err := FromEdges(3, [][2]int{{0, 1}, {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 0}, Betweenness(path))

	star, err := FromEdges(4, [][2]int{{0, 1}, {0, 2}, {0, 3}})
	require.NoError(t, err)
	scores := Betweenness(star)
	assert.Greater(t, scores[0], 0.0)
	assert.Equal(t, 0.0, scores[1])
}

func TestComponent_ReturnsContainingComponent(t *testing.T) {
	g, err := FromEdges(5, [][2]int{{0, 1}, {1, 2}, {3, 4}})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, Component(g, 2))
	assert.Equal(t, []int{3, 4}, Component(g, 3))
}

func TestDecodeEdgeList(t *testing.T) {
	g, err := DecodeEdgeList(strings.NewReader("# ring\n0 1\n1 2\n2 0\n\n1 0\n"), "tri")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Size())
	assert.Equal(t, 3, g.Edges())

	_, err = DecodeEdgeList(strings.NewReader("0 1\n1\n"), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad:2")

	_, err = DecodeEdgeList(strings.NewReader("0 x\n"), "bad")
	assert.Error(t, err)
}

func TestSpec_ValidateAndBuild(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"ring", Spec{Type: "ring", Nodes: 6}, false},
		{"complete", Spec{Type: "complete", Nodes: 4}, false},
		{"gnp", Spec{Type: "gnp", Nodes: 20, P: 0.2}, false},
		{"scale free", Spec{Type: "scale_free", Nodes: 20, M: 2, P: 0.1}, false},
		{"unknown", Spec{Type: "torus", Nodes: 4}, true},
		{"too small", Spec{Type: "ring", Nodes: 1}, true},
		{"gnp zero p", Spec{Type: "gnp", Nodes: 4}, true},
		{"scale free m too big", Spec{Type: "scale_free", Nodes: 4, M: 4}, true},
		{"file without path", Spec{Type: "file"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.spec.Build(rand.New(rand.NewPCG(3, 4)))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec.Nodes, g.Size())
		})
	}
}
