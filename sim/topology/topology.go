// Package topology provides the indexed neighbor graph protocols run on.
//
// Graphs are built with gonum generators into a simple.UndirectedGraph and
// then frozen into sorted adjacency lists, so that Neighbor(node, i) is stable
// across runs regardless of gonum's map iteration order.
package topology

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/graphs/gen"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is the read-only neighbor view protocols consume. Nodes are 0..Size()-1.
type Graph interface {
	Size() int
	Degree(node int) int
	// Neighbor returns the i-th neighbor of node, 0 <= i < Degree(node).
	Neighbor(node, i int) int
	IsEdge(i, j int) bool
}

// Adjacency is an immutable undirected graph with sorted neighbor lists.
// It is safe for concurrent readers.
type Adjacency struct {
	adj [][]int
	g   *simple.UndirectedGraph
}

// freeze maps the node IDs of g onto 0..n-1 in ascending ID order and copies
// the neighbor sets into sorted slices.
func freeze(g *simple.UndirectedGraph) *Adjacency {
	ids := make([]int64, 0, g.Nodes().Len())
	for it := g.Nodes(); it.Next(); {
		ids = append(ids, it.Node().ID())
	}
	slices.Sort(ids)
	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	a := &Adjacency{adj: make([][]int, len(ids))}
	for i, id := range ids {
		var nbrs []int
		for it := g.From(id); it.Next(); {
			nbrs = append(nbrs, index[it.Node().ID()])
		}
		slices.Sort(nbrs)
		a.adj[i] = nbrs
	}

	// Rebuild a gonum view with dense IDs for the analysis helpers.
	dense := simple.NewUndirectedGraph()
	for i := range a.adj {
		dense.AddNode(simple.Node(int64(i)))
	}
	for u, nbrs := range a.adj {
		for _, v := range nbrs {
			if u < v {
				dense.SetEdge(simple.Edge{F: simple.Node(int64(u)), T: simple.Node(int64(v))})
			}
		}
	}
	a.g = dense
	return a
}

func (a *Adjacency) Size() int                { return len(a.adj) }
func (a *Adjacency) Degree(node int) int      { return len(a.adj[node]) }
func (a *Adjacency) Neighbor(node, i int) int { return a.adj[node][i] }

func (a *Adjacency) IsEdge(i, j int) bool {
	_, found := slices.BinarySearch(a.adj[i], j)
	return found
}

// Neighbors returns the sorted neighbor list of node. Callers must not modify it.
func (a *Adjacency) Neighbors(node int) []int { return a.adj[node] }

// Edges returns the number of undirected edges.
func (a *Adjacency) Edges() int {
	total := 0
	for _, nbrs := range a.adj {
		total += len(nbrs)
	}
	return total / 2
}

// Gonum exposes the graph for gonum algorithms. Node IDs equal node indices.
func (a *Adjacency) Gonum() graph.Undirected { return a.g }

// Ring builds an n-node cycle.
func Ring(n int) *Adjacency {
	g := simple.NewUndirectedGraph()
	if n > 0 {
		gen.Cycle(g, gen.IDRange{First: 0, Last: int64(n - 1)})
	}
	return freeze(g)
}

// Complete builds the complete graph on n nodes.
func Complete(n int) *Adjacency {
	g := simple.NewUndirectedGraph()
	if n > 0 {
		gen.Complete(g, gen.IDRange{First: 0, Last: int64(n - 1)})
	}
	return freeze(g)
}

// Gnp builds an Erdős–Rényi graph where each edge exists with probability p.
func Gnp(n int, p float64, src rand.Source) (*Adjacency, error) {
	g := simple.NewUndirectedGraph()
	if err := gen.Gnp(g, n, p, src); err != nil {
		return nil, fmt.Errorf("generating gnp graph: %w", err)
	}
	return freeze(g), nil
}

// ScaleFree builds a Holme-Kim scale-free graph: each new node attaches with m
// edges and closes a triad with probability p.
func ScaleFree(n, m int, p float64, src rand.Source) (*Adjacency, error) {
	g := simple.NewUndirectedGraph()
	if err := gen.TunableClusteringScaleFree(g, n, m, p, src); err != nil {
		return nil, fmt.Errorf("generating scale-free graph: %w", err)
	}
	return freeze(g), nil
}

// FromEdges builds an n-node graph from an edge list. Duplicate edges are
// merged; self-loops and out-of-range endpoints are errors.
func FromEdges(n int, edges [][2]int) (*Adjacency, error) {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for k, e := range edges {
		u, v := e[0], e[1]
		if u < 0 || u >= n || v < 0 || v >= n {
			return nil, fmt.Errorf("edge %d (%d,%d): endpoint outside [0,%d)", k, u, v, n)
		}
		if u == v {
			return nil, fmt.Errorf("edge %d: self-loop on node %d", k, u)
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(u)), T: simple.Node(int64(v))})
	}
	return freeze(g), nil
}

// Betweenness returns the betweenness centrality of every node, indexed by
// node. Nodes on no shortest path score zero.
func Betweenness(a *Adjacency) []float64 {
	scores := make([]float64, a.Size())
	for id, c := range network.Betweenness(a.g) {
		scores[id] = c
	}
	return scores
}

// Component returns the sorted node indices of the connected component that
// contains node.
func Component(a *Adjacency, node int) []int {
	for _, cc := range topo.ConnectedComponents(a.g) {
		members := make([]int, len(cc))
		found := false
		for i, n := range cc {
			members[i] = int(n.ID())
			if members[i] == node {
				found = true
			}
		}
		if found {
			slices.Sort(members)
			return members
		}
	}
	return nil
}
