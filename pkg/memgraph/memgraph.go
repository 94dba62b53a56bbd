// Package memgraph is a transient in-memory graph built from the
// persistent store for analysis passes. It holds adjacency with
// weights, never attributes; hydrate full records from the store once
// the analysis has picked its node ids.
package memgraph

import (
	"context"
	"sort"
)

// Edge is one weighted directed edge.
type Edge struct {
	From   string
	To     string
	Weight float64
}

// Source feeds graph builds. The persistent graph store implements it.
type Source interface {
	AllNodeIDs(ctx context.Context) ([]string, error)
	NeighborIDsMap(ctx context.Context, ids []string) (map[string][]string, error)
	AllWeightedEdges(ctx context.Context) ([]Edge, error)
	EdgesAmong(ctx context.Context, ids []string) ([]Edge, error)
}

// Graph is the in-memory structure. Not safe for concurrent mutation;
// build it, analyze it, release it.
type Graph struct {
	nodes map[string]bool
	out   map[string]map[string]float64
	in    map[string]map[string]float64
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		out:   make(map[string]map[string]float64),
		in:    make(map[string]map[string]float64),
	}
}

// BuildFull loads the entire persistent graph.
func BuildFull(ctx context.Context, src Source) (*Graph, error) {
	g := New()
	ids, err := src.AllNodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.AddNode(id)
	}
	edges, err := src.AllWeightedEdges(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		g.AddEdge(e.From, e.To, e.Weight)
	}
	return g, nil
}

// BuildNeighborhood loads the subgraph within hops of a set of center
// nodes: a breadth-first expansion seeded with every center, one
// batched adjacency query per frontier, then one query for the edges
// among the collected nodes. Seeding all centers into one build keeps
// the edges between their neighborhoods, which per-center builds would
// lose. hops <= 0 defaults to 2.
func BuildNeighborhood(ctx context.Context, src Source, centers []string, hops int) (*Graph, error) {
	if hops <= 0 {
		hops = 2
	}
	g := New()

	visited := make(map[string]bool, len(centers))
	var frontier []string
	for _, c := range centers {
		if visited[c] {
			continue
		}
		visited[c] = true
		g.AddNode(c)
		frontier = append(frontier, c)
	}
	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		neighbors, err := src.NeighborIDsMap(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, nids := range neighbors {
			for _, nid := range nids {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				g.AddNode(nid)
				next = append(next, nid)
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	edges, err := src.EdgesAmong(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		g.AddEdge(e.From, e.To, e.Weight)
	}
	return g, nil
}

func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge records a directed weighted edge, implicitly adding missing
// endpoints. Re-adding an existing edge overwrites the weight.
func (g *Graph) AddEdge(from, to string, weight float64) {
	g.AddNode(from)
	g.AddNode(to)
	if g.out[from] == nil {
		g.out[from] = make(map[string]float64)
	}
	if g.in[to] == nil {
		g.in[to] = make(map[string]float64)
	}
	g.out[from][to] = weight
	g.in[to][from] = weight
}

func (g *Graph) HasNode(id string) bool { return g.nodes[id] }

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.out {
		n += len(targets)
	}
	return n
}

// Degree counts edges in both directions for one node.
func (g *Graph) Degree(id string) int {
	return len(g.out[id]) + len(g.in[id])
}

// NodeDegree pairs a node with its total degree.
type NodeDegree struct {
	ID     string
	Degree int
}

// DegreeCentrality ranks every node by total degree, highest first,
// with id as the tiebreaker so output is deterministic.
func (g *Graph) DegreeCentrality() []NodeDegree {
	out := make([]NodeDegree, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, NodeDegree{ID: id, Degree: g.Degree(id)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Degree != out[j].Degree {
			return out[i].Degree > out[j].Degree
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OrphanNodeIDs lists nodes with no edges at all, sorted.
func (g *Graph) OrphanNodeIDs() []string {
	var orphans []string
	for id := range g.nodes {
		if g.Degree(id) == 0 {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// Release drops the adjacency maps so a large build can be reclaimed
// promptly while the Graph value is still referenced.
func (g *Graph) Release() {
	g.nodes = make(map[string]bool)
	g.out = make(map[string]map[string]float64)
	g.in = make(map[string]map[string]float64)
}
