// Package graph implements the weighted association graph for the Freeform
// memory engine.
//
// The graph holds undirected edges between entry IDs. An edge between A and
// B is a single logical fact: there is exactly one stored weight per
// unordered pair, updated through one code path, so directional weights can
// never drift apart. Repeated link proposals are damped by averaging the
// proposed weight with the existing one, which keeps noisy similarity
// estimates from oscillating an edge.
//
// Like the entry store, the graph is a plain structure with no locking of
// its own; the engine facade serializes access.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// Errors returned by graph operations.
var (
	ErrInvalidWeight = errors.New("graph: weight outside [0, 1]")
	ErrSelfLoop      = errors.New("graph: self-loop not allowed")
)

// Edge is one undirected association in canonical form (A < B).
// Used by the snapshot codec and stats; live lookups go through Neighbors.
type Edge struct {
	A      store.ID `json:"a"`
	B      store.ID `json:"b"`
	Weight float64  `json:"weight"`
}

// Graph is a symmetric weighted adjacency structure over entry IDs.
//
// The adjacency map carries each edge twice (a→b and b→a) for O(degree)
// neighbor lookups, but both directions are always written together from
// the single Link path, so they cannot disagree.
type Graph struct {
	adj map[store.ID]map[store.ID]float64
}

// New creates an empty association graph.
func New() *Graph {
	return &Graph{adj: make(map[store.ID]map[store.ID]float64)}
}

// Link creates or reinforces the edge between a and b.
//
// A first link stores the proposed weight directly. A repeat proposal is
// averaged with the current weight: new = clamp01((old + proposed) / 2).
//
// Returns ErrSelfLoop if a == b and ErrInvalidWeight if the proposal is
// outside [0, 1]. A failed Link creates no edge. Endpoint existence is the
// engine's responsibility; the graph never sees the entry store.
func (g *Graph) Link(a, b store.ID, proposed float64) error {
	if a == b {
		return fmt.Errorf("%w: id %d", ErrSelfLoop, a)
	}
	if proposed < 0 || proposed > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidWeight, proposed)
	}

	weight := proposed
	if old, ok := g.weight(a, b); ok {
		weight = clamp01((old + proposed) / 2)
	}

	g.set(a, b, weight)
	return nil
}

// Neighbors returns a copy of all edges incident to id, keyed by the
// neighbor's ID. An isolated or unknown ID yields an empty map.
func (g *Graph) Neighbors(id store.ID) map[store.ID]float64 {
	out := make(map[store.ID]float64, len(g.adj[id]))
	for nb, w := range g.adj[id] {
		out[nb] = w
	}
	return out
}

// ForEachNeighbor visits every edge incident to id without copying the
// adjacency map, until fn returns false. Used by the recall engine's
// propagation loop; external callers use Neighbors, which hands out a copy.
func (g *Graph) ForEachNeighbor(id store.ID, fn func(nb store.ID, weight float64) bool) {
	for nb, w := range g.adj[id] {
		if !fn(nb, w) {
			return
		}
	}
}

// Degree returns the number of edges incident to id.
func (g *Graph) Degree(id store.ID) int {
	return len(g.adj[id])
}

// Weight returns the stored weight for (a, b) and whether the edge exists.
func (g *Graph) Weight(a, b store.ID) (float64, bool) {
	return g.weight(a, b)
}

// RemoveAll deletes every edge incident to id. Used exclusively by entry
// removal and eviction, in the same logical operation that removes the
// entry, so no dangling edge is ever observable between engine calls.
func (g *Graph) RemoveAll(id store.ID) {
	for nb := range g.adj[id] {
		delete(g.adj[nb], id)
		if len(g.adj[nb]) == 0 {
			delete(g.adj, nb)
		}
	}
	delete(g.adj, id)
}

// EdgeCount returns the number of logical (undirected) edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, nbs := range g.adj {
		total += len(nbs)
	}
	return total / 2
}

// Edges returns every edge in canonical form (A < B), sorted ascending by
// (A, B). Deterministic output keeps snapshots byte-stable for identical
// state.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.EdgeCount())
	for a, nbs := range g.adj {
		for b, w := range nbs {
			if a < b {
				edges = append(edges, Edge{A: a, B: b, Weight: w})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	return edges
}

// Reset atomically replaces the graph with the given edge list. Used
// exclusively by snapshot restore; the codec validates endpoints against
// the restored store, Reset guards only the graph's own invariants.
func (g *Graph) Reset(edges []Edge) error {
	fresh := &Graph{adj: make(map[store.ID]map[store.ID]float64)}
	for _, e := range edges {
		if e.A == e.B {
			return fmt.Errorf("%w: id %d", ErrSelfLoop, e.A)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("%w: %g on (%d, %d)", ErrInvalidWeight, e.Weight, e.A, e.B)
		}
		fresh.set(e.A, e.B, e.Weight)
	}

	g.adj = fresh.adj
	return nil
}

func (g *Graph) weight(a, b store.ID) (float64, bool) {
	w, ok := g.adj[a][b]
	return w, ok
}

// set writes both directions of the edge. This is the only mutation path
// besides RemoveAll, which is what guarantees symmetry.
func (g *Graph) set(a, b store.ID, w float64) {
	if g.adj[a] == nil {
		g.adj[a] = make(map[store.ID]float64)
	}
	if g.adj[b] == nil {
		g.adj[b] = make(map[store.ID]float64)
	}
	g.adj[a][b] = w
	g.adj[b][a] = w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
