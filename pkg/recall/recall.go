// Package recall implements spreading-activation recall for the Freeform
// memory engine.
//
// Starting from one entry with activation 1.0, the algorithm runs a bounded
// number of propagation rounds. In each round every activated node pushes a
// contribution of s * w * decay to each neighbor (s = the node's activation,
// w = the edge weight). A neighbor keeps the maximum of its prior activation
// and the largest contribution proposed to it this round, a max rather than a sum,
// which keeps activation inside [0, 1] and makes the result independent of
// the order in which nodes are processed. Contributions at or below the
// threshold are discarded outright, so the active frontier stays sparse and
// each round's work is bounded by what survived the previous round.
//
// ELI12 (Explain Like I'm 12):
//
// Imagine dropping a pebble in a pond where the ripples travel along ropes
// between buoys. The rope's thickness (edge weight) decides how much of the
// wave gets through, and every hop loses some energy (decay). Ripples that
// get too weak just vanish (threshold). After a few hops you look at which
// buoys are still bobbing and how hard: those are your related memories,
// strongest first.
package recall

import (
	"errors"
	"fmt"
	"sort"

	"github.com/madmoo-Pi/Freeform-ai/pkg/pool"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// ErrInvalidDepth is returned for negative propagation depths.
var ErrInvalidDepth = errors.New("recall: depth must be non-negative")

// Result is one recalled entry with its final activation in (0, 1].
type Result struct {
	ID         store.ID `json:"id"`
	Activation float64  `json:"activation"`
}

// NeighborFunc visits the weighted edges incident to id. The graph's
// ForEachNeighbor satisfies it via a closure.
type NeighborFunc func(id store.ID, visit func(nb store.ID, weight float64) bool)

// Options holds propagation tuning.
type Options struct {
	// Decay is the per-hop attenuation applied to every contribution.
	Decay float64

	// Threshold is the activation floor: contributions at or below it
	// are never recorded and never propagate further.
	Threshold float64
}

// DefaultOptions returns the standard propagation settings
// (decay 0.8, threshold 0.2).
func DefaultOptions() Options {
	return Options{Decay: 0.8, Threshold: 0.2}
}

// Spread propagates activation from start across the graph for depth
// rounds and returns the surviving entries in descending activation order,
// ties broken by ascending ID. The start node is excluded from the result
// regardless of any activation it reaccumulates.
//
// Spread is a pure read of the graph: access bookkeeping (touching the
// start and the surfaced entries) is the engine's responsibility. Depth 0
// is valid and yields an empty result.
func Spread(neighbors NeighborFunc, start store.ID, depth int, opts Options) ([]Result, error) {
	if depth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}

	activation := map[store.ID]float64{start: 1.0}

	for round := 0; round < depth; round++ {
		incoming := pool.GetActivationMap()

		for id, s := range activation {
			neighbors(id, func(nb store.ID, w float64) bool {
				c := s * w * opts.Decay
				if c <= opts.Threshold {
					return true
				}
				if c > incoming[nb] {
					incoming[nb] = c
				}
				return true
			})
		}

		changed := false
		for nb, c := range incoming {
			if c > activation[nb] {
				activation[nb] = c
				changed = true
			}
		}
		pool.PutActivationMap(incoming)

		// Activations only ever increase, so a round that raises nothing
		// means every later round is a fixed point too.
		if !changed {
			break
		}
	}

	results := make([]Result, 0, len(activation)-1)
	for id, act := range activation {
		if id == start {
			continue
		}
		results = append(results, Result{ID: id, Activation: act})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Activation != results[j].Activation {
			return results[i].Activation > results[j].Activation
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}
