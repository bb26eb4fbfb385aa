// Package evict implements importance-scored eviction for the Freeform
// memory engine.
//
// When an insertion pushes the store past its capacity, the engine removes
// the lowest-value entries. Value is a weighted blend of three signals:
//
//  1. Frequency: raw access count (well-used concepts are worth keeping)
//  2. Strength: reinforcement accumulated from repeated access
//  3. Recency: 1 / (1 + seconds since last access), so recently touched
//     entries score higher and the advantage fades hyperbolically
//
// score = 0.4*access_count + 0.3*strength + 0.3*recency
//
// This is a heuristic, not a proven cache policy (it is neither LRU- nor
// LFU-optimal), so it lives behind the Policy interface: size-aware or
// TTL-based scoring can be substituted without touching the store or graph
// contracts.
package evict

import (
	"sort"
	"time"

	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// Policy computes an importance score for an entry. Higher scores survive
// longer; eviction removes the lowest-scoring entries first.
type Policy interface {
	Score(e *store.Entry, now time.Time) float64
}

// Source is the view of the entry store that victim selection needs.
// *store.Store satisfies it.
type Source interface {
	ForEach(fn func(*store.Entry) bool)
}

// WeightedPolicy is the default Policy: a linear blend of access count,
// strength, and recency.
type WeightedPolicy struct {
	AccessWeight   float64
	StrengthWeight float64
	RecencyWeight  float64
}

// DefaultPolicy returns the standard 0.4/0.3/0.3 blend.
func DefaultPolicy() *WeightedPolicy {
	return &WeightedPolicy{
		AccessWeight:   0.4,
		StrengthWeight: 0.3,
		RecencyWeight:  0.3,
	}
}

// Score implements Policy.
//
// The access-count term is deliberately unnormalized: a heavily accessed
// entry should outrank any combination of strength and recency.
func (p *WeightedPolicy) Score(e *store.Entry, now time.Time) float64 {
	age := now.Sub(e.LastAccessed).Seconds()
	if age < 0 {
		age = 0
	}
	recency := 1.0 / (1.0 + age)

	return p.AccessWeight*float64(e.AccessCount) +
		p.StrengthWeight*e.Strength +
		p.RecencyWeight*recency
}

// VictimCount returns how many entries one eviction pass removes for a
// given capacity: ceil(capacity / 10), never less than 1.
func VictimCount(capacity int) int {
	n := (capacity + 9) / 10
	if n < 1 {
		n = 1
	}
	return n
}

// Select appends the IDs of the n lowest-scoring entries to dst and
// returns it. The entry identified by exclude is never selected; the
// engine passes the ID it is currently inserting. Ties are broken by
// ascending ID so selection is deterministic.
func Select(dst []store.ID, src Source, policy Policy, n int, now time.Time, exclude store.ID) []store.ID {
	type scored struct {
		id    store.ID
		score float64
	}

	var candidates []scored
	src.ForEach(func(e *store.Entry) bool {
		if e.ID == exclude {
			return true
		}
		candidates = append(candidates, scored{id: e.ID, score: policy.Score(e, now)})
		return true
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, c := range candidates[:n] {
		dst = append(dst, c.id)
	}
	return dst
}
