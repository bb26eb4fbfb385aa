// Package linker implements similarity-based edge proposal for the Freeform
// memory engine.
//
// After every successful insertion the engine asks the linker which existing
// entries the new one should be associated with. The linker computes cosine
// similarity between the new vector and every other vector in the store,
// keeps the top-K candidates whose similarity exceeds a threshold, and the
// engine links each with proposed weight = similarity. If nothing clears the
// threshold the new entry stays isolated, which is fine.
//
// The default scan is exhaustive and fans out across workers for large
// stores. Callers that need sub-linear candidate lookup can install an
// approximate nearest-neighbor index behind the Index interface; the
// linking contract does not change.
package linker

import (
	"runtime"
	"sort"
	"sync"

	"github.com/madmoo-Pi/Freeform-ai/pkg/math/vector"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// Candidate is one proposed association: an existing entry and its cosine
// similarity to the newly inserted vector.
type Candidate struct {
	ID         store.ID
	Similarity float64
}

// Index is the seam for approximate nearest-neighbor substitution.
// Nearest returns up to k candidates with similarity strictly above
// minSimilarity, ordered by descending similarity.
type Index interface {
	Nearest(vec []float32, k int, minSimilarity float64) []Candidate
}

// Source is the view of the entry store the exhaustive scan needs.
// *store.Store satisfies it.
type Source interface {
	Len() int
	ForEach(fn func(*store.Entry) bool)
}

// Config holds linker tuning parameters.
type Config struct {
	// TopK is the maximum number of edges proposed per insertion.
	TopK int

	// Threshold is the minimum similarity (exclusive) for a proposal.
	// Entries at or below the threshold are never linked.
	Threshold float64

	// Workers caps the goroutines used by the parallel scan.
	// 0 means runtime.NumCPU().
	Workers int

	// MinParallel is the store size at which the scan fans out.
	// Smaller stores are scanned on the calling goroutine.
	MinParallel int
}

// DefaultConfig returns the standard linker settings: 5 proposals per
// insertion above a 0.3 similarity threshold, parallel scan from 1000
// entries.
func DefaultConfig() *Config {
	return &Config{
		TopK:        5,
		Threshold:   0.3,
		Workers:     0,
		MinParallel: 1000,
	}
}

// Linker proposes associations for newly inserted vectors.
type Linker struct {
	config *Config
	index  Index
}

// New creates a Linker. If config is nil, DefaultConfig() is used.
func New(config *Config) *Linker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Linker{config: config}
}

// SetIndex installs an approximate nearest-neighbor index. Pass nil to
// return to the exhaustive scan.
func (l *Linker) SetIndex(idx Index) {
	l.index = idx
}

// Candidates returns the top-K entries most similar to vec, excluding the
// entry identified by exclude (an entry never links to itself). Results are
// ordered by descending similarity with ascending-ID tie-break, so output
// is deterministic for identical state.
func (l *Linker) Candidates(vec []float32, exclude store.ID, src Source) []Candidate {
	if l.index != nil {
		return l.prune(l.index.Nearest(vec, l.config.TopK+1, l.config.Threshold), exclude)
	}

	var candidates []Candidate
	if src.Len() >= l.config.MinParallel && l.workers() > 1 {
		candidates = l.scanParallel(vec, exclude, src)
	} else {
		candidates = l.scan(vec, exclude, src)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > l.config.TopK {
		candidates = candidates[:l.config.TopK]
	}
	return candidates
}

func (l *Linker) workers() int {
	if l.config.Workers > 0 {
		return l.config.Workers
	}
	return runtime.NumCPU()
}

// scan is the single-goroutine exhaustive pass.
func (l *Linker) scan(vec []float32, exclude store.ID, src Source) []Candidate {
	candidates := make([]Candidate, 0, l.config.TopK)
	src.ForEach(func(e *store.Entry) bool {
		if e.ID == exclude {
			return true
		}
		if sim := vector.CosineSimilarity(vec, e.Vector); sim > l.config.Threshold {
			candidates = append(candidates, Candidate{ID: e.ID, Similarity: sim})
		}
		return true
	})
	return candidates
}

// scanParallel chunks the store across workers. The caller holds the engine
// write lock for the whole insertion, so entries are stable for the scan.
func (l *Linker) scanParallel(vec []float32, exclude store.ID, src Source) []Candidate {
	entries := make([]*store.Entry, 0, src.Len())
	src.ForEach(func(e *store.Entry) bool {
		if e.ID != exclude {
			entries = append(entries, e)
		}
		return true
	})

	workers := l.workers()
	chunk := (len(entries) + workers - 1) / workers
	results := make([][]Candidate, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(entries) {
			break
		}
		end := start + chunk
		if end > len(entries) {
			end = len(entries)
		}

		wg.Add(1)
		go func(w int, part []*store.Entry) {
			defer wg.Done()
			var local []Candidate
			for _, e := range part {
				if sim := vector.CosineSimilarity(vec, e.Vector); sim > l.config.Threshold {
					local = append(local, Candidate{ID: e.ID, Similarity: sim})
				}
			}
			results[w] = local
		}(w, entries[start:end])
	}
	wg.Wait()

	var merged []Candidate
	for _, part := range results {
		merged = append(merged, part...)
	}
	return merged
}

// prune drops the excluded ID and trims to TopK; used on the Index path,
// where the index may legitimately return the query entry itself.
func (l *Linker) prune(candidates []Candidate, exclude store.ID) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.ID == exclude {
			continue
		}
		out = append(out, c)
	}
	if len(out) > l.config.TopK {
		out = out[:l.config.TopK]
	}
	return out
}
