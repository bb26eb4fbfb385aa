package linker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func populate(t *testing.T, s *store.Store, vecs ...[]float32) []store.ID {
	t.Helper()
	ids := make([]store.ID, 0, len(vecs))
	for i, v := range vecs {
		entry, err := s.Insert(fmt.Sprintf("concept-%d", i), v, nil, testNow)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}
	return ids
}

func TestCandidates(t *testing.T) {
	t.Run("orders by descending similarity", func(t *testing.T) {
		s := store.New(2)
		ids := populate(t, s,
			[]float32{0, 1},        // orthogonal to query
			[]float32{1, 0},        // identical to query
			[]float32{0.9, 0.4359}, // close
		)

		l := New(DefaultConfig())
		cands := l.Candidates([]float32{1, 0}, 0, s)

		require.Len(t, cands, 2)
		assert.Equal(t, ids[1], cands[0].ID)
		assert.InDelta(t, 1.0, cands[0].Similarity, 1e-6)
		assert.Equal(t, ids[2], cands[1].ID)
	})

	t.Run("excludes entries at or below threshold", func(t *testing.T) {
		s := store.New(2)
		populate(t, s, []float32{0, 1})

		l := New(&Config{TopK: 5, Threshold: 0.0, MinParallel: 1000})
		cands := l.Candidates([]float32{1, 0}, 0, s)

		// Similarity exactly 0 == threshold, so it must not link.
		assert.Empty(t, cands)
	})

	t.Run("excludes the query entry itself", func(t *testing.T) {
		s := store.New(2)
		ids := populate(t, s, []float32{1, 0}, []float32{1, 0})

		l := New(DefaultConfig())
		cands := l.Candidates([]float32{1, 0}, ids[0], s)

		require.Len(t, cands, 1)
		assert.Equal(t, ids[1], cands[0].ID)
	})

	t.Run("trims to top k", func(t *testing.T) {
		s := store.New(2)
		populate(t, s,
			[]float32{1, 0}, []float32{1, 0.1}, []float32{1, 0.2},
			[]float32{1, 0.3}, []float32{1, 0.4}, []float32{1, 0.5},
			[]float32{1, 0.6},
		)

		l := New(&Config{TopK: 3, Threshold: 0.3, MinParallel: 1000})
		cands := l.Candidates([]float32{1, 0}, 0, s)

		assert.Len(t, cands, 3)
	})

	t.Run("equal similarity breaks ties by ascending id", func(t *testing.T) {
		s := store.New(2)
		ids := populate(t, s, []float32{2, 0}, []float32{1, 0}, []float32{3, 0})

		l := New(DefaultConfig())
		cands := l.Candidates([]float32{1, 0}, 0, s)

		require.Len(t, cands, 3)
		assert.Equal(t, []store.ID{ids[0], ids[1], ids[2]},
			[]store.ID{cands[0].ID, cands[1].ID, cands[2].ID})
	})

	t.Run("empty store yields no candidates", func(t *testing.T) {
		s := store.New(2)
		l := New(DefaultConfig())
		assert.Empty(t, l.Candidates([]float32{1, 0}, 0, s))
	})

	t.Run("parallel scan matches serial scan", func(t *testing.T) {
		s := store.New(2)
		for i := 0; i < 200; i++ {
			_, err := s.Insert(fmt.Sprintf("c%d", i),
				[]float32{float32(i%17) + 1, float32(i%5) + 1}, nil, testNow)
			require.NoError(t, err)
		}

		serial := New(&Config{TopK: 10, Threshold: 0.3, MinParallel: 100000})
		parallel := New(&Config{TopK: 10, Threshold: 0.3, MinParallel: 1, Workers: 4})

		query := []float32{3, 2}
		assert.Equal(t, serial.Candidates(query, 0, s), parallel.Candidates(query, 0, s))
	})
}

func TestSetIndex(t *testing.T) {
	t.Run("index results are pruned the same way", func(t *testing.T) {
		s := store.New(2)
		ids := populate(t, s, []float32{1, 0}, []float32{1, 0.1})

		l := New(&Config{TopK: 1, Threshold: 0.3, MinParallel: 1000})
		l.SetIndex(indexFunc(func(vec []float32, k int, min float64) []Candidate {
			return []Candidate{
				{ID: ids[0], Similarity: 0.99},
				{ID: ids[1], Similarity: 0.95},
			}
		}))

		cands := l.Candidates([]float32{1, 0}, ids[0], s)
		require.Len(t, cands, 1)
		assert.Equal(t, ids[1], cands[0].ID)
	})
}

type indexFunc func(vec []float32, k int, minSimilarity float64) []Candidate

func (f indexFunc) Nearest(vec []float32, k int, minSimilarity float64) []Candidate {
	return f(vec, k, minSimilarity)
}
