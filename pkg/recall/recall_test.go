package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madmoo-Pi/Freeform-ai/pkg/graph"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// chain builds A-B-C-D with uniform 0.9 edge weights (IDs 1..4).
func chain(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.Link(1, 2, 0.9))
	require.NoError(t, g.Link(2, 3, 0.9))
	require.NoError(t, g.Link(3, 4, 0.9))
	return g
}

func TestSpread(t *testing.T) {
	t.Run("one hop activates direct neighbors", func(t *testing.T) {
		g := chain(t)

		results, err := Spread(g.ForEachNeighbor, 1, 1, DefaultOptions())
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.Equal(t, store.ID(2), results[0].ID)
		assert.InDelta(t, 0.72, results[0].Activation, 1e-12) // 1.0 * 0.9 * 0.8
	})

	t.Run("two hops attenuate multiplicatively", func(t *testing.T) {
		g := chain(t)

		results, err := Spread(g.ForEachNeighbor, 1, 2, DefaultOptions())
		require.NoError(t, err)

		require.Len(t, results, 2)
		assert.Equal(t, store.ID(2), results[0].ID)
		assert.InDelta(t, 0.72, results[0].Activation, 1e-12)
		assert.Equal(t, store.ID(3), results[1].ID)
		assert.InDelta(t, 0.5184, results[1].Activation, 1e-12) // 0.72 * 0.9 * 0.8
	})

	t.Run("start node is excluded even when reactivated", func(t *testing.T) {
		g := chain(t)

		results, err := Spread(g.ForEachNeighbor, 1, 3, DefaultOptions())
		require.NoError(t, err)

		for _, r := range results {
			assert.NotEqual(t, store.ID(1), r.ID)
		}
	})

	t.Run("contributions at the threshold are discarded", func(t *testing.T) {
		g := graph.New()
		// 1.0 * 0.25 * 0.8 = 0.2, exactly the threshold.
		require.NoError(t, g.Link(1, 2, 0.25))

		results, err := Spread(g.ForEachNeighbor, 1, 1, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("contributions just above the threshold survive", func(t *testing.T) {
		g := graph.New()
		require.NoError(t, g.Link(1, 2, 0.26))

		results, err := Spread(g.ForEachNeighbor, 1, 1, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 0.208, results[0].Activation, 1e-12)
	})

	t.Run("converging paths keep the maximum not the sum", func(t *testing.T) {
		// Diamond: 1 links to 2 and 3, both link to 4.
		g := graph.New()
		require.NoError(t, g.Link(1, 2, 0.9))
		require.NoError(t, g.Link(1, 3, 0.8))
		require.NoError(t, g.Link(2, 4, 0.9))
		require.NoError(t, g.Link(3, 4, 0.9))

		results, err := Spread(g.ForEachNeighbor, 1, 2, DefaultOptions())
		require.NoError(t, err)

		var activation4 float64
		for _, r := range results {
			if r.ID == 4 {
				activation4 = r.Activation
			}
		}
		// Via 2: 0.72 * 0.9 * 0.8 = 0.5184. Via 3: 0.64 * 0.9 * 0.8 = 0.4608.
		assert.InDelta(t, 0.5184, activation4, 1e-12)
	})

	t.Run("results ordered by activation then id", func(t *testing.T) {
		g := graph.New()
		require.NoError(t, g.Link(1, 5, 0.9))
		require.NoError(t, g.Link(1, 2, 0.9))
		require.NoError(t, g.Link(1, 3, 0.5))

		results, err := Spread(g.ForEachNeighbor, 1, 1, DefaultOptions())
		require.NoError(t, err)

		require.Len(t, results, 3)
		// 2 and 5 tie at 0.72: ascending id. 3 trails at 0.4.
		assert.Equal(t, store.ID(2), results[0].ID)
		assert.Equal(t, store.ID(5), results[1].ID)
		assert.Equal(t, store.ID(3), results[2].ID)
	})

	t.Run("depth zero is valid and empty", func(t *testing.T) {
		g := chain(t)
		results, err := Spread(g.ForEachNeighbor, 1, 0, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("negative depth rejected", func(t *testing.T) {
		g := chain(t)
		_, err := Spread(g.ForEachNeighbor, 1, -1, DefaultOptions())
		assert.ErrorIs(t, err, ErrInvalidDepth)
	})

	t.Run("isolated start yields nothing", func(t *testing.T) {
		g := graph.New()
		results, err := Spread(g.ForEachNeighbor, 99, 5, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		g := chain(t)
		first, err := Spread(g.ForEachNeighbor, 1, 3, DefaultOptions())
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Spread(g.ForEachNeighbor, 1, 3, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
}
