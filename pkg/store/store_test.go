package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func TestInsert(t *testing.T) {
	t.Run("assigns sequential ids from one", func(t *testing.T) {
		s := New(3)

		first, err := s.Insert("alpha", []float32{1, 0, 0}, nil, testNow)
		require.NoError(t, err)
		second, err := s.Insert("beta", []float32{0, 1, 0}, nil, testNow)
		require.NoError(t, err)

		assert.Equal(t, ID(1), first.ID)
		assert.Equal(t, ID(2), second.ID)
		assert.Equal(t, ID(3), s.NextID())
	})

	t.Run("sets initial access state", func(t *testing.T) {
		s := New(2)

		entry, err := s.Insert("alpha", []float32{1, 0}, nil, testNow)
		require.NoError(t, err)

		assert.Equal(t, int64(0), entry.AccessCount)
		assert.Equal(t, 1.0, entry.Strength)
		assert.Equal(t, testNow, entry.CreatedAt)
		assert.Equal(t, testNow, entry.LastAccessed)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		s := New(3)

		_, err := s.Insert("alpha", []float32{1, 0}, nil, testNow)
		require.ErrorIs(t, err, ErrDimensionMismatch)

		// A failed insert consumes no ID.
		assert.Equal(t, ID(1), s.NextID())
		assert.Equal(t, 0, s.Len())
	})

	t.Run("copies the vector", func(t *testing.T) {
		s := New(2)
		vec := []float32{1, 0}

		entry, err := s.Insert("alpha", vec, nil, testNow)
		require.NoError(t, err)

		vec[0] = 99
		assert.Equal(t, float32(1), entry.Vector[0])
	})

	t.Run("copies metadata", func(t *testing.T) {
		s := New(2)
		md := map[string]any{"source": "test"}

		entry, err := s.Insert("alpha", []float32{1, 0}, md, testNow)
		require.NoError(t, err)

		md["source"] = "mutated"
		assert.Equal(t, "test", entry.Metadata["source"])
	})

	t.Run("ids are never reused after remove", func(t *testing.T) {
		s := New(1)

		first, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)
		require.NoError(t, s.Remove(first.ID))

		second, err := s.Insert("beta", []float32{1}, nil, testNow)
		require.NoError(t, err)
		assert.Equal(t, ID(2), second.ID)
	})
}

func TestGet(t *testing.T) {
	t.Run("returns a deep copy", func(t *testing.T) {
		s := New(2)
		inserted, err := s.Insert("alpha", []float32{1, 0}, map[string]any{"k": "v"}, testNow)
		require.NoError(t, err)

		got, ok := s.Get(inserted.ID)
		require.True(t, ok)

		got.Vector[0] = 42
		got.Metadata["k"] = "mutated"

		again, ok := s.Get(inserted.ID)
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
		assert.Equal(t, "v", again.Metadata["k"])
	})

	t.Run("does not touch access stats", func(t *testing.T) {
		s := New(1)
		inserted, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)

		s.Get(inserted.ID)
		s.Get(inserted.ID)

		got, ok := s.Get(inserted.ID)
		require.True(t, ok)
		assert.Equal(t, int64(0), got.AccessCount)
	})

	t.Run("absent id", func(t *testing.T) {
		s := New(1)
		_, ok := s.Get(99)
		assert.False(t, ok)
	})
}

func TestTouch(t *testing.T) {
	t.Run("bumps count and timestamp", func(t *testing.T) {
		s := New(1)
		inserted, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)

		later := testNow.Add(time.Hour)
		require.NoError(t, s.Touch(inserted.ID, later))

		got, _ := s.Get(inserted.ID)
		assert.Equal(t, int64(1), got.AccessCount)
		assert.Equal(t, later, got.LastAccessed)
	})

	t.Run("strength caps at one", func(t *testing.T) {
		s := New(1)
		inserted, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			require.NoError(t, s.Touch(inserted.ID, testNow))
		}

		got, _ := s.Get(inserted.ID)
		assert.Equal(t, 1.0, got.Strength)
	})

	t.Run("absent id", func(t *testing.T) {
		s := New(1)
		assert.ErrorIs(t, s.Touch(99, testNow), ErrNotFound)
	})
}

func TestRemove(t *testing.T) {
	t.Run("removes the entry", func(t *testing.T) {
		s := New(1)
		inserted, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)

		require.NoError(t, s.Remove(inserted.ID))
		assert.Equal(t, 0, s.Len())
		assert.False(t, s.Has(inserted.ID))
	})

	t.Run("double remove is an error", func(t *testing.T) {
		s := New(1)
		inserted, err := s.Insert("alpha", []float32{1}, nil, testNow)
		require.NoError(t, err)

		require.NoError(t, s.Remove(inserted.ID))
		assert.ErrorIs(t, s.Remove(inserted.ID), ErrNotFound)
	})
}

func TestIDs(t *testing.T) {
	s := New(1)
	for _, p := range []string{"a", "b", "c"} {
		_, err := s.Insert(p, []float32{1}, nil, testNow)
		require.NoError(t, err)
	}
	require.NoError(t, s.Remove(2))

	assert.Equal(t, []ID{1, 3}, s.IDs())
}

func TestReset(t *testing.T) {
	t.Run("replaces contents and counter", func(t *testing.T) {
		s := New(2)
		_, err := s.Insert("old", []float32{1, 0}, nil, testNow)
		require.NoError(t, err)

		entries := []*Entry{
			{ID: 5, Payload: "restored", Vector: []float32{0, 1}, Strength: 0.5, CreatedAt: testNow, LastAccessed: testNow},
		}
		require.NoError(t, s.Reset(entries, 10))

		assert.Equal(t, 1, s.Len())
		assert.False(t, s.Has(1))
		assert.True(t, s.Has(5))
		assert.Equal(t, ID(10), s.NextID())
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		s := New(2)
		entries := []*Entry{{ID: 1, Vector: []float32{1}}}
		assert.ErrorIs(t, s.Reset(entries, 2), ErrDimensionMismatch)
	})

	t.Run("rejects id at or above counter", func(t *testing.T) {
		s := New(1)
		entries := []*Entry{{ID: 7, Vector: []float32{1}}}
		assert.Error(t, s.Reset(entries, 7))
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		s := New(1)
		entries := []*Entry{
			{ID: 1, Vector: []float32{1}},
			{ID: 1, Vector: []float32{2}},
		}
		assert.Error(t, s.Reset(entries, 5))
	})
}
