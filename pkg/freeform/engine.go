// Package freeform exposes the associative memory engine.
//
// Engine is the single entry point: it wires the entry store, the
// association graph, the similarity linker, the recall propagator, and
// the eviction policy behind one mutex, so every operation observes a
// consistent world.
//
// What the engine does on an insert:
//
//  1. Embeds the payload (or accepts a pre-computed vector).
//  2. Stores the entry under a fresh monotonic ID.
//  3. Links it to its nearest stored neighbors by cosine similarity.
//  4. If the store is now over capacity, evicts the least important
//     tenth of the configured capacity.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Engine.Dimension = 64
//	eng, err := freeform.New(cfg, embed.NewHash(64))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close()
//
//	id, err := eng.Insert(ctx, "coffee is a brewed drink", nil)
//	results, err := eng.Recall(id, 2)
//
// ELI12:
//
// The engine is like a brain made of sticky notes. Every new note gets
// glued next to the notes it resembles. When you point at a note and ask
// "what does this remind you of?", a wave ripples along the glue: strong
// glue carries the wave far, weak glue lets it fade. Notes nobody looks
// at for a long time eventually fall off the wall to make room.
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines. Writes are
//	serialized; reads run in parallel.
package freeform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/madmoo-Pi/Freeform-ai/pkg/config"
	"github.com/madmoo-Pi/Freeform-ai/pkg/embed"
	"github.com/madmoo-Pi/Freeform-ai/pkg/evict"
	"github.com/madmoo-Pi/Freeform-ai/pkg/graph"
	"github.com/madmoo-Pi/Freeform-ai/pkg/linker"
	"github.com/madmoo-Pi/Freeform-ai/pkg/pool"
	"github.com/madmoo-Pi/Freeform-ai/pkg/recall"
	"github.com/madmoo-Pi/Freeform-ai/pkg/snapshot"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// Sentinel errors, re-exported from the subpackages so callers can match
// everything with errors.Is against this package alone.
var (
	ErrNotFound          = store.ErrNotFound
	ErrDimensionMismatch = store.ErrDimensionMismatch
	ErrInvalidWeight     = graph.ErrInvalidWeight
	ErrSelfLoop          = graph.ErrSelfLoop
	ErrInvalidDepth      = recall.ErrInvalidDepth
	ErrEmbedding         = embed.ErrEmbedding
	ErrCorruptSnapshot   = snapshot.ErrCorruptSnapshot

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("freeform: engine closed")

	// ErrNoProvider is returned by Insert when the engine was built
	// without an embedding provider. InsertVector still works.
	ErrNoProvider = errors.New("freeform: no embedding provider configured")
)

// Engine is the associative memory facade.
type Engine struct {
	mu     sync.RWMutex
	closed bool

	store  *store.Store
	graph  *graph.Graph
	linker *linker.Linker
	policy evict.Policy

	provider   embed.Provider
	dimension  int
	capacity   int
	recallOpts recall.Options

	// now is swappable for tests; everything time-dependent goes
	// through it.
	now func() time.Time

	evictions uint64
}

// New creates an Engine from the configuration. The provider may be nil,
// in which case only InsertVector is available.
func New(cfg *config.Config, provider embed.Provider) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider != nil && provider.Dimensions() != cfg.Engine.Dimension {
		return nil, fmt.Errorf("%w: provider emits %d, engine wants %d",
			ErrDimensionMismatch, provider.Dimensions(), cfg.Engine.Dimension)
	}

	pool.Configure(pool.Config{
		Enabled: cfg.Pool.Enabled,
		MaxSize: cfg.Pool.MaxSize,
	})

	return &Engine{
		store: store.New(cfg.Engine.Dimension),
		graph: graph.New(),
		linker: linker.New(&linker.Config{
			TopK:        cfg.Linker.TopK,
			Threshold:   cfg.Linker.Threshold,
			Workers:     cfg.Linker.Workers,
			MinParallel: cfg.Linker.MinParallel,
		}),
		policy: &evict.WeightedPolicy{
			AccessWeight:   cfg.Evict.AccessWeight,
			StrengthWeight: cfg.Evict.StrengthWeight,
			RecencyWeight:  cfg.Evict.RecencyWeight,
		},
		provider:  provider,
		dimension: cfg.Engine.Dimension,
		capacity:  cfg.Engine.Capacity,
		recallOpts: recall.Options{
			Decay:     cfg.Recall.Decay,
			Threshold: cfg.Recall.Threshold,
		},
		now: time.Now,
	}, nil
}

// Insert embeds the payload, stores it, links it to similar concepts, and
// enforces capacity. Returns the new entry's ID.
//
// Returns ErrEmbedding if the provider fails, ErrDimensionMismatch if the
// provider's vector has the wrong length. On error nothing is stored.
func (e *Engine) Insert(ctx context.Context, payload string, metadata map[string]any) (store.ID, error) {
	if e.provider == nil {
		return 0, ErrNoProvider
	}

	// Embed outside the lock: provider calls can block on the network
	// and must not starve readers.
	vec, err := e.provider.Embed(ctx, payload)
	if err != nil {
		return 0, err
	}

	return e.InsertVector(payload, vec, metadata)
}

// InsertVector stores a payload with a pre-computed vector, bypassing the
// embedding provider. Linking and capacity enforcement run as in Insert.
func (e *Engine) InsertVector(payload string, vec []float32, metadata map[string]any) (store.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}

	now := e.now()
	entry, err := e.store.Insert(payload, vec, metadata, now)
	if err != nil {
		return 0, err
	}

	// Similarity linking. Candidates are strictly above the threshold
	// and exclude the entry itself, so Link cannot fail here.
	for _, c := range e.linker.Candidates(entry.Vector, entry.ID, e.store) {
		if err := e.graph.Link(entry.ID, c.ID, c.Similarity); err != nil {
			return 0, fmt.Errorf("freeform: linking %d-%d: %w", entry.ID, c.ID, err)
		}
	}

	e.enforceCapacity(entry.ID, now)
	return entry.ID, nil
}

// enforceCapacity evicts the lowest-importance entries when the store has
// grown past capacity. The entry just inserted is never a victim.
// Caller holds the write lock.
func (e *Engine) enforceCapacity(justInserted store.ID, now time.Time) {
	if e.capacity <= 0 || e.store.Len() <= e.capacity {
		return
	}

	n := evict.VictimCount(e.capacity)
	ids := pool.GetIDSlice()
	victims := evict.Select(ids, e.store, e.policy, n, now, justInserted)
	for _, id := range victims {
		e.graph.RemoveAll(id)
		// Remove cannot fail: the victim was just selected from the
		// live store under the same lock.
		_ = e.store.Remove(id)
		e.evictions++
	}
	log.Printf("[ENGINE] evicted %d of %d entries (capacity %d)", len(victims), e.store.Len()+len(victims), e.capacity)
	pool.PutIDSlice(victims)
}

// Get returns a copy of the entry. Get is a pure read: it does not update
// access statistics (use Touch, or Recall which touches what it surfaces).
func (e *Engine) Get(id store.ID) (*store.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	entry, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return entry, nil
}

// Touch records an access on the entry: bumps its access count, refreshes
// its last-accessed time, and reinforces its strength.
func (e *Engine) Touch(id store.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	return e.store.Touch(id, e.now())
}

// Remove deletes the entry and all of its edges in one operation.
func (e *Engine) Remove(id store.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.store.Remove(id); err != nil {
		return err
	}
	e.graph.RemoveAll(id)
	return nil
}

// Link creates or reinforces the association between two stored entries.
// A repeated link averages the proposed weight with the existing one.
//
// Returns ErrNotFound if either endpoint is not stored, ErrSelfLoop for
// a == b, ErrInvalidWeight for weights outside [0, 1].
func (e *Engine) Link(a, b store.ID, weight float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	for _, id := range [2]store.ID{a, b} {
		if !e.store.Has(id) {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
	}
	return e.graph.Link(a, b, weight)
}

// Neighbors returns the weighted edges incident to a stored entry.
// The returned map is a copy.
func (e *Engine) Neighbors(id store.ID) (map[store.ID]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	if !e.store.Has(id) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e.graph.Neighbors(id), nil
}

// Recall spreads activation from the start entry for depth rounds and
// returns the surviving entries, strongest first. The start entry and
// every surfaced entry are touched, so recall itself reinforces memory.
//
// Depth 0 is valid and returns no results (but still touches the start).
func (e *Engine) Recall(id store.ID, depth int) ([]recall.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	now := e.now()
	if err := e.store.Touch(id, now); err != nil {
		return nil, err
	}

	results, err := recall.Spread(e.graph.ForEachNeighbor, id, depth, e.recallOpts)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		// Surfaced IDs came from live edges under this lock.
		_ = e.store.Touch(r.ID, now)
	}
	return results, nil
}

// Len returns the number of stored entries.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Len()
}

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Entries   int    `json:"entries"`
	Edges     int    `json:"edges"`
	Dimension int    `json:"dimension"`
	Capacity  int    `json:"capacity"`
	Evictions uint64 `json:"evictions"`
	NextID    uint64 `json:"next_id"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Entries:   e.store.Len(),
		Edges:     e.graph.EdgeCount(),
		Dimension: e.store.Dimension(),
		Capacity:  e.capacity,
		Evictions: e.evictions,
		NextID:    uint64(e.store.NextID()),
	}
}

// ForEach calls fn with a copy of every stored entry until fn returns
// false. Iteration order is unspecified.
func (e *Engine) ForEach(fn func(*store.Entry) bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	e.store.ForEach(func(entry *store.Entry) bool {
		return fn(entry.Clone())
	})
	return nil
}

// TrainingPair is one edge rendered for downstream consumers: the two
// endpoint vectors and the association weight between them.
type TrainingPair struct {
	A      []float32 `json:"a"`
	B      []float32 `json:"b"`
	Weight float64   `json:"weight"`
}

// TrainingPairs exports every association as a pair of vectors with its
// weight, in canonical edge order. The slices are copies.
func (e *Engine) TrainingPairs() ([]TrainingPair, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	edges := e.graph.Edges()
	pairs := make([]TrainingPair, 0, len(edges))
	for _, edge := range edges {
		a, okA := e.store.Get(edge.A)
		b, okB := e.store.Get(edge.B)
		if !okA || !okB {
			continue
		}
		pairs = append(pairs, TrainingPair{
			A:      a.Vector,
			B:      b.Vector,
			Weight: edge.Weight,
		})
	}
	return pairs, nil
}

// Save serializes the complete engine state into a snapshot blob.
//
// Save holds the write lock: a snapshot must not interleave with any
// mutation, and the cloning pass is cheap relative to the encode.
func (e *Engine) Save() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	state := &snapshot.State{
		Dimension: e.store.Dimension(),
		NextID:    e.store.NextID(),
		Entries:   make([]*store.Entry, 0, e.store.Len()),
		Edges:     e.graph.Edges(),
	}
	e.store.ForEach(func(entry *store.Entry) bool {
		state.Entries = append(state.Entries, entry.Clone())
		return true
	})

	return snapshot.Encode(state)
}

// Restore replaces the engine state with the decoded snapshot.
//
// The blob is decoded and validated, and a complete replacement store and
// graph are built, before anything is swapped in. On any error, including
// ErrCorruptSnapshot, the prior state is untouched.
func (e *Engine) Restore(blob []byte) error {
	state, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	// e.dimension is immutable after New, so this check is safe before
	// the lock; e.store is not, and is only touched under it.
	if state.Dimension != e.dimension {
		return fmt.Errorf("%w: snapshot dimension %d, engine dimension %d",
			ErrDimensionMismatch, state.Dimension, e.dimension)
	}

	// Build the replacement world outside the lock.
	fresh := store.New(state.Dimension)
	if err := fresh.Reset(state.Entries, state.NextID); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	freshGraph := graph.New()
	if err := freshGraph.Reset(state.Edges); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.store = fresh
	e.graph = freshGraph
	return nil
}

// Close marks the engine closed. Subsequent operations return ErrClosed.
// Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
