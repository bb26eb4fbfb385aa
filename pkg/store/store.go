// Package store implements the entry store for the Freeform memory engine.
//
// The store owns concept payloads, their embedding vectors, caller metadata,
// and per-entry access statistics. It assigns stable, strictly increasing
// identifiers that are never reused, even after an entry is evicted.
//
// The store is a plain data structure: it performs no locking of its own.
// The engine facade serializes all access behind a single RWMutex so that
// multi-step operations (insert, link, evict) appear atomic to callers.
//
// Example:
//
//	s := store.New(4)
//	entry, err := s.Insert("coffee", []float32{0.1, 0.9, 0, 0}, nil, time.Now())
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(entry.ID) // 1
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Errors returned by store operations.
var (
	ErrNotFound          = errors.New("store: entry not found")
	ErrDimensionMismatch = errors.New("store: vector dimension mismatch")
)

// DefaultStrengthBoost is the multiplicative strength increase applied on
// each access, capped at 1.0.
const DefaultStrengthBoost = 1.1

// ID identifies a stored entry. IDs are assigned from a monotonic counter
// and survive snapshot round-trips; an ID is never reassigned.
type ID uint64

// Entry is one stored concept: the original payload, its embedding vector,
// caller-supplied metadata, and access statistics.
//
// Payload and Metadata are opaque to the engine. Strength starts at 1.0,
// is boosted on access, and is consumed only by eviction scoring.
type Entry struct {
	ID           ID             `json:"id"`
	Payload      string         `json:"payload"`
	Vector       []float32      `json:"vector"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int64          `json:"access_count"`
	Strength     float64        `json:"strength"`
}

// Clone returns a deep copy of the entry. Returned copies protect internal
// state from external mutation (vectors and metadata are copied too).
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e

	cp.Vector = make([]float32, len(e.Vector))
	copy(cp.Vector, e.Vector)

	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Store holds all entries and the monotonic ID counter.
//
// Not safe for concurrent use; the engine facade owns the lock.
type Store struct {
	dimension int
	boost     float64
	nextID    ID
	entries   map[ID]*Entry
}

// New creates an empty store for vectors of the given dimension.
// The first assigned ID is 1.
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		boost:     DefaultStrengthBoost,
		nextID:    1,
		entries:   make(map[ID]*Entry),
	}
}

// Dimension returns the configured vector dimension. Every vector in the
// store has exactly this length.
func (s *Store) Dimension() int {
	return s.dimension
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// NextID returns the ID that the next insertion will receive. Persisted by
// the snapshot codec so restored stores keep assigning fresh IDs.
func (s *Store) NextID() ID {
	return s.nextID
}

// Insert creates an entry for the payload and pre-computed vector, assigns
// the next ID, and returns the live entry. Strength starts at 1.0 and both
// timestamps are set to now.
//
// Returns ErrDimensionMismatch if the vector length disagrees with the
// store's dimension. On error no entry is created and no ID is consumed.
func (s *Store) Insert(payload string, vec []float32, metadata map[string]any, now time.Time) (*Entry, error) {
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimension)
	}

	vector := make([]float32, len(vec))
	copy(vector, vec)

	var md map[string]any
	if metadata != nil {
		md = make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}

	entry := &Entry{
		ID:           s.nextID,
		Payload:      payload,
		Vector:       vector,
		Metadata:     md,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  0,
		Strength:     1.0,
	}
	s.entries[entry.ID] = entry
	s.nextID++

	return entry, nil
}

// Get returns a deep copy of the entry, or false if the ID is absent.
// Get never updates access statistics; use Touch for that.
func (s *Store) Get(id ID) (*Entry, bool) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Has reports whether the ID is stored.
func (s *Store) Has(id ID) bool {
	_, ok := s.entries[id]
	return ok
}

// Touch records an access: increments AccessCount, moves LastAccessed to
// now, and boosts Strength multiplicatively (capped at 1.0).
//
// Returns ErrNotFound if the ID is absent.
func (s *Store) Touch(id ID, now time.Time) error {
	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	entry.AccessCount++
	entry.LastAccessed = now
	entry.Strength *= s.boost
	if entry.Strength > 1.0 {
		entry.Strength = 1.0
	}
	return nil
}

// Remove deletes the entry. Removing an absent ID is an error, not a
// no-op: a double remove surfaces a caller bug instead of hiding it.
// Edge cleanup is the association graph's job and is coordinated by the
// engine facade in the same logical operation.
func (s *Store) Remove(id ID) error {
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

// IDs returns all stored IDs in ascending order.
func (s *Store) IDs() []ID {
	ids := make([]ID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForEach calls fn for every live entry until fn returns false.
//
// The callback receives the internal entry, not a copy, to keep the
// similarity scan allocation-free. Callbacks must not mutate entries or
// retain them past the call; external callers go through the facade,
// which hands out clones.
func (s *Store) ForEach(fn func(*Entry) bool) {
	for _, entry := range s.entries {
		if !fn(entry) {
			return
		}
	}
}

// Reset atomically replaces the store contents with the given entries and
// ID counter. Used exclusively by snapshot restore, which validates the
// state before calling; Reset only guards the invariants that would
// corrupt the store itself.
func (s *Store) Reset(entries []*Entry, nextID ID) error {
	fresh := make(map[ID]*Entry, len(entries))
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %d has %d, want %d", ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
		if _, dup := fresh[e.ID]; dup {
			return fmt.Errorf("store: duplicate entry id %d", e.ID)
		}
		if e.ID >= nextID {
			return fmt.Errorf("store: entry id %d not below counter %d", e.ID, nextID)
		}
		fresh[e.ID] = e.Clone()
	}

	s.entries = fresh
	s.nextID = nextID
	return nil
}
