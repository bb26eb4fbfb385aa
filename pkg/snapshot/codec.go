// Package snapshot implements serialization of the complete memory engine
// state, plus the persistence-medium collaborators around it.
//
// The codec turns store + graph + ID counter into one opaque blob and back,
// such that restoring a saved blob reproduces an observationally identical
// engine: same recall results, same eviction behavior going forward. A
// restore is all-or-nothing: a malformed blob is rejected in full with
// ErrCorruptSnapshot and never partially applied.
//
// Blob layout: a JSON envelope {version, checksum, state} where checksum is
// CRC32 (IEEE) of the serialized state. The checksum catches truncation and
// bit rot before the state is even unmarshaled; structural validation
// catches everything else.
//
// The rest of the system treats the blob as opaque bytes. Where the blob
// lives (file, Badger archive, object store) is the caller's business.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/madmoo-Pi/Freeform-ai/pkg/graph"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// ErrCorruptSnapshot is returned for any blob that cannot be restored:
// framing damage, checksum mismatch, version skew, or state that violates
// engine invariants. Restore guarantees no partial mutation on this error.
var ErrCorruptSnapshot = errors.New("snapshot: corrupt snapshot")

// formatVersion is bumped on incompatible layout changes.
const formatVersion = 1

// State is the complete serializable engine state.
type State struct {
	Dimension int            `json:"dimension"`
	NextID    store.ID       `json:"next_id"`
	Entries   []*store.Entry `json:"entries"`
	Edges     []graph.Edge   `json:"edges"`
}

type envelope struct {
	Version  int             `json:"version"`
	Checksum uint32          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// Encode serializes the state into a self-verifying blob. Entries are
// sorted by ID and edges arrive in canonical order from the graph, so
// identical state always encodes to identical bytes.
func Encode(state *State) ([]byte, error) {
	sort.Slice(state.Entries, func(i, j int) bool {
		return state.Entries[i].ID < state.Entries[j].ID
	})

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode state: %w", err)
	}

	blob, err := json.Marshal(envelope{
		Version:  formatVersion,
		Checksum: crc32.ChecksumIEEE(raw),
		State:    raw,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode envelope: %w", err)
	}
	return blob, nil
}

// Decode verifies and unmarshals a blob produced by Encode. Every failure
// mode wraps ErrCorruptSnapshot; a successfully decoded State has passed
// full structural validation and can be applied without further checks.
func Decode(blob []byte) (*State, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrCorruptSnapshot, err)
	}

	if env.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, env.Version)
	}
	if sum := crc32.ChecksumIEEE(env.State); sum != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)",
			ErrCorruptSnapshot, env.Checksum, sum)
	}

	var state State
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("%w: malformed state: %v", ErrCorruptSnapshot, err)
	}

	if err := validate(&state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return &state, nil
}

// validate checks every engine invariant the state must satisfy before it
// may replace live data.
func validate(s *State) error {
	if s.Dimension <= 0 {
		return fmt.Errorf("non-positive dimension %d", s.Dimension)
	}
	if s.NextID < 1 {
		return fmt.Errorf("id counter %d below 1", s.NextID)
	}

	seen := make(map[store.ID]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		if e == nil {
			return fmt.Errorf("nil entry")
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("duplicate entry id %d", e.ID)
		}
		if e.ID >= s.NextID {
			return fmt.Errorf("entry id %d not below counter %d", e.ID, s.NextID)
		}
		if len(e.Vector) != s.Dimension {
			return fmt.Errorf("entry %d vector has %d dimensions, want %d", e.ID, len(e.Vector), s.Dimension)
		}
		if e.Strength < 0 || e.Strength > 1 {
			return fmt.Errorf("entry %d strength %g outside [0, 1]", e.ID, e.Strength)
		}
		if e.AccessCount < 0 {
			return fmt.Errorf("entry %d negative access count %d", e.ID, e.AccessCount)
		}
		seen[e.ID] = struct{}{}
	}

	pairs := make(map[[2]store.ID]struct{}, len(s.Edges))
	for _, edge := range s.Edges {
		if edge.A == edge.B {
			return fmt.Errorf("self-loop on id %d", edge.A)
		}
		a, b := edge.A, edge.B
		if a > b {
			a, b = b, a
		}
		if _, dup := pairs[[2]store.ID{a, b}]; dup {
			return fmt.Errorf("duplicate edge (%d, %d)", a, b)
		}
		pairs[[2]store.ID{a, b}] = struct{}{}

		if _, ok := seen[edge.A]; !ok {
			return fmt.Errorf("edge references missing entry %d", edge.A)
		}
		if _, ok := seen[edge.B]; !ok {
			return fmt.Errorf("edge references missing entry %d", edge.B)
		}
		if edge.Weight < 0 || edge.Weight > 1 {
			return fmt.Errorf("edge (%d, %d) weight %g outside [0, 1]", edge.A, edge.B, edge.Weight)
		}
	}

	return nil
}
