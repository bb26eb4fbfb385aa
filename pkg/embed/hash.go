package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/madmoo-Pi/Freeform-ai/pkg/math/vector"
)

// HashProvider is a deterministic offline provider: the payload's FNV-1a
// hash seeds a PRNG that fills the vector, which is then normalized to
// unit length. Identical payloads always produce identical vectors.
//
// The vectors carry no semantic meaning. HashProvider exists for tests and
// for running the shell without an embedding server; anything that needs
// real similarity should use HTTPProvider.
type HashProvider struct {
	dims int
}

// NewHash creates a HashProvider emitting vectors of the given dimension.
func NewHash(dims int) *HashProvider {
	return &HashProvider{dims: dims}
}

// Embed derives a unit-length vector from the payload hash.
// An empty payload is malformed and wraps ErrEmbedding.
func (p *HashProvider) Embed(_ context.Context, payload string) ([]float32, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrEmbedding)
	}

	h := fnv.New64a()
	h.Write([]byte(payload))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, p.dims)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	vector.NormalizeInPlace(vec)

	return vec, nil
}

// Dimensions returns the configured vector length.
func (p *HashProvider) Dimensions() int {
	return p.dims
}
