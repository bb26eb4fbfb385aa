// Package vector provides vector math primitives for the Freeform memory
// engine.
//
// All similarity and normalization code in the repository lives here. Use
// these functions instead of reimplementing them so every component agrees
// on precision and edge-case behavior.
//
// Main Functions:
//   - CosineSimilarity: similarity between two embeddings (most common)
//   - DotProduct: dot product (equals cosine for normalized vectors)
//   - Normalize: returns a unit-length copy of a vector
//   - NormalizeInPlace: normalizes a vector without allocating
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical direction, 0 = orthogonal.
//
// Accumulates in float64 for precision even though inputs are float32.
// Mismatched lengths and zero vectors yield 0 rather than an error; the
// calling layer is responsible for dimension validation.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := vector.CosineSimilarity(a, b) // 0.9746...
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	// Rounding can push the ratio a few ULPs past ±1 for parallel vectors
	// (e.g. 1.0000000000000002 for identical inputs). Clamp so the stated
	// range holds and downstream weight validation never sees > 1.
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// DotProduct calculates the dot product of two float32 vectors.
// Returns float64 for precision. For unit-length vectors this equals
// cosine similarity and skips two square roots.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize returns a unit-length copy of the vector. The input is not
// modified. A zero vector normalizes to a zero vector of the same length.
func Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}

	normalized := make([]float32, len(vec))
	if sumSquares == 0 {
		return normalized
	}

	norm := math.Sqrt(sumSquares)
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// After the call the vector has magnitude 1, unless it was all zeros.
func NormalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
}
