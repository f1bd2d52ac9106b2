// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Fallback returns a unit vector of length dim derived only from text. The
// sha256 of text seeds a PCG generator, so the same text always maps to the
// same vector and unrelated texts are close to orthogonal.
func Fallback(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))

	v := make([]float64, dim)
	var norm float64
	for i := range v {
		v[i] = rng.NormFloat64()
		norm += v[i] * v[i]
	}
	return normalize(v, math.Sqrt(norm))
}

func normalize(v []float64, norm float64) []float32 {
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out
}
