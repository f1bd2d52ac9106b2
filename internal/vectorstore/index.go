// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorstore

import (
	"math"
	"slices"
	"time"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// Index is an immutable snapshot of embeddings. It is safe for concurrent
// reads.
type Index struct {
	entries []types.Embedding
	byRef   map[types.EntityRef]int
}

// NewIndex builds an index over embs. The slice is not copied.
func NewIndex(embs []types.Embedding) *Index {
	idx := &Index{
		entries: embs,
		byRef:   make(map[types.EntityRef]int, len(embs)),
	}
	for i, e := range embs {
		idx.byRef[e.Ref] = i
	}
	return idx
}

// Len returns the number of embeddings in the snapshot.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Get returns the embedding for ref if present.
func (idx *Index) Get(ref types.EntityRef) (types.Embedding, bool) {
	i, ok := idx.byRef[ref]
	if !ok {
		return types.Embedding{}, false
	}
	return idx.entries[i], true
}

// Embeddings returns the snapshot contents ordered by ref.
func (idx *Index) Embeddings() []types.Embedding {
	return idx.entries
}

// TopNeighbors returns up to k embeddings most similar to vec with
// similarity >= threshold, excluding refs for which skip returns true.
// Results are ordered by similarity descending, then by ref. k <= 0 means
// no limit.
func (idx *Index) TopNeighbors(vec []float32, k int, threshold float64, skip func(types.EntityRef) bool) []types.Neighbor {
	var out []types.Neighbor
	for _, e := range idx.entries {
		if skip != nil && skip(e.Ref) {
			continue
		}
		sim := Cosine(vec, e.Vector)
		if sim < threshold {
			continue
		}
		out = append(out, types.Neighbor{Ref: e.Ref, Similarity: sim})
	}

	slices.SortFunc(out, func(a, b types.Neighbor) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		case a.Ref.Less(b.Ref):
			return -1
		case b.Ref.Less(a.Ref):
			return 1
		default:
			return 0
		}
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length, empty vectors and zero vectors have similarity 0.
func Cosine(a, b []float32) float64 {
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

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return max(-1, min(1, sim))
}

func timeFromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
