// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Embedding is the stored vector for one entity.
type Embedding struct {
	Ref    EntityRef `json:"ref"`
	Vector []float32 `json:"-"`

	// LowConfidence is set when the vector came from the deterministic
	// fallback rather than an inference backend.
	LowConfidence bool `json:"low_confidence"`

	// ContentHash is the hex sha256 of the source text.
	ContentHash string `json:"content_hash"`

	// SourceVersion orders writes for the same key; older versions are rejected.
	SourceVersion int64 `json:"source_version"`

	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Neighbor is one nearest-neighbour hit.
type Neighbor struct {
	Ref        EntityRef `json:"ref"`
	Similarity float64   `json:"similarity"`
}

// SimilarResearcher is a FindSimilar hit joined with researcher details.
type SimilarResearcher struct {
	Researcher Researcher `json:"researcher"`
	Similarity float64    `json:"similarity"`
}

// SimilarPublication is a publication match for a researcher.
type SimilarPublication struct {
	Publication Publication `json:"publication"`
	Similarity  float64     `json:"similarity"`
}
