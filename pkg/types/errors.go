// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

var (
	// ErrNotFound reports a missing entity, or an opportunity that does not
	// exist or is no longer pending.
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite rejects an embedding write based on an older source
	// version than the one already stored.
	ErrStaleWrite = errors.New("stale embedding write")

	// ErrDimensionMismatch reports a vector whose length differs from the
	// configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrQueueClosed is returned when enqueueing after the pipeline stopped.
	ErrQueueClosed = errors.New("job queue closed")

	// ErrInvalidEntity marks malformed entity references or corrupted input.
	ErrInvalidEntity = errors.New("invalid entity")
)
