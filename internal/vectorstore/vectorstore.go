// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorstore keeps one embedding per entity and answers
// nearest-neighbour queries by cosine similarity.
//
// Vectors are persisted as little-endian float32 BLOBs in the shared SQLite
// database. Queries run against an Index, an immutable in-memory snapshot,
// so a ranking sweep sees a consistent view while writers continue.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// Store is the SQLite-backed vector store.
type Store struct {
	db  *sql.DB
	dim int
}

// New creates the embeddings table in db if needed. Every stored vector
// must have length dim.
func New(db *sql.DB, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		vector BLOB NOT NULL,
		low_confidence INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		source_version INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings table: %w", err)
	}
	return &Store{db: db, dim: dim}, nil
}

// Dimension returns the configured vector length.
func (s *Store) Dimension() int {
	return s.dim
}

// Upsert stores e atomically. A write whose SourceVersion is older than the
// stored one is rejected with types.ErrStaleWrite; an equal version
// replaces the stored vector.
func (s *Store) Upsert(ctx context.Context, e types.Embedding) error {
	if len(e.Vector) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(e.Vector), s.dim)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (entity_type, entity_id, vector, low_confidence, content_hash, source_version, model, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			vector=excluded.vector, low_confidence=excluded.low_confidence,
			content_hash=excluded.content_hash, source_version=excluded.source_version,
			model=excluded.model, updated_at=excluded.updated_at
		 WHERE source_version <= excluded.source_version`,
		string(e.Ref.Type), e.Ref.ID, encode(e.Vector), e.LowConfidence, e.ContentHash,
		e.SourceVersion, e.Model, e.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting embedding %s: %w", e.Ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("embedding %s at version %d: %w", e.Ref, e.SourceVersion, types.ErrStaleWrite)
	}
	return nil
}

const columns = `entity_type, entity_id, vector, low_confidence, content_hash, source_version, model, updated_at`

// Get returns the stored embedding for ref, or types.ErrNotFound.
func (s *Store) Get(ctx context.Context, ref types.EntityRef) (types.Embedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM embeddings WHERE entity_type = ? AND entity_id = ?`,
		string(ref.Type), ref.ID)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("embedding %s: %w", ref, types.ErrNotFound)
	}
	if err != nil {
		return e, fmt.Errorf("reading embedding %s: %w", ref, err)
	}
	return e, nil
}

// Delete removes the embedding for ref. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, ref types.EntityRef) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE entity_type = ? AND entity_id = ?`,
		string(ref.Type), ref.ID,
	); err != nil {
		return fmt.Errorf("deleting embedding %s: %w", ref, err)
	}
	return nil
}

// Snapshot loads every embedding of type t (all types when t is empty)
// into an Index.
func (s *Store) Snapshot(ctx context.Context, t types.EntityType) (*Index, error) {
	query := `SELECT ` + columns + ` FROM embeddings`
	var args []any
	if t != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY entity_type, entity_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	defer rows.Close()

	var all []types.Embedding
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	return NewIndex(all), nil
}

// TopNeighbors returns up to k stored entities of type t most similar to
// vec, with similarity >= threshold. k <= 0 means no limit.
func (s *Store) TopNeighbors(ctx context.Context, vec []float32, k int, threshold float64, t types.EntityType) ([]types.Neighbor, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", types.ErrDimensionMismatch, len(vec), s.dim)
	}
	idx, err := s.Snapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	return idx.TopNeighbors(vec, k, threshold, nil), nil
}

// Similarity returns the cosine similarity between two stored embeddings.
func (s *Store) Similarity(ctx context.Context, a, b types.EntityRef) (float64, error) {
	ea, err := s.Get(ctx, a)
	if err != nil {
		return 0, err
	}
	eb, err := s.Get(ctx, b)
	if err != nil {
		return 0, err
	}
	return Cosine(ea.Vector, eb.Vector), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (types.Embedding, error) {
	var e types.Embedding
	var typ string
	var blob []byte
	var updated int64
	if err := sc.Scan(&typ, &e.Ref.ID, &blob, &e.LowConfidence, &e.ContentHash, &e.SourceVersion, &e.Model, &updated); err != nil {
		return e, err
	}
	e.Ref.Type = types.EntityType(typ)
	e.Vector = decode(blob)
	if updated != 0 {
		e.UpdatedAt = timeFromNanos(updated)
	}
	return e, nil
}

// encode packs v as little-endian float32s.
func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decode is the inverse of encode.
func decode(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
