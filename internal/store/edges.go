// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// UpsertEdge inserts or replaces a collaboration edge. The pair is stored
// in canonical order.
func (s *Store) UpsertEdge(ctx context.Context, e types.CollaborationEdge) error {
	p := e.Pair()
	if p.A == p.B {
		return fmt.Errorf("%w: self edge for %s", types.ErrInvalidEntity, p.A)
	}
	return exec(ctx, s, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO collaboration_edges (researcher_a, researcher_b, strength, last_collaborated)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(researcher_a, researcher_b) DO UPDATE SET
				strength=excluded.strength, last_collaborated=excluded.last_collaborated`,
			p.A, p.B, e.Strength, nanos(e.LastCollaborated),
		)
		if err != nil {
			return fmt.Errorf("upserting edge %s: %w", p.Key(), err)
		}
		return nil
	})
}

// ListEdges returns every collaboration edge in canonical pair order.
func (s *Store) ListEdges(ctx context.Context) ([]types.CollaborationEdge, error) {
	return do(ctx, s, func() ([]types.CollaborationEdge, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT researcher_a, researcher_b, strength, last_collaborated
			 FROM collaboration_edges ORDER BY researcher_a, researcher_b`)
		if err != nil {
			return nil, fmt.Errorf("listing edges: %w", err)
		}
		defer rows.Close()

		var out []types.CollaborationEdge
		for rows.Next() {
			var e types.CollaborationEdge
			var last int64
			if err := rows.Scan(&e.ResearcherA, &e.ResearcherB, &e.Strength, &last); err != nil {
				return nil, fmt.Errorf("scanning edge: %w", err)
			}
			e.LastCollaborated = fromNanos(last)
			out = append(out, e)
		}
		return out, rows.Err()
	})
}

// RebuildEdgesFromAuthorships replaces all collaboration edges with edges
// derived from co-authorship: strength is the number of jointly authored
// publications and the last collaboration is the newest such publication.
// It returns the number of edges written.
func (s *Store) RebuildEdgesFromAuthorships(ctx context.Context) (int, error) {
	return do(ctx, s, func() (int, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM collaboration_edges`); err != nil {
			return 0, fmt.Errorf("clearing edges: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO collaboration_edges (researcher_a, researcher_b, strength, last_collaborated)
			 SELECT a1.researcher_id, a2.researcher_id, count(*), max(p.date)
			 FROM authorships a1
			 JOIN authorships a2 ON a1.publication_id = a2.publication_id
				AND a1.researcher_id < a2.researcher_id
			 JOIN publications p ON p.id = a1.publication_id
			 GROUP BY a1.researcher_id, a2.researcher_id`)
		if err != nil {
			return 0, fmt.Errorf("deriving edges: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), tx.Commit()
	})
}
