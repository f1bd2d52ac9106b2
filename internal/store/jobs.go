// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// SaveJob inserts or replaces the persisted state of an embedding job.
func (s *Store) SaveJob(ctx context.Context, j types.EmbeddingJob) error {
	return exec(ctx, s, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO embedding_jobs (entity_type, entity_id, state, attempts, last_error, not_before, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(entity_type, entity_id) DO UPDATE SET
				state=excluded.state, attempts=excluded.attempts, last_error=excluded.last_error,
				not_before=excluded.not_before, updated_at=excluded.updated_at`,
			string(j.Ref.Type), j.Ref.ID, string(j.State), j.Attempts, j.LastError,
			nanos(j.NotBefore), nanos(j.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("saving job %s: %w", j.Ref, err)
		}
		return nil
	})
}

// GetJob returns the job for ref, or types.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, ref types.EntityRef) (types.EmbeddingJob, error) {
	return do(ctx, s, func() (types.EmbeddingJob, error) {
		row := s.db.QueryRowContext(ctx,
			`SELECT entity_type, entity_id, state, attempts, last_error, not_before, updated_at
			 FROM embedding_jobs WHERE entity_type = ? AND entity_id = ?`,
			string(ref.Type), ref.ID)
		j, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return j, fmt.Errorf("job %s: %w", ref, types.ErrNotFound)
		}
		if err != nil {
			return j, fmt.Errorf("reading job %s: %w", ref, err)
		}
		return j, nil
	})
}

// ListJobs returns jobs in any of states, or all jobs when states is empty,
// ordered by entity ref.
func (s *Store) ListJobs(ctx context.Context, states ...types.JobState) ([]types.EmbeddingJob, error) {
	query := `SELECT entity_type, entity_id, state, attempts, last_error, not_before, updated_at FROM embedding_jobs`
	var args []any
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE state IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY entity_type, entity_id`

	return do(ctx, s, func() ([]types.EmbeddingJob, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("listing jobs: %w", err)
		}
		defer rows.Close()

		var out []types.EmbeddingJob
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				return nil, fmt.Errorf("scanning job: %w", err)
			}
			out = append(out, j)
		}
		return out, rows.Err()
	})
}

// DeleteJob removes the job for ref. Deleting an absent job is not an error.
func (s *Store) DeleteJob(ctx context.Context, ref types.EntityRef) error {
	return exec(ctx, s, func() error {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM embedding_jobs WHERE entity_type = ? AND entity_id = ?`,
			string(ref.Type), ref.ID,
		); err != nil {
			return fmt.Errorf("deleting job %s: %w", ref, err)
		}
		return nil
	})
}

func scanJob(sc scanner) (types.EmbeddingJob, error) {
	var j types.EmbeddingJob
	var typ, state string
	var notBefore, updated int64
	if err := sc.Scan(&typ, &j.Ref.ID, &state, &j.Attempts, &j.LastError, &notBefore, &updated); err != nil {
		return j, err
	}
	j.Ref.Type = types.EntityType(typ)
	j.State = types.JobState(state)
	j.NotBefore = fromNanos(notBefore)
	j.UpdatedAt = fromNanos(updated)
	return j, nil
}
