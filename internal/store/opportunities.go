// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// UpsertOpportunity commits a scored draft. There is at most one row per
// canonical pair: an existing pending or actioned row gets the new topic,
// reason and score, and keeps its status. A dismissed row is left alone
// until its dismissal is older than cooldown, after which it is reactivated
// as a fresh pending opportunity. The status check happens inside the same
// statement, so a concurrent dismissal is never overwritten.
//
// It reports whether a row was inserted or updated.
func (s *Store) UpsertOpportunity(ctx context.Context, d types.OpportunityDraft, now time.Time, cooldown time.Duration) (bool, error) {
	p := types.NewPair(d.Pair.A, d.Pair.B)
	if p.A == p.B {
		return false, fmt.Errorf("%w: opportunity pair %s", types.ErrInvalidEntity, p.Key())
	}
	score := min(max(d.MatchScore, 0), 100)
	cutoff := now.Add(-cooldown).UnixNano()

	return do(ctx, s, func() (bool, error) {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO opportunities (id, researcher_a, researcher_b, topic, match_score, reason, status, created_at, updated_at, dismissed_at)
			 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, 0)
			 ON CONFLICT(researcher_a, researcher_b) DO UPDATE SET
				topic=excluded.topic,
				match_score=excluded.match_score,
				reason=excluded.reason,
				updated_at=excluded.updated_at,
				created_at=CASE WHEN status = 'dismissed' THEN excluded.created_at ELSE created_at END,
				dismissed_at=CASE WHEN status = 'dismissed' THEN 0 ELSE dismissed_at END,
				status=CASE WHEN status = 'dismissed' THEN 'pending' ELSE status END
			 WHERE status != 'dismissed' OR dismissed_at <= ?`,
			uuid.NewString(), p.A, p.B, d.Topic, score, d.Reason,
			now.UnixNano(), now.UnixNano(), cutoff,
		)
		if err != nil {
			return false, fmt.Errorf("upserting opportunity %s: %w", p.Key(), err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	})
}

const opportunityColumns = `id, researcher_a, researcher_b, topic, match_score, reason, status, created_at, updated_at, dismissed_at`

// ListOpportunities returns opportunities matching f ordered by score
// descending, then pair. Without a status filter dismissed rows are hidden.
func (s *Store) ListOpportunities(ctx context.Context, f types.OpportunityFilter) ([]types.Opportunity, error) {
	var where []string
	var args []any

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	} else {
		where = append(where, "status != 'dismissed'")
	}
	if f.MinScore > 0 {
		where = append(where, "match_score >= ?")
		args = append(args, f.MinScore)
	}
	if f.Pair != nil {
		p := types.NewPair(f.Pair.A, f.Pair.B)
		where = append(where, "researcher_a = ? AND researcher_b = ?")
		args = append(args, p.A, p.B)
	}

	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY match_score DESC, researcher_a, researcher_b`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return do(ctx, s, func() ([]types.Opportunity, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("listing opportunities: %w", err)
		}
		defer rows.Close()

		var out []types.Opportunity
		for rows.Next() {
			o, err := scanOpportunity(rows)
			if err != nil {
				return nil, fmt.Errorf("scanning opportunity: %w", err)
			}
			out = append(out, o)
		}
		return out, rows.Err()
	})
}

// GetOpportunity returns one opportunity by id, or types.ErrNotFound.
func (s *Store) GetOpportunity(ctx context.Context, id string) (types.Opportunity, error) {
	return do(ctx, s, func() (types.Opportunity, error) {
		row := s.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
		o, err := scanOpportunity(row)
		if errors.Is(err, sql.ErrNoRows) {
			return o, fmt.Errorf("opportunity %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return o, fmt.Errorf("reading opportunity %s: %w", id, err)
		}
		return o, nil
	})
}

// FinalizeOpportunity moves a pending opportunity to status (actioned or
// dismissed). Unknown ids and rows that are no longer pending return
// types.ErrNotFound.
func (s *Store) FinalizeOpportunity(ctx context.Context, id string, status types.OpportunityStatus, now time.Time) error {
	if status != types.StatusActioned && status != types.StatusDismissed {
		return fmt.Errorf("cannot finalize opportunity as %q", status)
	}
	var dismissedAt int64
	if status == types.StatusDismissed {
		dismissedAt = now.UnixNano()
	}

	return exec(ctx, s, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE opportunities SET status = ?, updated_at = ?, dismissed_at = ?
			 WHERE id = ? AND status = 'pending'`,
			string(status), now.UnixNano(), dismissedAt, id,
		)
		if err != nil {
			return fmt.Errorf("updating opportunity %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("pending opportunity %s: %w", id, types.ErrNotFound)
		}
		return nil
	})
}

// DeletePendingOpportunity removes the opportunity with id if it is still
// pending and reports whether it did.
func (s *Store) DeletePendingOpportunity(ctx context.Context, id string) (bool, error) {
	return do(ctx, s, func() (bool, error) {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM opportunities WHERE id = ? AND status = 'pending'`, id)
		if err != nil {
			return false, fmt.Errorf("deleting opportunity %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	})
}

// SuppressedPairs returns the pairs whose dismissal is younger than
// cooldown at now.
func (s *Store) SuppressedPairs(ctx context.Context, now time.Time, cooldown time.Duration) (map[types.Pair]bool, error) {
	cutoff := now.Add(-cooldown).UnixNano()
	return do(ctx, s, func() (map[types.Pair]bool, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT researcher_a, researcher_b FROM opportunities
			 WHERE status = 'dismissed' AND dismissed_at > ?`, cutoff)
		if err != nil {
			return nil, fmt.Errorf("listing suppressed pairs: %w", err)
		}
		defer rows.Close()

		out := make(map[types.Pair]bool)
		for rows.Next() {
			var p types.Pair
			if err := rows.Scan(&p.A, &p.B); err != nil {
				return nil, fmt.Errorf("scanning suppressed pair: %w", err)
			}
			out[p] = true
		}
		return out, rows.Err()
	})
}

// DeleteOpportunitiesFor removes every opportunity involving researcherID
// and returns how many were removed.
func (s *Store) DeleteOpportunitiesFor(ctx context.Context, researcherID string) (int, error) {
	return do(ctx, s, func() (int, error) {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM opportunities WHERE researcher_a = ?1 OR researcher_b = ?1`, researcherID)
		if err != nil {
			return 0, fmt.Errorf("deleting opportunities of %s: %w", researcherID, err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	})
}

func scanOpportunity(sc scanner) (types.Opportunity, error) {
	var o types.Opportunity
	var status string
	var created, updated, dismissed int64
	if err := sc.Scan(&o.ID, &o.Pair.A, &o.Pair.B, &o.Topic, &o.MatchScore, &o.Reason,
		&status, &created, &updated, &dismissed); err != nil {
		return o, err
	}
	o.Status = types.OpportunityStatus(status)
	o.CreatedAt = fromNanos(created)
	o.UpdatedAt = fromNanos(updated)
	o.DismissedAt = fromNanos(dismissed)
	return o, nil
}
