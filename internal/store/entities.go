// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// UpsertResearcher inserts or replaces a researcher record. CreatedAt is
// preserved for existing rows.
func (s *Store) UpsertResearcher(ctx context.Context, r types.Researcher) error {
	interests, _ := json.Marshal(nonNil(r.Interests))
	tags, _ := json.Marshal(nonNil(r.SDGTags))
	now := time.Now().UTC()
	created, updated := r.CreatedAt, r.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	return exec(ctx, s, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO researchers (id, name, department, interests, sdg_tags,
				scholar_id, h_index, citations, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, department=excluded.department,
				interests=excluded.interests, sdg_tags=excluded.sdg_tags,
				scholar_id=excluded.scholar_id, h_index=excluded.h_index,
				citations=excluded.citations, updated_at=excluded.updated_at`,
			r.ID, r.Name, r.Department, string(interests), string(tags),
			r.ScholarID, r.HIndex, r.Citations, nanos(created), nanos(updated),
		)
		if err != nil {
			return fmt.Errorf("upserting researcher %s: %w", r.ID, err)
		}
		return nil
	})
}

const researcherColumns = `r.id, r.name, r.department, r.interests, r.sdg_tags,
	r.scholar_id, r.h_index, r.citations, r.created_at, r.updated_at,
	(SELECT count(*) FROM authorships a WHERE a.researcher_id = r.id)`

// GetResearcher returns the researcher with the given id, or
// types.ErrNotFound.
func (s *Store) GetResearcher(ctx context.Context, id string) (types.Researcher, error) {
	return do(ctx, s, func() (types.Researcher, error) {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+researcherColumns+` FROM researchers r WHERE r.id = ?`, id)
		r, err := scanResearcher(row)
		if errors.Is(err, sql.ErrNoRows) {
			return r, fmt.Errorf("researcher %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return r, fmt.Errorf("reading researcher %s: %w", id, err)
		}
		return r, nil
	})
}

// ListResearchers returns all researchers ordered by id. A row that cannot
// be decoded fails the whole listing; see ReadResearchers.
func (s *Store) ListResearchers(ctx context.Context) ([]types.Researcher, error) {
	out, bad, err := s.ReadResearchers(ctx)
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, bad[0]
	}
	return out, nil
}

// ReadResearchers returns the researchers that decode, ordered by id, and
// one RowError per row that does not. err is set only when the table
// cannot be read at all.
func (s *Store) ReadResearchers(ctx context.Context) ([]types.Researcher, []RowError, error) {
	type result struct {
		rs  []types.Researcher
		bad []RowError
	}
	res, err := do(ctx, s, func() (result, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+researcherColumns+` FROM researchers r ORDER BY r.id`)
		if err != nil {
			return result{}, fmt.Errorf("listing researchers: %w", err)
		}
		defer rows.Close()

		var out result
		for rows.Next() {
			r, err := scanResearcher(rows)
			if errors.Is(err, types.ErrInvalidEntity) {
				out.bad = append(out.bad, RowError{Ref: types.EntityRef{Type: types.EntityResearcher, ID: r.ID}, Err: err})
				continue
			}
			if err != nil {
				return result{}, fmt.Errorf("scanning researcher: %w", err)
			}
			out.rs = append(out.rs, r)
		}
		return out, rows.Err()
	})
	return res.rs, res.bad, err
}

// RowError is a stored entity whose row could not be decoded.
type RowError struct {
	Ref types.EntityRef
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Ref, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// DeleteResearcher removes a researcher with its authorships and edges.
// Deleting an absent researcher is not an error.
func (s *Store) DeleteResearcher(ctx context.Context, id string) error {
	return exec(ctx, s, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		for _, q := range []string{
			`DELETE FROM researchers WHERE id = ?`,
			`DELETE FROM authorships WHERE researcher_id = ?`,
			`DELETE FROM collaboration_edges WHERE researcher_a = ?1 OR researcher_b = ?1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("deleting researcher %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// UpsertPublication inserts or replaces a publication and its author list.
func (s *Store) UpsertPublication(ctx context.Context, p types.Publication) error {
	tags, _ := json.Marshal(nonNil(p.SDGTags))
	now := time.Now().UTC()
	created, updated := p.CreatedAt, p.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	return exec(ctx, s, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO publications (id, title, abstract, date, department, sdg_tags, sdg_auto, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, abstract=excluded.abstract, date=excluded.date,
				department=excluded.department, sdg_tags=excluded.sdg_tags,
				sdg_auto=excluded.sdg_auto, updated_at=excluded.updated_at`,
			p.ID, p.Title, p.Abstract, nanos(p.Date), p.Department, string(tags),
			p.SDGAutoGenerated, nanos(created), nanos(updated),
		)
		if err != nil {
			return fmt.Errorf("upserting publication %s: %w", p.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM authorships WHERE publication_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clearing authorships: %w", err)
		}
		for i, author := range p.AuthorIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO authorships (publication_id, researcher_id, position) VALUES (?, ?, ?)`,
				p.ID, author, i,
			); err != nil {
				return fmt.Errorf("inserting authorship %s/%s: %w", p.ID, author, err)
			}
		}
		return tx.Commit()
	})
}

const publicationColumns = `p.id, p.title, p.abstract, p.date, p.department, p.sdg_tags, p.sdg_auto, p.created_at, p.updated_at`

// GetPublication returns the publication with the given id, or
// types.ErrNotFound.
func (s *Store) GetPublication(ctx context.Context, id string) (types.Publication, error) {
	return do(ctx, s, func() (types.Publication, error) {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+publicationColumns+` FROM publications p WHERE p.id = ?`, id)
		p, err := scanPublication(row)
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("publication %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return p, fmt.Errorf("reading publication %s: %w", id, err)
		}
		authors, err := s.authorsOf(ctx, []string{id})
		if err != nil {
			return p, err
		}
		p.AuthorIDs = authors[id]
		return p, nil
	})
}

// ListPublications returns all publications ordered by id.
func (s *Store) ListPublications(ctx context.Context) ([]types.Publication, error) {
	out, bad, err := s.ReadPublications(ctx)
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, bad[0]
	}
	return out, nil
}

// ReadPublications is ListPublications that reports undecodable rows
// instead of failing, like ReadResearchers.
func (s *Store) ReadPublications(ctx context.Context) ([]types.Publication, []RowError, error) {
	return s.readPublications(ctx, `SELECT `+publicationColumns+` FROM publications p ORDER BY p.id`)
}

// ListPublicationsByAuthor returns the publications researcherID authored,
// newest first.
func (s *Store) ListPublicationsByAuthor(ctx context.Context, researcherID string) ([]types.Publication, error) {
	return s.listPublications(ctx,
		`SELECT `+publicationColumns+` FROM publications p
		 JOIN authorships a ON a.publication_id = p.id
		 WHERE a.researcher_id = ?
		 ORDER BY p.date DESC, p.id`, researcherID)
}

func (s *Store) listPublications(ctx context.Context, query string, args ...any) ([]types.Publication, error) {
	out, bad, err := s.readPublications(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, bad[0]
	}
	return out, nil
}

func (s *Store) readPublications(ctx context.Context, query string, args ...any) ([]types.Publication, []RowError, error) {
	type result struct {
		ps  []types.Publication
		bad []RowError
	}
	res, err := do(ctx, s, func() (result, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return result{}, fmt.Errorf("listing publications: %w", err)
		}
		var out result
		for rows.Next() {
			p, err := scanPublication(rows)
			if errors.Is(err, types.ErrInvalidEntity) {
				out.bad = append(out.bad, RowError{Ref: types.EntityRef{Type: types.EntityPublication, ID: p.ID}, Err: err})
				continue
			}
			if err != nil {
				rows.Close()
				return result{}, fmt.Errorf("scanning publication: %w", err)
			}
			out.ps = append(out.ps, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return result{}, err
		}
		rows.Close()

		ids := make([]string, len(out.ps))
		for i, p := range out.ps {
			ids[i] = p.ID
		}
		authors, err := s.authorsOf(ctx, ids)
		if err != nil {
			return result{}, err
		}
		for i := range out.ps {
			out.ps[i].AuthorIDs = authors[out.ps[i].ID]
		}
		return out, nil
	})
	return res.ps, res.bad, err
}

// authorsOf returns author ids in position order keyed by publication.
func (s *Store) authorsOf(ctx context.Context, ids []string) (map[string][]string, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT publication_id, researcher_id FROM authorships ORDER BY publication_id, position`)
	if err != nil {
		return nil, fmt.Errorf("reading authorships: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var pub, researcher string
		if err := rows.Scan(&pub, &researcher); err != nil {
			return nil, fmt.Errorf("scanning authorship: %w", err)
		}
		if want[pub] {
			out[pub] = append(out[pub], researcher)
		}
	}
	return out, rows.Err()
}

// DeletePublication removes a publication and its authorships. Deleting an
// absent publication is not an error.
func (s *Store) DeletePublication(ctx context.Context, id string) error {
	return exec(ctx, s, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM publications WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting publication %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM authorships WHERE publication_id = ?`, id); err != nil {
			return fmt.Errorf("deleting authorships of %s: %w", id, err)
		}
		return tx.Commit()
	})
}

// Entity returns the embedding view of the referenced researcher or
// publication.
func (s *Store) Entity(ctx context.Context, ref types.EntityRef) (types.Entity, error) {
	switch ref.Type {
	case types.EntityResearcher:
		r, err := s.GetResearcher(ctx, ref.ID)
		if err != nil {
			return types.Entity{}, err
		}
		return types.Entity{
			Ref:        ref,
			Text:       r.EmbeddingText(),
			Department: r.Department,
			SDGTags:    r.SDGTags,
			UpdatedAt:  r.UpdatedAt,
		}, nil
	case types.EntityPublication:
		p, err := s.GetPublication(ctx, ref.ID)
		if err != nil {
			return types.Entity{}, err
		}
		return types.Entity{
			Ref:        ref,
			Text:       p.EmbeddingText(),
			Department: p.Department,
			SDGTags:    p.SDGTags,
			UpdatedAt:  p.UpdatedAt,
		}, nil
	default:
		return types.Entity{}, fmt.Errorf("%w: unknown entity type %q", types.ErrInvalidEntity, ref.Type)
	}
}

// DeleteEntity removes the referenced researcher or publication.
func (s *Store) DeleteEntity(ctx context.Context, ref types.EntityRef) error {
	switch ref.Type {
	case types.EntityResearcher:
		return s.DeleteResearcher(ctx, ref.ID)
	case types.EntityPublication:
		return s.DeletePublication(ctx, ref.ID)
	default:
		return fmt.Errorf("%w: unknown entity type %q", types.ErrInvalidEntity, ref.Type)
	}
}

// ListEntityRefs returns the refs of every stored entity of type t, ordered
// by id.
func (s *Store) ListEntityRefs(ctx context.Context, t types.EntityType) ([]types.EntityRef, error) {
	var table string
	switch t {
	case types.EntityResearcher:
		table = "researchers"
	case types.EntityPublication:
		table = "publications"
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", types.ErrInvalidEntity, t)
	}

	return do(ctx, s, func() ([]types.EntityRef, error) {
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM `+table+` ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", table, err)
		}
		defer rows.Close()

		var out []types.EntityRef
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scanning %s id: %w", table, err)
			}
			out = append(out, types.EntityRef{Type: t, ID: id})
		}
		return out, rows.Err()
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResearcher(sc scanner) (types.Researcher, error) {
	var r types.Researcher
	var interests, tags string
	var created, updated int64
	if err := sc.Scan(&r.ID, &r.Name, &r.Department, &interests, &tags,
		&r.ScholarID, &r.HIndex, &r.Citations, &created, &updated, &r.PublicationCount); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(interests), &r.Interests); err != nil {
		return r, fmt.Errorf("%w: researcher %s interests: %v", types.ErrInvalidEntity, r.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &r.SDGTags); err != nil {
		return r, fmt.Errorf("%w: researcher %s sdg tags: %v", types.ErrInvalidEntity, r.ID, err)
	}
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return r, nil
}

func scanPublication(sc scanner) (types.Publication, error) {
	var p types.Publication
	var tags string
	var date, created, updated int64
	if err := sc.Scan(&p.ID, &p.Title, &p.Abstract, &date, &p.Department, &tags, &p.SDGAutoGenerated, &created, &updated); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(tags), &p.SDGTags); err != nil {
		return p, fmt.Errorf("%w: publication %s sdg tags: %v", types.ErrInvalidEntity, p.ID, err)
	}
	p.Date = fromNanos(date)
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
