// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest imports researchers and publications into the store.
// Unchanged records are skipped so that re-importing a dataset only
// schedules work for what actually changed. Publications without SDG tags
// are tagged by the keyword classifier.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/collabmatch/internal/sdg"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// Change is a stored entity whose content differs from before, with the
// names of the fields that changed. New entities list no fields.
type Change struct {
	Ref    types.EntityRef
	Fields []string
}

// Summary holds counts from an ingestion run.
type Summary struct {
	Added      int
	Updated    int
	Skipped    int
	Failed     int
	AutoTagged int
	Edges      int

	Changes []Change
}

// Total returns the number of records processed.
func (s Summary) Total() int {
	return s.Added + s.Updated + s.Skipped + s.Failed
}

// Options controls an ingestion run.
type Options struct {
	// SDGThreshold is the classifier threshold (default sdg.DefaultThreshold).
	SDGThreshold float64

	// DryRun reports what would change without writing.
	DryRun bool

	// Now stamps updated records (default time.Now).
	Now func() time.Time
}

// Ingest writes ds to st, printing one line per record to w. Researchers
// are written before publications. Collaboration edges are replaced by the
// dataset's edges when it lists any, or rebuilt from authorships when any
// publication changed.
func Ingest(ctx context.Context, st *store.Store, ds *Dataset, w io.Writer, opts Options) (Summary, error) {
	if opts.SDGThreshold <= 0 {
		opts.SDGThreshold = sdg.DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now().UTC()

	var summary Summary

	for _, r := range ds.Researchers {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		ref := types.EntityRef{Type: types.EntityResearcher, ID: strings.TrimSpace(r.ID)}
		if ref.ID == "" {
			fmt.Fprintf(w, "failed  researcher %q: missing id\n", r.Name)
			summary.Failed++
			continue
		}
		r.ID = ref.ID

		old, err := st.GetResearcher(ctx, r.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
			summary.Failed++
			continue
		}

		var fields []string
		if exists {
			// Datasets without profile fields keep enriched values.
			if r.ScholarID == "" && r.HIndex == 0 && r.Citations == 0 {
				r.ScholarID, r.HIndex, r.Citations = old.ScholarID, old.HIndex, old.Citations
			}
			fields = researcherChanges(old, r)
			if len(fields) == 0 {
				fmt.Fprintf(w, "skipped %s\n", ref)
				summary.Skipped++
				continue
			}
		}

		r.UpdatedAt = now
		if !opts.DryRun {
			if err := st.UpsertResearcher(ctx, r); err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
				summary.Failed++
				continue
			}
		}
		summary.record(w, ref, exists, fields)
	}

	pubsChanged := false
	for _, p := range ds.Publications {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		ref := types.EntityRef{Type: types.EntityPublication, ID: strings.TrimSpace(p.ID)}
		if ref.ID == "" {
			fmt.Fprintf(w, "failed  publication %q: missing id\n", p.Title)
			summary.Failed++
			continue
		}
		p.ID = ref.ID

		if len(p.SDGTags) == 0 {
			if tags := sdg.ClassifyPublication(p.Title, p.Abstract, opts.SDGThreshold); len(tags) > 0 {
				p.SDGTags = tags
				p.SDGAutoGenerated = true
				summary.AutoTagged++
			}
		}

		old, err := st.GetPublication(ctx, p.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
			summary.Failed++
			continue
		}

		var fields []string
		if exists {
			fields = publicationChanges(old, p)
			if len(fields) == 0 {
				fmt.Fprintf(w, "skipped %s\n", ref)
				summary.Skipped++
				continue
			}
		}

		p.UpdatedAt = now
		if !opts.DryRun {
			if err := st.UpsertPublication(ctx, p); err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
				summary.Failed++
				continue
			}
		}
		pubsChanged = true
		summary.record(w, ref, exists, fields)
	}

	if !opts.DryRun {
		n, err := writeEdges(ctx, st, ds, pubsChanged)
		if err != nil {
			return summary, err
		}
		summary.Edges = n
	}

	fmt.Fprintf(w, "\nadded: %d, updated: %d, skipped: %d, failed: %d, auto-tagged: %d, edges: %d\n",
		summary.Added, summary.Updated, summary.Skipped, summary.Failed, summary.AutoTagged, summary.Edges)
	return summary, nil
}

func (s *Summary) record(w io.Writer, ref types.EntityRef, exists bool, fields []string) {
	if exists {
		fmt.Fprintf(w, "updated %s (%s)\n", ref, strings.Join(fields, ", "))
		s.Updated++
	} else {
		fmt.Fprintf(w, "added   %s\n", ref)
		s.Added++
	}
	s.Changes = append(s.Changes, Change{Ref: ref, Fields: fields})
}

// writeEdges stores explicit edges, or rebuilds edges from authorships.
// It returns the number of edges written, or 0 when nothing was done.
func writeEdges(ctx context.Context, st *store.Store, ds *Dataset, pubsChanged bool) (int, error) {
	if len(ds.Collaborations) > 0 {
		n := 0
		for _, e := range ds.Collaborations {
			if err := st.UpsertEdge(ctx, e); err != nil {
				return n, fmt.Errorf("writing collaboration edge: %w", err)
			}
			n++
		}
		return n, nil
	}
	if !pubsChanged {
		return 0, nil
	}
	n, err := st.RebuildEdgesFromAuthorships(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuilding collaboration edges: %w", err)
	}
	return n, nil
}

func researcherChanges(old, r types.Researcher) []string {
	var fields []string
	if old.Name != r.Name {
		fields = append(fields, "name")
	}
	if old.Department != r.Department {
		fields = append(fields, "department")
	}
	if !slices.Equal(old.Interests, nonNil(r.Interests)) {
		fields = append(fields, "interests")
	}
	if !slices.Equal(old.SDGTags, nonNil(r.SDGTags)) {
		fields = append(fields, "sdg_tags")
	}
	if old.ScholarID != r.ScholarID || old.HIndex != r.HIndex || old.Citations != r.Citations {
		fields = append(fields, "profile")
	}
	return fields
}

func publicationChanges(old, p types.Publication) []string {
	var fields []string
	if old.Title != p.Title {
		fields = append(fields, "title")
	}
	if old.Abstract != p.Abstract {
		fields = append(fields, "abstract")
	}
	if !old.Date.Equal(p.Date) {
		fields = append(fields, "date")
	}
	if old.Department != p.Department {
		fields = append(fields, "department")
	}
	if !slices.Equal(old.AuthorIDs, nonNil(p.AuthorIDs)) {
		fields = append(fields, "authors")
	}
	if !slices.Equal(old.SDGTags, nonNil(p.SDGTags)) {
		fields = append(fields, "sdg_tags")
	}
	return fields
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
