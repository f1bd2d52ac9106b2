// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich fills researcher profiles from a scholarly index: h-index,
// citation count, research topics as interests when none are recorded, and
// a department guess for unassigned researchers.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/collabmatch/internal/ingest"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// Profile is what a Source knows about one author.
type Profile struct {
	ID          string
	DisplayName string
	HIndex      int
	Citations   int
	Works       int
	Institution string

	// Topics are research topics, most prominent first.
	Topics []string

	// Fields are the distinct disciplines of Topics, in the same order.
	Fields []string
}

// Source looks an author up by name.
type Source interface {
	Name() string
	Lookup(ctx context.Context, name string) (Profile, error)
}

// Options controls an enrichment run.
type Options struct {
	// IDs limits the run to these researchers; empty means all.
	IDs []string

	// Overwrite replaces recorded interests with the source's topics.
	Overwrite bool

	// MaxInterests caps the topics taken as interests (default 5).
	MaxInterests int

	// Delay spaces consecutive lookups to respect the source's rate limit.
	Delay time.Duration

	// DryRun reports what would change without writing.
	DryRun bool

	// Now stamps updated records (default time.Now).
	Now func() time.Time
}

// Summary holds counts from an enrichment run.
type Summary struct {
	Updated   int
	Unchanged int
	NotFound  int
	Failed    int

	Changes []ingest.Change
}

// Total returns the number of researchers processed.
func (s Summary) Total() int {
	return s.Updated + s.Unchanged + s.NotFound + s.Failed
}

const defaultMaxInterests = 5

// unassigned is the placeholder department some imports use.
const unassigned = "unassigned"

// Enrich looks up every selected researcher in src and stores the merged
// profile, printing one line per researcher to w. A lookup failure is
// counted and the run continues.
func Enrich(ctx context.Context, st *store.Store, src Source, w io.Writer, opts Options) (Summary, error) {
	if opts.MaxInterests <= 0 {
		opts.MaxInterests = defaultMaxInterests
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	researchers, err := selectResearchers(ctx, st, opts.IDs)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for i, r := range researchers {
		if i > 0 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		ref := types.EntityRef{Type: types.EntityResearcher, ID: r.ID}
		p, err := src.Lookup(ctx, r.Name)
		if errors.Is(err, types.ErrNotFound) {
			fmt.Fprintf(w, "missing %s: not found on %s\n", ref, src.Name())
			summary.NotFound++
			continue
		}
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
			summary.Failed++
			continue
		}

		updated, fields := Merge(r, p, opts)
		if len(fields) == 0 {
			fmt.Fprintf(w, "skipped %s\n", ref)
			summary.Unchanged++
			continue
		}

		updated.UpdatedAt = opts.Now().UTC()
		if !opts.DryRun {
			if err := st.UpsertResearcher(ctx, updated); err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", ref, err)
				summary.Failed++
				continue
			}
		}
		fmt.Fprintf(w, "updated %s (%s) h-index %d, citations %d\n",
			ref, strings.Join(fields, ", "), updated.HIndex, updated.Citations)
		summary.Updated++
		summary.Changes = append(summary.Changes, ingest.Change{Ref: ref, Fields: fields})
	}

	fmt.Fprintf(w, "\nupdated: %d, unchanged: %d, not found: %d, failed: %d\n",
		summary.Updated, summary.Unchanged, summary.NotFound, summary.Failed)
	return summary, nil
}

func selectResearchers(ctx context.Context, st *store.Store, ids []string) ([]types.Researcher, error) {
	if len(ids) == 0 {
		return st.ListResearchers(ctx)
	}
	out := make([]types.Researcher, 0, len(ids))
	for _, id := range ids {
		r, err := st.GetResearcher(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Merge applies p to r and returns the result with the names of the
// fields that changed. Interests are only taken from p when r has none or
// opts.Overwrite is set; the department only when r has none.
func Merge(r types.Researcher, p Profile, opts Options) (types.Researcher, []string) {
	var fields []string

	if r.ScholarID != p.ID || r.HIndex != p.HIndex || r.Citations != p.Citations {
		r.ScholarID, r.HIndex, r.Citations = p.ID, p.HIndex, p.Citations
		fields = append(fields, "profile")
	}

	limit := opts.MaxInterests
	if limit <= 0 {
		limit = defaultMaxInterests
	}
	if len(p.Topics) > 0 && (len(r.Interests) == 0 || opts.Overwrite) {
		topics := p.Topics[:min(limit, len(p.Topics))]
		if !slices.Equal(r.Interests, topics) {
			r.Interests = slices.Clone(topics)
			fields = append(fields, "interests")
		}
	}

	dept := strings.TrimSpace(r.Department)
	if dept == "" || strings.EqualFold(dept, unassigned) {
		if guess := GuessDepartment(p); guess != "" && guess != r.Department {
			r.Department = guess
			fields = append(fields, "department")
		}
	}
	return r, fields
}

// institutionDepartments maps institution name keywords to departments.
var institutionDepartments = []struct {
	keyword    string
	department string
}{
	{"computer", "Computer Science"},
	{"health", "Public Health"},
	{"medic", "Medicine"},
	{"economic", "Economics"},
	{"engineering", "Engineering"},
}

// GuessDepartment names a department from the author's leading topic field,
// falling back to keywords in the institution name.
func GuessDepartment(p Profile) string {
	if len(p.Fields) > 0 {
		return p.Fields[0]
	}
	inst := strings.ToLower(p.Institution)
	for _, m := range institutionDepartments {
		if strings.Contains(inst, m.keyword) {
			return m.department
		}
	}
	return ""
}
