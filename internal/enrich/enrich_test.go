// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/collabmatch/internal/httputil"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
	store.RetryInitialInterval = time.Millisecond
	store.RetryMaxInterval = time.Millisecond
}

// --- test helpers ---

func testSetup(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "enrich.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// fakeSource serves canned profiles by name.
type fakeSource struct {
	profiles map[string]Profile
	errs     map[string]error
	calls    []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Lookup(_ context.Context, name string) (Profile, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return Profile{}, err
	}
	p, ok := f.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("author %q: %w", name, types.ErrNotFound)
	}
	return p, nil
}

const authorJSON = `{"results":[{
	"id":"https://openalex.org/A123",
	"display_name":"Ada Okafor",
	"works_count":42,
	"cited_by_count":1300,
	"summary_stats":{"h_index":17},
	"last_known_institutions":[{"display_name":"University of Testing"}],
	"topics":[
		{"display_name":"Flood Risk Assessment","count":4,"field":{"display_name":"Environmental Science"}},
		{"display_name":"Deep Learning in Remote Sensing","count":9,"field":{"display_name":"Computer Science"}},
		{"display_name":"Climate Change Impacts","count":4,"field":{"display_name":"Environmental Science"}}
	]
}]}`

// --- OpenAlex ---

func TestOpenAlexLookup(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, authorJSON)
	}))
	defer srv.Close()
	old := openAlexAuthorsBase
	openAlexAuthorsBase = srv.URL
	defer func() { openAlexAuthorsBase = old }()

	o := &OpenAlex{Client: srv.Client(), Email: "lab@example.org"}
	p, err := o.Lookup(context.Background(), "Ada Okafor")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "search=Ada+Okafor")
	assert.Contains(t, gotQuery, "mailto=lab%40example.org")
	assert.Equal(t, "A123", p.ID)
	assert.Equal(t, 17, p.HIndex)
	assert.Equal(t, 1300, p.Citations)
	assert.Equal(t, 42, p.Works)
	assert.Equal(t, "University of Testing", p.Institution)
	assert.Equal(t, []string{"Deep Learning in Remote Sensing", "Flood Risk Assessment", "Climate Change Impacts"}, p.Topics)
	assert.Equal(t, []string{"Computer Science", "Environmental Science"}, p.Fields)
}

func TestOpenAlexConceptFallback(t *testing.T) {
	a := openAlexAuthor{
		ID: "https://openalex.org/A9",
		XConcepts: []openAlexConcept{
			{DisplayName: "Optics", Score: 40},
			{DisplayName: "Physics", Score: 90},
		},
	}
	p := a.profile()
	assert.Equal(t, "A9", p.ID)
	assert.Equal(t, []string{"Physics", "Optics"}, p.Topics)
	assert.Empty(t, p.Fields)
}

func TestOpenAlexErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"no results", http.StatusOK, `{"results":[]}`, true},
		{"bad status", http.StatusBadRequest, `{}`, false},
		{"bad json", http.StatusOK, `{"results":`, false},
		{"overloaded", http.StatusServiceUnavailable, `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()
			old := openAlexAuthorsBase
			openAlexAuthorsBase = srv.URL
			defer func() { openAlexAuthorsBase = old }()

			o := &OpenAlex{Client: srv.Client(), MaxRetries: 1}
			_, err := o.Lookup(context.Background(), "Nobody")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, types.ErrNotFound))
		})
	}

	_, err := (&OpenAlex{}).Lookup(context.Background(), "  ")
	assert.Error(t, err)
}

// --- Merge ---

func TestMerge(t *testing.T) {
	p := Profile{
		ID: "A1", HIndex: 10, Citations: 200,
		Topics: []string{"t1", "t2", "t3"},
		Fields: []string{"Computer Science"},
	}

	t.Run("fills empty researcher", func(t *testing.T) {
		r, fields := Merge(types.Researcher{ID: "x", Department: "Unassigned"}, p, Options{MaxInterests: 2})
		assert.Equal(t, []string{"profile", "interests", "department"}, fields)
		assert.Equal(t, []string{"t1", "t2"}, r.Interests)
		assert.Equal(t, "Computer Science", r.Department)
		assert.Equal(t, 10, r.HIndex)
	})

	t.Run("keeps recorded interests and department", func(t *testing.T) {
		in := types.Researcher{ID: "x", Department: "Physics", Interests: []string{"optics"}}
		r, fields := Merge(in, p, Options{})
		assert.Equal(t, []string{"profile"}, fields)
		assert.Equal(t, []string{"optics"}, r.Interests)
		assert.Equal(t, "Physics", r.Department)
	})

	t.Run("overwrite", func(t *testing.T) {
		in := types.Researcher{ID: "x", Department: "Physics", Interests: []string{"optics"}}
		r, fields := Merge(in, p, Options{Overwrite: true})
		assert.Equal(t, []string{"profile", "interests"}, fields)
		assert.Equal(t, []string{"t1", "t2", "t3"}, r.Interests)
	})

	t.Run("unchanged", func(t *testing.T) {
		in := types.Researcher{ID: "x", Department: "Physics", Interests: []string{"optics"},
			ScholarID: "A1", HIndex: 10, Citations: 200}
		_, fields := Merge(in, p, Options{})
		assert.Empty(t, fields)
	})
}

func TestGuessDepartment(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want string
	}{
		{"topic field wins", Profile{Fields: []string{"Medicine"}, Institution: "School of Economics"}, "Medicine"},
		{"computer", Profile{Institution: "Institute of Computer Engineering"}, "Computer Science"},
		{"health", Profile{Institution: "School of Public Health"}, "Public Health"},
		{"economics", Profile{Institution: "London School of Economics"}, "Economics"},
		{"unknown", Profile{Institution: "University of Somewhere"}, ""},
		{"empty", Profile{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessDepartment(tt.p))
		})
	}
}

// --- Enrich ---

func TestEnrich(t *testing.T) {
	st := testSetup(t)
	ctx := context.Background()
	for _, r := range []types.Researcher{
		{ID: "ada", Name: "Ada Okafor", Department: "Unassigned"},
		{ID: "bo", Name: "Bo Lindqvist", Department: "Public Policy", Interests: []string{"climate policy"}},
		{ID: "cy", Name: "Cy Navarro"},
		{ID: "dee", Name: "Dee Mensah"},
	} {
		require.NoError(t, st.UpsertResearcher(ctx, r))
	}

	src := &fakeSource{
		profiles: map[string]Profile{
			"Ada Okafor":   {ID: "A1", HIndex: 17, Citations: 1300, Topics: []string{"remote sensing"}, Fields: []string{"Computer Science"}},
			"Bo Lindqvist": {ID: "A2", HIndex: 5, Citations: 90, Topics: []string{"energy economics"}},
		},
		errs: map[string]error{"Dee Mensah": errors.New("connection reset")},
	}

	var buf bytes.Buffer
	summary, err := Enrich(ctx, st, src, &buf, Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Total())
	require.Len(t, summary.Changes, 2)
	assert.Equal(t, types.EntityRef{Type: types.EntityResearcher, ID: "ada"}, summary.Changes[0].Ref)
	assert.Equal(t, []string{"profile", "interests", "department"}, summary.Changes[0].Fields)
	assert.Equal(t, []string{"profile"}, summary.Changes[1].Fields)

	ada, err := st.GetResearcher(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "A1", ada.ScholarID)
	assert.Equal(t, 17, ada.HIndex)
	assert.Equal(t, []string{"remote sensing"}, ada.Interests)
	assert.Equal(t, "Computer Science", ada.Department)
	assert.True(t, ada.UpdatedAt.Equal(t0))

	bo, err := st.GetResearcher(ctx, "bo")
	require.NoError(t, err)
	assert.Equal(t, []string{"climate policy"}, bo.Interests)
	assert.Equal(t, 90, bo.Citations)

	out := buf.String()
	assert.Contains(t, out, "updated researcher/ada (profile, interests, department) h-index 17, citations 1300")
	assert.Contains(t, out, "missing researcher/cy: not found on fake")
	assert.Contains(t, out, "failed  researcher/dee: connection reset")
	assert.Contains(t, out, "updated: 2, unchanged: 0, not found: 1, failed: 1")

	// A second run finds nothing new.
	buf.Reset()
	summary, err = Enrich(ctx, st, src, &buf, Options{IDs: []string{"ada", "bo"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Empty(t, summary.Changes)
}

func TestEnrichDryRunAndMissingID(t *testing.T) {
	st := testSetup(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertResearcher(ctx, types.Researcher{ID: "ada", Name: "Ada Okafor"}))

	src := &fakeSource{profiles: map[string]Profile{"Ada Okafor": {ID: "A1", HIndex: 3}}}
	var buf bytes.Buffer
	summary, err := Enrich(ctx, st, src, &buf, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	ada, err := st.GetResearcher(ctx, "ada")
	require.NoError(t, err)
	assert.Zero(t, ada.HIndex)

	_, err = Enrich(ctx, st, src, &buf, Options{IDs: []string{"nobody"}})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// cancellingSource cancels the run on its first lookup.
type cancellingSource struct {
	fakeSource
	cancel context.CancelFunc
}

func (c *cancellingSource) Lookup(ctx context.Context, name string) (Profile, error) {
	c.cancel()
	return c.fakeSource.Lookup(ctx, name)
}

func TestEnrichCancelled(t *testing.T) {
	st := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, st.UpsertResearcher(ctx, types.Researcher{ID: "ada", Name: "Ada Okafor"}))
	require.NoError(t, st.UpsertResearcher(ctx, types.Researcher{ID: "bo", Name: "Bo Lindqvist"}))

	src := &cancellingSource{cancel: cancel}
	summary, err := Enrich(ctx, st, src, &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, []string{"Ada Okafor"}, src.calls)
}
