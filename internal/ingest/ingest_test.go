// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const sampleYAML = `
researchers:
  - id: ada
    name: Ada Lovelace
    department: Computer Science
    interests: [machine learning, climate]
  - id: bo
    name: Bo Chen
    department: Public Policy
    interests: [climate policy]
    sdg_tags: [SDG_13]
publications:
  - id: p1
    title: Modelling emissions
    abstract: >-
      Climate change mitigation and adaptation reduce greenhouse gas emissions,
      carbon and methane under extreme weather and global warming.
    date: 2025-06-01
    authors: [ada, bo]
  - id: p2
    title: Tagged already
    date: 2024-01-15
    authors: [ada, bo]
    sdg_tags: [SDG_4]
`

// --- test helpers ---

func testSetup(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "ingest.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func parse(t *testing.T, doc string) *Dataset {
	t.Helper()
	ds, err := ParseYAML(strings.NewReader(doc))
	require.NoError(t, err)
	return ds
}

func opts() Options {
	return Options{Now: func() time.Time { return t0 }}
}

// --- tests ---

func TestParseYAML(t *testing.T) {
	ds := parse(t, sampleYAML)
	require.Len(t, ds.Researchers, 2)
	require.Len(t, ds.Publications, 2)
	assert.Equal(t, []string{"machine learning", "climate"}, ds.Researchers[0].Interests)
	assert.Equal(t, []string{"ada", "bo"}, ds.Publications[0].AuthorIDs)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ds.Publications[0].Date.UTC())

	empty, err := ParseYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Researchers)
}

func TestIngest(t *testing.T) {
	st := testSetup(t)
	ctx := context.Background()
	var buf strings.Builder

	summary, err := Ingest(ctx, st, parse(t, sampleYAML), &buf, opts())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Added)
	assert.Equal(t, 4, summary.Total())
	assert.Equal(t, 1, summary.AutoTagged)
	assert.Equal(t, 1, summary.Edges)
	assert.Len(t, summary.Changes, 4)
	assert.Contains(t, buf.String(), "added   researcher/ada")
	assert.Contains(t, buf.String(), "added: 4, updated: 0, skipped: 0, failed: 0, auto-tagged: 1, edges: 1")

	p1, err := st.GetPublication(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SDG_13"}, p1.SDGTags)
	assert.True(t, p1.SDGAutoGenerated)

	p2, err := st.GetPublication(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"SDG_4"}, p2.SDGTags)
	assert.False(t, p2.SDGAutoGenerated)

	edges, err := st.ListEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 2, edges[0].Strength)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), edges[0].LastCollaborated.UTC())
}

func TestIngestSkipsUnchanged(t *testing.T) {
	st := testSetup(t)
	ctx := context.Background()
	_, err := Ingest(ctx, st, parse(t, sampleYAML), &strings.Builder{}, opts())
	require.NoError(t, err)

	var buf strings.Builder
	summary, err := Ingest(ctx, st, parse(t, sampleYAML), &buf, opts())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Skipped)
	assert.Zero(t, summary.Edges, "edges are not rebuilt when no publication changed")
	assert.Empty(t, summary.Changes)
	assert.Contains(t, buf.String(), "skipped publication/p2")

	ds := parse(t, sampleYAML)
	ds.Researchers[0].Interests = []string{"machine learning", "oceans"}
	ds.Researchers[1].Name = "Bo C."
	summary, err = Ingest(ctx, st, ds, &strings.Builder{}, opts())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Updated)
	require.Len(t, summary.Changes, 2)
	assert.Equal(t, []string{"interests"}, summary.Changes[0].Fields)
	assert.Equal(t, []string{"name"}, summary.Changes[1].Fields)
}

func TestIngestExplicitEdges(t *testing.T) {
	st := testSetup(t)
	ds := parse(t, sampleYAML)
	ds.Collaborations = []types.CollaborationEdge{
		{ResearcherA: "bo", ResearcherB: "ada", Strength: 7, LastCollaborated: t0},
	}

	summary, err := Ingest(context.Background(), st, ds, &strings.Builder{}, opts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Edges)

	edges, err := st.ListEdges(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 7, edges[0].Strength)
}

func TestIngestFailuresAndDryRun(t *testing.T) {
	st := testSetup(t)
	ctx := context.Background()
	ds := parse(t, sampleYAML)
	ds.Researchers = append(ds.Researchers, types.Researcher{Name: "No Id"})

	o := opts()
	o.DryRun = true
	var buf strings.Builder
	summary, err := Ingest(ctx, st, ds, &buf, o)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Added)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, buf.String(), `failed  researcher "No Id": missing id`)

	refs, err := st.ListEntityRefs(ctx, types.EntityResearcher)
	require.NoError(t, err)
	assert.Empty(t, refs, "dry run writes nothing")
}

func TestParseCSV(t *testing.T) {
	doc := "\ufeffTitle,Authors,Abstract,Year,Department\n" +
		`"Deep Learning for Crops","Alice Smith; Bob Jones",Yield prediction,2024,Computer Science` + "\n" +
		`Soil Carbon,"Bob Jones, Carol Diaz",Carbon storage,2023,Agriculture` + "\n" +
		`deep  learning for crops,Alice Smith,duplicate title,2024,Computer Science` + "\n"

	ds, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, ds.Researchers, 3)
	assert.Equal(t, "alice-smith", ds.Researchers[0].ID)
	assert.Equal(t, "Computer Science", ds.Researchers[1].Department, "first row wins")
	assert.Equal(t, "Agriculture", ds.Researchers[2].Department)

	require.Len(t, ds.Publications, 2)
	assert.Equal(t, PublicationID("Deep Learning for Crops"), ds.Publications[0].ID)
	assert.Equal(t, []string{"bob-jones", "carol-diaz"}, ds.Publications[1].AuthorIDs)
	assert.Equal(t, 2023, ds.Publications[1].Date.Year())
}

func TestParseCSVErrors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Title,Authors\nx,y\n"))
	assert.ErrorContains(t, err, "CSV must have columns")

	_, err = ParseCSV(strings.NewReader("Title,Authors,Abstract,Year,Department\nx,y,z,soon,d\n"))
	assert.ErrorContains(t, err, `invalid year "soon"`)

	_, err = ParseCSV(strings.NewReader("Title,Authors,Abstract,Year,Department\nx,,z,2020,d\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, ds.Researchers, 2)

	_, err = LoadFile(filepath.Join(dir, "data.json"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(txt, nil, 0o644))
	_, err = LoadFile(txt)
	assert.ErrorContains(t, err, "unsupported dataset format")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "ada-lovelace", Slug("  Ada  Lovelace "))
	assert.Equal(t, "o-brien-j", Slug("O'Brien, J."))
	assert.Equal(t, "", Slug("--"))
}

func TestSummaryTotal(t *testing.T) {
	s := Summary{Added: 2, Updated: 1, Skipped: 3, Failed: 1}
	assert.Equal(t, 7, s.Total())
}
