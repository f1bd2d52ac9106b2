// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/collabmatch/internal/embed"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/internal/vectorstore"
	"github.com/pdiddy/collabmatch/pkg/types"
)

const testDim = 384

type fixture struct {
	st  *store.Store
	vs  *vectorstore.Store
	emb *embed.Embedder
	now time.Time
	cfg types.MatchConfig
}

func testSetup(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "match.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vs, err := vectorstore.New(st.DB(), testDim)
	require.NoError(t, err)

	return &fixture{
		st:  st,
		vs:  vs,
		emb: embed.New(embed.NewLexical(testDim), embed.LexicalModel, testDim, embed.WithCacheSize(0)),
		now: t0,
		cfg: types.DefaultMatchConfig(),
	}
}

func (f *fixture) ranker() *Ranker {
	return NewRanker(f.st, f.vs, f.cfg, WithClock(func() time.Time { return f.now }))
}

// addResearcher stores r and its lexical embedding.
func (f *fixture) addResearcher(t *testing.T, r types.Researcher) {
	t.Helper()
	ctx := context.Background()
	r.CreatedAt, r.UpdatedAt = t0, t0
	require.NoError(t, f.st.UpsertResearcher(ctx, r))

	text := r.EmbeddingText()
	res := f.emb.Embed(ctx, text)
	require.NoError(t, f.vs.Upsert(ctx, types.Embedding{
		Ref:           researcherRef(r.ID),
		Vector:        res.Vector,
		LowConfidence: res.LowConfidence,
		ContentHash:   embed.ContentHash(text),
		SourceVersion: r.UpdatedAt.UnixNano(),
		Model:         res.Model,
		UpdatedAt:     t0,
	}))
}

func (f *fixture) seedClimate(t *testing.T) {
	t.Helper()
	f.addResearcher(t, types.Researcher{
		ID: "a", Name: "Ada", Department: "Computer Science",
		Interests: []string{"machine learning", "climate"},
		SDGTags:   []string{"SDG_13", "SDG_9"},
	})
	f.addResearcher(t, types.Researcher{
		ID: "b", Name: "Bo", Department: "Public Policy",
		Interests: []string{"climate policy"},
		SDGTags:   []string{"SDG_13"},
	})
}

func TestRankClimateScenario(t *testing.T) {
	f := testSetup(t)
	f.seedClimate(t)

	summary, err := f.ranker().Rank(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Researchers)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Written)
	assert.Empty(t, summary.Errors)

	opps, err := f.st.ListOpportunities(context.Background(), types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, types.NewPair("a", "b"), o.Pair)
	assert.Equal(t, "climate", o.Topic)
	assert.Equal(t, types.StatusPending, o.Status)

	// 100 * (0.5 * 1/sqrt(6) + 0.35 * 0.3*0.5)
	want := 100 * (0.5/math.Sqrt(6) + 0.35*0.15)
	assert.InDelta(t, want, o.MatchScore, 1e-3)
	assert.Contains(t, o.Reason, "SDG overlap 50%")
}

func TestRankExcludesStrongCollaborators(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.addResearcher(t, types.Researcher{ID: "c", Department: "Physics", Interests: []string{"quantum optics"}})
	f.addResearcher(t, types.Researcher{ID: "d", Department: "Physics", Interests: []string{"quantum optics"}})
	require.NoError(t, f.st.UpsertEdge(ctx, types.CollaborationEdge{ResearcherA: "d", ResearcherB: "c", Strength: 4}))

	summary, err := f.ranker().Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Collaborating)
	assert.Zero(t, summary.Written)

	opps, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestRankIdempotent(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.seedClimate(t)
	f.addResearcher(t, types.Researcher{ID: "c", Department: "Physics", Interests: []string{"climate", "optics"}})

	r := f.ranker()
	_, err := r.Rank(ctx)
	require.NoError(t, err)
	first, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	_, err = r.Rank(ctx)
	require.NoError(t, err)
	second, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Pair, second[i].Pair)
		assert.Equal(t, first[i].MatchScore, second[i].MatchScore)
	}
}

func TestRankCooldown(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.seedClimate(t)

	r := f.ranker()
	_, err := r.Rank(ctx)
	require.NoError(t, err)
	opps, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	require.NoError(t, f.st.FinalizeOpportunity(ctx, opps[0].ID, types.StatusDismissed, f.now))

	f.now = t0.Add(24 * time.Hour)
	summary, err := r.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Suppressed)
	assert.Zero(t, summary.Written)
	opps, err = f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	assert.Empty(t, opps)

	f.now = t0.Add(31 * 24 * time.Hour)
	summary, err = r.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Written)
	opps, err = f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, types.StatusPending, opps[0].Status)
	assert.True(t, opps[0].CreatedAt.Equal(f.now))
}

func TestRankExcludesStaleAndUnembedded(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.seedClimate(t)
	require.NoError(t, f.st.UpsertResearcher(ctx, types.Researcher{
		ID: "z", Department: "Public Policy", Interests: []string{"climate"}, UpdatedAt: t0,
	}))
	require.NoError(t, f.st.SaveJob(ctx, types.EmbeddingJob{
		Ref: researcherRef("b"), State: types.JobDeadLetter, Attempts: 5, UpdatedAt: t0,
	}))

	summary, err := f.ranker().Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Researchers)
	assert.Equal(t, 2, summary.Excluded)
	assert.Zero(t, summary.Candidates)
}

func TestRankTopK(t *testing.T) {
	f := testSetup(t)
	f.cfg.MaxOpportunitiesPerSweep = 1
	f.seedClimate(t)
	f.addResearcher(t, types.Researcher{ID: "c", Department: "Public Policy", Interests: []string{"climate policy"}})

	summary, err := f.ranker().Rank(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 1, summary.Written)

	opps, err := f.st.ListOpportunities(context.Background(), types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	// b and c share department and identical interests.
	assert.Equal(t, types.NewPair("b", "c"), opps[0].Pair)
}

func TestRankTopKSkipsDismissedPair(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.cfg.MaxOpportunitiesPerSweep = 1
	f.seedClimate(t)
	f.addResearcher(t, types.Researcher{ID: "c", Department: "Public Policy", Interests: []string{"climate policy"}})

	r := f.ranker()
	_, err := r.Rank(ctx)
	require.NoError(t, err)
	opps, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	require.Equal(t, types.NewPair("b", "c"), opps[0].Pair)
	require.NoError(t, f.st.FinalizeOpportunity(ctx, opps[0].ID, types.StatusDismissed, f.now))

	// The dismissed best pair must not take the only slot.
	f.now = t0.Add(24 * time.Hour)
	summary, err := r.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Suppressed)
	assert.Equal(t, 1, summary.Written)

	opps, err = f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, types.NewPair("a", "b"), opps[0].Pair)
}

func TestRankSkipsUnreadableRows(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.seedClimate(t)
	f.addResearcher(t, types.Researcher{ID: "c", Department: "Public Policy", Interests: []string{"climate"}})
	f.addResearcher(t, types.Researcher{ID: "d", Department: "Public Policy", Interests: []string{"climate"}})
	require.NoError(t, f.st.UpsertPublication(ctx, types.Publication{
		ID: "p1", Title: "Sea level", AuthorIDs: []string{"a"}, UpdatedAt: t0,
	}))

	db := f.st.DB()
	_, err := db.ExecContext(ctx, `UPDATE researchers SET interests = '{corrupt' WHERE id = 'c'`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE publications SET sdg_tags = 'nope' WHERE id = 'p1'`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE embeddings SET vector = x'0000803f' WHERE entity_id = 'd'`)
	require.NoError(t, err)

	summary, err := f.ranker().Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Researchers)
	assert.Equal(t, 2, summary.Excluded)
	require.Len(t, summary.Errors, 3)
	assert.Contains(t, summary.Errors[0], "researcher/c")
	assert.Contains(t, summary.Errors[1], "publication/p1")
	assert.Contains(t, summary.Errors[2], "researcher/d")
	assert.Equal(t, 1, summary.Written)

	opps, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, types.NewPair("a", "b"), opps[0].Pair)
}

func TestRankRetiresNewCollaborators(t *testing.T) {
	f := testSetup(t)
	ctx := context.Background()
	f.seedClimate(t)

	r := f.ranker()
	_, err := r.Rank(ctx)
	require.NoError(t, err)
	opps, err := f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	require.NoError(t, f.st.UpsertEdge(ctx, types.CollaborationEdge{ResearcherA: "a", ResearcherB: "b", Strength: 4}))
	summary, err := r.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Collaborating)
	assert.Equal(t, 1, summary.Retired)

	opps, err = f.st.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestPreviewCommitsNothing(t *testing.T) {
	f := testSetup(t)
	f.seedClimate(t)

	drafts, summary, err := f.ranker().Preview(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 1, summary.Candidates)

	opps, err := f.st.ListOpportunities(context.Background(), types.OpportunityFilter{})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestEffectiveTags(t *testing.T) {
	researchers := []types.Researcher{{ID: "a", SDGTags: []string{"sdg_13"}}, {ID: "b"}}
	pubs := []types.Publication{{ID: "p", AuthorIDs: []string{"a", "b"}, SDGTags: []string{"SDG_14", "SDG_13"}}}

	got := EffectiveTags(researchers, pubs)
	assert.Equal(t, []string{"SDG_13", "SDG_14"}, got["a"])
	assert.Equal(t, []string{"SDG_13", "SDG_14"}, got["b"])
}

func TestRankSummaryPrint(t *testing.T) {
	var buf bytes.Buffer
	RankSummary{Researchers: 3, Candidates: 2, Written: 1, Errors: []string{"a:b: boom"}}.Print(&buf)
	assert.Contains(t, buf.String(), "Rank: 3 researchers (0 excluded), 2 candidates")
	assert.Contains(t, buf.String(), "error: a:b: boom")
}

func TestRankCancelled(t *testing.T) {
	f := testSetup(t)
	f.seedClimate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ranker().Rank(ctx)
	assert.Error(t, err)
}
