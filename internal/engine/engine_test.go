// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	store.RetryInitialInterval = time.Millisecond
	store.RetryMaxInterval = time.Millisecond
}

// --- test helpers ---

func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "engine.db")
	cfg.Pipeline.BaseBackoff = time.Millisecond
	cfg.Pipeline.MaxBackoff = time.Millisecond
	cfg.Match.SweepInterval = 0
	return cfg
}

func testSetup(t *testing.T, cfg types.Config) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// seed stores researchers a, b and c plus two publications, then embeds
// everything.
func seed(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	st := e.Store()
	for _, r := range []types.Researcher{
		{ID: "a", Name: "Ada", Department: "Computer Science", Interests: []string{"machine learning", "climate"}, SDGTags: []string{"SDG_13", "SDG_9"}},
		{ID: "b", Name: "Bo", Department: "Public Policy", Interests: []string{"climate policy"}, SDGTags: []string{"SDG_13"}},
		{ID: "c", Name: "Cy", Department: "Physics", Interests: []string{"quantum optics"}},
	} {
		r.CreatedAt, r.UpdatedAt = t0, t0
		require.NoError(t, st.UpsertResearcher(ctx, r))
	}
	for _, p := range []types.Publication{
		{ID: "p1", Title: "Climate policy review", AuthorIDs: []string{"b"}, Date: t0},
		{ID: "p2", Title: "Machine learning for climate models", AuthorIDs: []string{"a"}, Date: t0},
	} {
		p.CreatedAt, p.UpdatedAt = t0, t0
		require.NoError(t, st.UpsertPublication(ctx, p))
	}
	require.NoError(t, e.Process(ctx, nil))
}

// --- tests ---

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Match.Embedding, cfg.Match.Graph, cfg.Match.Recency = 0, 0, 0
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRankAndFinalize(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	summary, err := e.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Researchers)

	opps, err := e.ListOpportunities(ctx, types.OpportunityFilter{Pair: &types.Pair{A: "a", B: "b"}})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "climate", opps[0].Topic)

	require.NoError(t, e.Dismiss(ctx, opps[0].ID))
	assert.ErrorIs(t, e.Dismiss(ctx, opps[0].ID), types.ErrNotFound)
	assert.ErrorIs(t, e.Act(ctx, opps[0].ID), types.ErrNotFound)
	assert.ErrorIs(t, e.Act(ctx, "no-such-id"), types.ErrNotFound)

	opps, err = e.ListOpportunities(ctx, types.OpportunityFilter{Pair: &types.Pair{A: "a", B: "b"}})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestEntityChanged(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	ok, err := e.EntityChanged(ctx, types.EntityResearcher, "a", []string{"department"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.EntityChanged(ctx, "grant", "a", nil)
	assert.ErrorIs(t, err, types.ErrInvalidEntity)
	_, err = e.EntityChanged(ctx, types.EntityResearcher, " ", nil)
	assert.ErrorIs(t, err, types.ErrInvalidEntity)

	err = e.Process(ctx, func(ctx context.Context) error {
		ok, err := e.EntityChanged(ctx, types.EntityResearcher, "a", []string{"Interests"})
		assert.True(t, ok)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, e.QueueDepth())
}

func TestEntityDeleted(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)
	_, err := e.Rank(ctx)
	require.NoError(t, err)

	require.NoError(t, e.EntityDeleted(ctx, types.EntityResearcher, "a"))

	_, err = e.Store().GetResearcher(ctx, "a")
	assert.ErrorIs(t, err, types.ErrNotFound)
	opps, err := e.ListOpportunities(ctx, types.OpportunityFilter{})
	require.NoError(t, err)
	for _, o := range opps {
		assert.False(t, o.Pair.Contains("a"), o.Pair.Key())
	}
	res, err := e.FindSimilar(ctx, "machine learning", 10, SimilarFilter{})
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, "a", r.Researcher.ID)
	}

	// Deleting again is harmless.
	assert.NoError(t, e.EntityDeleted(ctx, types.EntityResearcher, "a"))
}

func TestFindSimilar(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	res, err := e.FindSimilar(ctx, "climate", 2, SimilarFilter{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].Researcher.ID)
	assert.Equal(t, "a", res[1].Researcher.ID)
	assert.Greater(t, res[0].Similarity, res[1].Similarity)

	res, err = e.FindSimilar(ctx, "climate", 5, SimilarFilter{Department: "computer science"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Researcher.ID)

	res, err = e.FindSimilar(ctx, "   ", 5, SimilarFilter{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestFindSimilarPublications(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	res, err := e.FindSimilarPublications(ctx, "a", 5)
	require.NoError(t, err)
	ids := make([]string, 0, len(res))
	for _, r := range res {
		ids = append(ids, r.Publication.ID)
	}
	assert.Contains(t, ids, "p1")
	assert.NotContains(t, ids, "p2", "own publications are excluded")

	_, err = e.FindSimilarPublications(ctx, "nobody", 5)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAlignmentScore(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	score, err := e.AlignmentScore(ctx, "a", "Machine learning; climate!")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)

	score, err = e.AlignmentScore(ctx, "c", "machine learning")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-6)

	score, err = e.AlignmentScore(ctx, "a", "")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestTriggerRebuildAndJobStatus(t *testing.T) {
	e := testSetup(t, testConfig(t))
	ctx := context.Background()
	seed(t, e)

	assert.ErrorIs(t, e.TriggerRebuild(ctx, types.EntityResearcher, "nobody"), types.ErrNotFound)

	require.NoError(t, e.Store().SaveJob(ctx, types.EmbeddingJob{
		Ref:       types.EntityRef{Type: types.EntityResearcher, ID: "c"},
		State:     types.JobDeadLetter,
		Attempts:  5,
		UpdatedAt: t0,
	}))
	dead, err := e.JobStatus(ctx, types.JobDeadLetter)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	require.NoError(t, e.Process(ctx, func(ctx context.Context) error {
		return e.TriggerRebuild(ctx, types.EntityResearcher, "c")
	}))
	dead, err = e.JobStatus(ctx, types.JobDeadLetter)
	require.NoError(t, err)
	assert.Empty(t, dead)

	all, err := e.JobStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRunRanksAfterBurst(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.RankTriggerBurst = 2
	e := testSetup(t, cfg)

	// Both researchers exist before Run, so backfill queues exactly two jobs.
	for _, r := range []types.Researcher{
		{ID: "a", Department: "Physics", Interests: []string{"quantum optics"}},
		{ID: "b", Department: "Physics", Interests: []string{"optics"}},
	} {
		r.UpdatedAt = t0
		require.NoError(t, e.Store().UpsertResearcher(context.Background(), r))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	assert.Eventually(t, func() bool {
		opps, err := e.ListOpportunities(context.Background(), types.OpportunityFilter{})
		return err == nil && len(opps) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
