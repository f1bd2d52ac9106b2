// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine wires storage, the embedder, the embedding pipeline and
// the ranker into the interface the serving and ingestion layers use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/collabmatch/internal/embed"
	"github.com/pdiddy/collabmatch/internal/graph"
	"github.com/pdiddy/collabmatch/internal/match"
	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/internal/pipeline"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/internal/vectorstore"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// SimilarFilter narrows FindSimilar results.
type SimilarFilter struct {
	Department string `json:"department,omitempty"`
}

// Engine is the collaboration matching engine.
type Engine struct {
	cfg      types.Config
	store    *store.Store
	vectors  *vectorstore.Store
	embedder *embed.Embedder
	pipeline *pipeline.Pipeline
	ranker   *match.Ranker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// rankRequests carries burst triggers to the sweep scheduler.
	rankRequests chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records metrics for every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEmbedder replaces the embedder built from configuration.
func WithEmbedder(emb *embed.Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Open opens the database and builds every component from cfg.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		logger:       slog.Default(),
		now:          time.Now,
		rankRequests: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	e.store = st

	if e.embedder == nil {
		e.embedder, err = embed.NewFromConfig(ctx, cfg.Embedder,
			embed.WithLogger(e.logger), embed.WithMetrics(e.metrics))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}

	e.vectors, err = vectorstore.New(st.DB(), e.embedder.Dimension())
	if err != nil {
		st.Close()
		return nil, err
	}

	e.pipeline = pipeline.New(st, e.vectors, e.embedder, cfg.Pipeline,
		pipeline.WithLogger(e.logger),
		pipeline.WithMetrics(e.metrics),
		pipeline.WithClock(e.now),
		pipeline.OnBurst(e.requestRank),
	)
	e.ranker = match.NewRanker(st, e.vectors, cfg.Match,
		match.WithLogger(e.logger),
		match.WithMetrics(e.metrics),
		match.WithClock(e.now),
	)
	return e, nil
}

// Close stops accepting embedding jobs and releases the database.
func (e *Engine) Close() error {
	e.pipeline.Queue().Close()
	return e.store.Close()
}

// Store returns the entity store for ingestion and reads.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Embedder returns the text embedder.
func (e *Engine) Embedder() *embed.Embedder {
	return e.embedder
}

// Run starts the embedding workers and the sweep scheduler, recovers
// interrupted jobs, backfills missing embeddings, and blocks until ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pipeline.Run(ctx) })
	g.Go(func() error {
		if err := e.prepare(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("recovering embedding jobs", "error", err)
		}
		return nil
	})
	g.Go(func() error { return e.schedule(ctx) })
	return g.Wait()
}

// Process starts the embedding workers, calls fn, waits for every queued
// job to finish and stops the workers. Ranking is left to the caller.
func (e *Engine) Process(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- e.pipeline.Run(runCtx) }()

	err := e.prepare(ctx)
	if err == nil && fn != nil {
		err = fn(ctx)
	}
	if err == nil {
		err = e.pipeline.WaitIdle(ctx)
	}
	cancel()
	if runErr := <-errc; err == nil {
		err = runErr
	}
	return err
}

func (e *Engine) prepare(ctx context.Context) error {
	if _, err := e.pipeline.Recover(ctx); err != nil {
		return err
	}
	if _, err := e.pipeline.Backfill(ctx); err != nil {
		return err
	}
	return nil
}

// schedule runs a sweep every SweepInterval and whenever the pipeline
// reports a burst of completed jobs.
func (e *Engine) schedule(ctx context.Context) error {
	var tick <-chan time.Time
	if d := e.cfg.Match.SweepInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-e.rankRequests:
		}
		if _, err := e.Rank(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("ranking sweep failed", "error", err)
		}
	}
}

func (e *Engine) requestRank() {
	select {
	case e.rankRequests <- struct{}{}:
	default:
	}
}

// EntityChanged schedules re-embedding when a text-bearing field changed.
// An empty changed list means the fields are unknown and always schedules.
// It reports whether a job was scheduled.
func (e *Engine) EntityChanged(ctx context.Context, t types.EntityType, id string, changed []string) (bool, error) {
	ref, err := entityRef(t, id)
	if err != nil {
		return false, err
	}
	if !types.HasTextChange(ref.Type, changed) {
		return false, nil
	}
	if _, err := e.pipeline.Enqueue(ctx, ref); err != nil {
		return false, err
	}
	return true, nil
}

// EntityDeleted cancels the entity's job and removes its vector, the entity
// row, and every opportunity naming a deleted researcher.
func (e *Engine) EntityDeleted(ctx context.Context, t types.EntityType, id string) error {
	ref, err := entityRef(t, id)
	if err != nil {
		return err
	}
	if err := e.pipeline.Cancel(ctx, ref); err != nil {
		return err
	}
	if err := e.vectors.Delete(ctx, ref); err != nil {
		return err
	}
	if err := e.store.DeleteEntity(ctx, ref); err != nil {
		return err
	}
	if ref.Type == types.EntityResearcher {
		n, err := e.store.DeleteOpportunitiesFor(ctx, id)
		if err != nil {
			return err
		}
		e.logger.Info("researcher deleted", "id", id, "opportunities_removed", n)
	}
	return nil
}

// ListOpportunities returns opportunities ranked by score.
func (e *Engine) ListOpportunities(ctx context.Context, f types.OpportunityFilter) ([]types.Opportunity, error) {
	return e.store.ListOpportunities(ctx, f)
}

// Dismiss marks a pending opportunity dismissed. The pair is not suggested
// again until the cooldown window has passed.
func (e *Engine) Dismiss(ctx context.Context, id string) error {
	return e.store.FinalizeOpportunity(ctx, id, types.StatusDismissed, e.now())
}

// Act marks a pending opportunity actioned.
func (e *Engine) Act(ctx context.Context, id string) error {
	return e.store.FinalizeOpportunity(ctx, id, types.StatusActioned, e.now())
}

// Rank runs a ranking sweep now.
func (e *Engine) Rank(ctx context.Context) (match.RankSummary, error) {
	return e.ranker.Rank(ctx)
}

// Preview returns the drafts a sweep would commit without writing them.
func (e *Engine) Preview(ctx context.Context) ([]types.OpportunityDraft, match.RankSummary, error) {
	return e.ranker.Preview(ctx)
}

// TriggerRebuild re-embeds an entity regardless of its stored embedding
// and clears a dead-lettered job.
func (e *Engine) TriggerRebuild(ctx context.Context, t types.EntityType, id string) error {
	ref, err := entityRef(t, id)
	if err != nil {
		return err
	}
	if _, err := e.store.Entity(ctx, ref); err != nil {
		return err
	}
	_, err = e.pipeline.Rebuild(ctx, ref)
	return err
}

// JobStatus lists embedding jobs in the given states, or all jobs.
func (e *Engine) JobStatus(ctx context.Context, states ...types.JobState) ([]types.EmbeddingJob, error) {
	return e.store.ListJobs(ctx, states...)
}

// WaitIdle blocks until the embedding queue is drained.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.pipeline.WaitIdle(ctx)
}

// QueueDepth returns the number of pending embedding jobs.
func (e *Engine) QueueDepth() int {
	return e.pipeline.Queue().Len()
}

// FindSimilar embeds text and returns the topK most similar researchers,
// optionally restricted to one department. Empty text yields no results.
func (e *Engine) FindSimilar(ctx context.Context, text string, topK int, f SimilarFilter) ([]types.SimilarResearcher, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec := e.embedder.Embed(ctx, text).Vector

	idx, err := e.vectors.Snapshot(ctx, types.EntityResearcher)
	if err != nil {
		return nil, err
	}

	var out []types.SimilarResearcher
	for _, n := range idx.TopNeighbors(vec, 0, -1, nil) {
		if topK > 0 && len(out) >= topK {
			break
		}
		r, err := e.store.GetResearcher(ctx, n.Ref.ID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Department != "" && !graph.SameDepartment(f.Department, r.Department) {
			continue
		}
		out = append(out, types.SimilarResearcher{Researcher: r, Similarity: n.Similarity})
	}
	return out, nil
}

// FindSimilarPublications returns the topK publications closest to a
// researcher's interests, excluding the researcher's own work.
func (e *Engine) FindSimilarPublications(ctx context.Context, researcherID string, topK int) ([]types.SimilarPublication, error) {
	vec, err := e.researcherVector(ctx, researcherID)
	if err != nil {
		return nil, err
	}

	idx, err := e.vectors.Snapshot(ctx, types.EntityPublication)
	if err != nil {
		return nil, err
	}

	var out []types.SimilarPublication
	for _, n := range idx.TopNeighbors(vec, 0, -1, nil) {
		if topK > 0 && len(out) >= topK {
			break
		}
		p, err := e.store.GetPublication(ctx, n.Ref.ID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		own := false
		for _, a := range p.AuthorIDs {
			own = own || a == researcherID
		}
		if own {
			continue
		}
		out = append(out, types.SimilarPublication{Publication: p, Similarity: n.Similarity})
	}
	return out, nil
}

// AlignmentScore rates how well text, such as a grant call, fits a
// researcher's interests, as (1+cos)/2 in [0,1]. Empty text scores 0.
func (e *Engine) AlignmentScore(ctx context.Context, researcherID, text string) (float64, error) {
	vec, err := e.researcherVector(ctx, researcherID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	cos := vectorstore.Cosine(vec, e.embedder.Embed(ctx, text).Vector)
	return (1 + cos) / 2, nil
}

// researcherVector returns the stored embedding, or embeds the
// researcher's text when none is stored yet.
func (e *Engine) researcherVector(ctx context.Context, id string) ([]float32, error) {
	ref := types.EntityRef{Type: types.EntityResearcher, ID: id}
	emb, err := e.vectors.Get(ctx, ref)
	if err == nil {
		return emb.Vector, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	ent, err := e.store.Entity(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.embedder.Embed(ctx, ent.Text).Vector, nil
}

func entityRef(t types.EntityType, id string) (types.EntityRef, error) {
	t, err := types.ParseEntityType(string(t))
	if err != nil {
		return types.EntityRef{}, err
	}
	if strings.TrimSpace(id) == "" {
		return types.EntityRef{}, fmt.Errorf("%w: empty id", types.ErrInvalidEntity)
	}
	return types.EntityRef{Type: t, ID: id}, nil
}
