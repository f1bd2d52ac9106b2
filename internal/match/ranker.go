// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match scores researcher pairs and commits the best of them as
// collaboration opportunities.
//
// A sweep reads one snapshot of researcher embeddings and the collaboration
// graph, generates candidate pairs from nearest neighbours and shared
// departments or SDG tags, scores them, and upserts the top K. Sweeps are
// serialised; a sweep is the only writer of opportunity scores.
package match

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/collabmatch/internal/graph"
	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/internal/store"
	"github.com/pdiddy/collabmatch/internal/vectorstore"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// RankSummary reports the outcome of one sweep.
type RankSummary struct {
	Researchers   int           `json:"researchers"`   // eligible researchers in the snapshot
	Excluded      int           `json:"excluded"`      // researchers skipped: no embedding or dead-lettered
	Candidates    int           `json:"candidates"`    // distinct pairs considered
	Collaborating int           `json:"collaborating"` // candidates dropped as already collaborating
	BelowMin      int           `json:"below_min"`     // candidates scoring under MinMatchScore
	Written       int           `json:"written"`       // opportunities inserted or updated
	Suppressed    int           `json:"suppressed"`    // pairs held back by a dismissal cooldown
	Retired       int           `json:"retired"`       // pending opportunities removed because the pair now collaborates
	Failed        int           `json:"failed"`        // drafts whose commit failed
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// Print writes a human-readable summary to w.
func (s RankSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "Rank: %d researchers (%d excluded), %d candidates\n",
		s.Researchers, s.Excluded, s.Candidates)
	fmt.Fprintf(w, "  already collaborating: %d, below threshold: %d\n", s.Collaborating, s.BelowMin)
	fmt.Fprintf(w, "  written: %d, suppressed: %d, retired: %d, failed: %d (%s)\n",
		s.Written, s.Suppressed, s.Retired, s.Failed, s.Duration.Round(time.Millisecond))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// Ranker runs ranking sweeps.
type Ranker struct {
	store   *store.Store
	vectors *vectorstore.Store
	cfg     types.MatchConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Ranker) { r.logger = l }
}

// WithMetrics records sweep metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// NewRanker creates a Ranker over the entity and vector stores.
func NewRanker(st *store.Store, vs *vectorstore.Store, cfg types.MatchConfig, opts ...Option) *Ranker {
	r := &Ranker{
		store:   st,
		vectors: vs,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// snapshot is the read side of one sweep.
type snapshot struct {
	researchers map[string]types.Researcher
	tags        map[string][]string
	index       *vectorstore.Index
	graph       *graph.Graph
	eligible    []string
	suppressed  map[types.Pair]bool
}

// Rank runs one sweep and commits the top opportunities. Rows that cannot
// be decoded and per-pair failures are reported in the summary; an error is
// returned only when a table cannot be read or ctx is cancelled.
func (r *Ranker) Rank(ctx context.Context) (RankSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	var summary RankSummary
	defer func() {
		summary.Duration = time.Since(start)
		r.metrics.RecordSweep(summary.Duration, summary.Written, summary.Suppressed, summary.Failed)
	}()

	snap, err := r.load(ctx, &summary)
	if err != nil {
		return summary, err
	}

	drafts, err := r.drafts(ctx, snap, &summary)
	if err != nil {
		return summary, err
	}

	now := r.now()
	for _, d := range drafts {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		ok, err := r.store.UpsertOpportunity(ctx, d, now, r.cfg.CooldownWindow)
		switch {
		case err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", d.Pair.Key(), err))
			r.logger.Warn("committing opportunity", "pair", d.Pair.Key(), "error", err)
		case ok:
			summary.Written++
		default:
			summary.Suppressed++
		}
	}

	if err := r.retire(ctx, snap, &summary); err != nil {
		return summary, err
	}

	r.logger.Info("ranking sweep complete",
		"researchers", summary.Researchers,
		"candidates", summary.Candidates,
		"written", summary.Written,
		"suppressed", summary.Suppressed,
		"retired", summary.Retired,
		"failed", summary.Failed,
	)
	return summary, nil
}

// Preview scores candidates like Rank but commits nothing. It returns the
// drafts a sweep would write, in commit order.
func (r *Ranker) Preview(ctx context.Context) ([]types.OpportunityDraft, RankSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summary RankSummary
	snap, err := r.load(ctx, &summary)
	if err != nil {
		return nil, summary, err
	}
	drafts, err := r.drafts(ctx, snap, &summary)
	return drafts, summary, err
}

// retire removes pending opportunities whose pair has since become an
// established collaboration.
func (r *Ranker) retire(ctx context.Context, snap *snapshot, summary *RankSummary) error {
	pending, err := r.store.ListOpportunities(ctx, types.OpportunityFilter{Status: types.StatusPending})
	if err != nil {
		return fmt.Errorf("loading pending opportunities: %w", err)
	}
	for _, o := range pending {
		if !AlreadyCollaborating(r.cfg, snap.graph.Signals(o.Pair.A, o.Pair.B)) {
			continue
		}
		ok, err := r.store.DeletePendingOpportunity(ctx, o.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", o.Pair.Key(), err))
			r.logger.Warn("retiring opportunity", "pair", o.Pair.Key(), "error", err)
			continue
		}
		if ok {
			summary.Retired++
		}
	}
	return nil
}

// load reads the sweep snapshot. A researcher or publication row that
// cannot be decoded, or a researcher embedding of the wrong dimension, is
// left out of this sweep and reported in summary.Errors.
func (r *Ranker) load(ctx context.Context, summary *RankSummary) (*snapshot, error) {
	researchers, badResearchers, err := r.store.ReadResearchers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading researchers: %w", err)
	}
	pubs, badPubs, err := r.store.ReadPublications(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading publications: %w", err)
	}
	edges, err := r.store.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading collaboration edges: %w", err)
	}
	dead, err := r.store.ListJobs(ctx, types.JobDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("loading dead-lettered jobs: %w", err)
	}
	idx, err := r.vectors.Snapshot(ctx, types.EntityResearcher)
	if err != nil {
		return nil, fmt.Errorf("loading researcher embeddings: %w", err)
	}
	suppressed, err := r.store.SuppressedPairs(ctx, r.now(), r.cfg.CooldownWindow)
	if err != nil {
		return nil, fmt.Errorf("loading dismissed pairs: %w", err)
	}

	for _, bad := range append(badResearchers, badPubs...) {
		if bad.Ref.Type == types.EntityResearcher {
			summary.Excluded++
		}
		summary.Errors = append(summary.Errors, bad.Error())
		r.logger.Warn("skipping unreadable entity", "ref", bad.Ref.String(), "error", bad.Err)
	}

	stale := make(map[string]bool, len(dead))
	for _, j := range dead {
		if j.Ref.Type == types.EntityResearcher {
			stale[j.Ref.ID] = true
		}
	}

	snap := &snapshot{
		researchers: make(map[string]types.Researcher, len(researchers)),
		tags:        EffectiveTags(researchers, pubs),
		index:       idx,
		suppressed:  suppressed,
	}
	dim := r.vectors.Dimension()
	profiles := make([]graph.Profile, 0, len(researchers))
	for _, res := range researchers {
		snap.researchers[res.ID] = res
		profiles = append(profiles, graph.Profile{
			ID:         res.ID,
			Department: res.Department,
			SDGTags:    snap.tags[res.ID],
		})

		emb, embedded := idx.Get(researcherRef(res.ID))
		if embedded && len(emb.Vector) != dim {
			summary.Excluded++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v: embedding has %d dimensions, want %d",
				researcherRef(res.ID), types.ErrDimensionMismatch, len(emb.Vector), dim))
			continue
		}
		if !embedded || stale[res.ID] {
			summary.Excluded++
			continue
		}
		snap.eligible = append(snap.eligible, res.ID)
	}
	snap.graph = graph.New(profiles, edges, r.cfg.GraphWeights.MaxPathDepth)
	summary.Researchers = len(snap.eligible)
	return snap, nil
}

// EffectiveTags returns each researcher's own SDG tags merged with the tags
// of publications they authored, normalised and sorted.
func EffectiveTags(researchers []types.Researcher, pubs []types.Publication) map[string][]string {
	sets := make(map[string]map[string]bool, len(researchers))
	add := func(id, tag string) {
		if t := graph.NormalizeTag(tag); t != "" {
			if sets[id] == nil {
				sets[id] = map[string]bool{}
			}
			sets[id][t] = true
		}
	}
	for _, r := range researchers {
		for _, t := range r.SDGTags {
			add(r.ID, t)
		}
	}
	for _, p := range pubs {
		for _, a := range p.AuthorIDs {
			for _, t := range p.SDGTags {
				add(a, t)
			}
		}
	}

	out := make(map[string][]string, len(sets))
	for id, set := range sets {
		tags := make([]string, 0, len(set))
		for t := range set {
			tags = append(tags, t)
		}
		slices.Sort(tags)
		out[id] = tags
	}
	return out
}

// drafts scores every candidate pair in snap and returns the top K drafts
// in commit order.
func (r *Ranker) drafts(ctx context.Context, snap *snapshot, summary *RankSummary) ([]types.OpportunityDraft, error) {
	pairs := r.candidates(snap)
	summary.Candidates = len(pairs)

	now := r.now()
	var drafts []types.OpportunityDraft
	for _, p := range pairs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if snap.suppressed[p] {
			summary.Suppressed++
			continue
		}

		signals := snap.graph.Signals(p.A, p.B)
		if AlreadyCollaborating(r.cfg, signals) {
			summary.Collaborating++
			continue
		}

		ea, _ := snap.index.Get(researcherRef(p.A))
		eb, _ := snap.index.Get(researcherRef(p.B))
		in := Inputs{
			Cosine:        vectorstore.Cosine(ea.Vector, eb.Vector),
			LowConfidence: ea.LowConfidence || eb.LowConfidence,
			Signals:       signals,
		}
		score := Score(r.cfg, in, now)
		if score < r.cfg.MinMatchScore {
			summary.BelowMin++
			continue
		}

		ra, rb := snap.researchers[p.A], snap.researchers[p.B]
		drafts = append(drafts, types.OpportunityDraft{
			Pair:             p,
			Topic:            Topic(ra, rb, snap.tags[p.A], snap.tags[p.B]),
			MatchScore:       score,
			Reason:           Reason(in),
			PublicationCount: ra.PublicationCount + rb.PublicationCount,
		})
	}

	SortDrafts(drafts)
	if k := r.cfg.MaxOpportunitiesPerSweep; k > 0 && len(drafts) > k {
		drafts = drafts[:k]
	}
	return drafts, nil
}

// SortDrafts orders drafts by score descending, then combined publication
// count descending, then pair key ascending.
func SortDrafts(drafts []types.OpportunityDraft) {
	slices.SortFunc(drafts, func(a, b types.OpportunityDraft) int {
		switch {
		case a.MatchScore != b.MatchScore:
			if a.MatchScore > b.MatchScore {
				return -1
			}
			return 1
		case a.PublicationCount != b.PublicationCount:
			return b.PublicationCount - a.PublicationCount
		default:
			return strings.Compare(a.Pair.Key(), b.Pair.Key())
		}
	})
}

// candidates returns the distinct canonical pairs to score, sorted by key.
func (r *Ranker) candidates(snap *snapshot) []types.Pair {
	eligible := make(map[string]bool, len(snap.eligible))
	for _, id := range snap.eligible {
		eligible[id] = true
	}
	seen := map[types.Pair]bool{}
	add := func(a, b string) {
		if a != b && eligible[a] && eligible[b] {
			seen[types.NewPair(a, b)] = true
		}
	}

	if r.cfg.CandidateNeighbors <= 0 {
		for i, a := range snap.eligible {
			for _, b := range snap.eligible[i+1:] {
				add(a, b)
			}
		}
	} else {
		for _, id := range snap.eligible {
			e, _ := snap.index.Get(researcherRef(id))
			skip := func(ref types.EntityRef) bool {
				return ref.ID == id || !eligible[ref.ID]
			}
			for _, n := range snap.index.TopNeighbors(e.Vector, r.cfg.CandidateNeighbors, r.cfg.MinSimilarity, skip) {
				add(id, n.Ref.ID)
			}
		}

		groups := map[string][]string{}
		for _, id := range snap.eligible {
			if d := strings.ToLower(strings.TrimSpace(snap.researchers[id].Department)); d != "" {
				groups["dept:"+d] = append(groups["dept:"+d], id)
			}
			for _, t := range snap.tags[id] {
				groups["tag:"+t] = append(groups["tag:"+t], id)
			}
		}
		for _, members := range groups {
			for i, a := range members {
				for _, b := range members[i+1:] {
					add(a, b)
				}
			}
		}
	}

	out := make([]types.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b types.Pair) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

func researcherRef(id string) types.EntityRef {
	return types.EntityRef{Type: types.EntityResearcher, ID: id}
}
