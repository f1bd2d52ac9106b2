// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline keeps entity embeddings current. Entity change events
// become embedding jobs on a bounded coalescing queue; a pool of workers
// embeds the entity text and writes the vector, retrying infrastructure
// failures with exponential backoff until a job is dead-lettered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/collabmatch/internal/embed"
	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// EntityStore reads entities and persists job state.
type EntityStore interface {
	Entity(ctx context.Context, ref types.EntityRef) (types.Entity, error)
	ListEntityRefs(ctx context.Context, t types.EntityType) ([]types.EntityRef, error)
	GetJob(ctx context.Context, ref types.EntityRef) (types.EmbeddingJob, error)
	SaveJob(ctx context.Context, j types.EmbeddingJob) error
	DeleteJob(ctx context.Context, ref types.EntityRef) error
	ListJobs(ctx context.Context, states ...types.JobState) ([]types.EmbeddingJob, error)
}

// VectorStore stores embeddings.
type VectorStore interface {
	Get(ctx context.Context, ref types.EntityRef) (types.Embedding, error)
	Upsert(ctx context.Context, e types.Embedding) error
	Delete(ctx context.Context, ref types.EntityRef) error
}

// Embedder computes embeddings. Embed never fails.
type Embedder interface {
	Embed(ctx context.Context, text string) embed.Result
}

// Pipeline owns the job queue and its workers.
type Pipeline struct {
	entities EntityStore
	vectors  VectorStore
	embedder Embedder
	cfg      types.PipelineConfig
	queue    *Queue
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	onBurst  func()

	completed atomic.Int64

	// attempts mirrors persisted attempt counts so that retries still
	// dead-letter when the job row cannot be written.
	mu       sync.Mutex
	attempts map[types.EntityRef]int
	force    map[types.EntityRef]bool

	// retryCtx outlives individual Enqueue calls; delayed retries use it.
	retryCtx atomic.Pointer[context.Context]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records job and queue metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// OnBurst registers fn to be called after every RankTriggerBurst completed
// jobs. fn must not block.
func OnBurst(fn func()) Option {
	return func(p *Pipeline) { p.onBurst = fn }
}

// New creates a pipeline. Call Run to start the workers.
func New(entities EntityStore, vectors VectorStore, embedder Embedder, cfg types.PipelineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		entities: entities,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		queue:    NewQueue(cfg.QueueDepth),
		attempts: make(map[types.EntityRef]int),
		force:    make(map[types.EntityRef]bool),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	bg := context.Background()
	p.retryCtx.Store(&bg)
	return p
}

// Queue returns the pipeline's job queue.
func (p *Pipeline) Queue() *Queue {
	return p.queue
}

// Run starts cfg.Workers workers and blocks until ctx is done. Delayed
// retries scheduled during the run are abandoned when it ends; the
// persisted job rows let Recover pick them up again.
func (p *Pipeline) Run(ctx context.Context) error {
	p.retryCtx.Store(&ctx)

	workers := max(p.cfg.Workers, 1)
	p.logger.Info("embedding pipeline started", "workers", workers, "queue_depth", p.cfg.QueueDepth)

	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				ref, err := p.queue.Pop(ctx)
				if err != nil {
					if errors.Is(err, types.ErrQueueClosed) || ctx.Err() != nil {
						return nil
					}
					return err
				}
				p.metrics.SetQueueDepth(p.queue.Len())
				p.process(ctx, ref)
				p.finish(ctx, ref)
			}
		})
	}
	err := g.Wait()
	p.logger.Info("embedding pipeline stopped")
	return err
}

// Enqueue schedules ref for embedding and resets its attempt count. It
// blocks while the queue is full unless ref is already queued or running.
func (p *Pipeline) Enqueue(ctx context.Context, ref types.EntityRef) (PushResult, error) {
	if err := p.entities.SaveJob(ctx, types.EmbeddingJob{
		Ref:       ref,
		State:     types.JobQueued,
		UpdatedAt: p.now(),
	}); err != nil {
		return 0, fmt.Errorf("queueing %s: %w", ref, err)
	}
	p.setAttempts(ref, 0)
	res, err := p.queue.Push(ctx, ref)
	if err != nil {
		return res, fmt.Errorf("queueing %s: %w", ref, err)
	}
	p.metrics.SetQueueDepth(p.queue.Len())
	return res, nil
}

// Rebuild enqueues ref like Enqueue and recomputes its embedding even if
// the stored one is current. It also lifts a dead-lettered job.
func (p *Pipeline) Rebuild(ctx context.Context, ref types.EntityRef) (PushResult, error) {
	p.mu.Lock()
	p.force[ref] = true
	p.mu.Unlock()
	return p.Enqueue(ctx, ref)
}

// Cancel drops any queued job for ref and deletes its job row. A running
// job finishes but its result is discarded.
func (p *Pipeline) Cancel(ctx context.Context, ref types.EntityRef) error {
	p.queue.Cancel(ref)
	p.setAttempts(ref, 0)
	if err := p.entities.DeleteJob(ctx, ref); err != nil {
		return fmt.Errorf("cancelling %s: %w", ref, err)
	}
	return nil
}

// Recover requeues jobs that were queued, running or awaiting retry when
// the process last stopped. Attempt counts are kept.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	jobs, err := p.entities.ListJobs(ctx, types.JobQueued, types.JobRunning, types.JobFailed)
	if err != nil {
		return 0, fmt.Errorf("recovering jobs: %w", err)
	}
	for _, j := range jobs {
		if _, err := p.queue.Push(ctx, j.Ref); err != nil {
			return 0, fmt.Errorf("recovering %s: %w", j.Ref, err)
		}
	}
	if len(jobs) > 0 {
		p.logger.Info("recovered embedding jobs", "count", len(jobs))
	}
	p.metrics.SetQueueDepth(p.queue.Len())
	return len(jobs), nil
}

// Backfill enqueues every entity that has no embedding and no job.
func (p *Pipeline) Backfill(ctx context.Context) (int, error) {
	n := 0
	for _, t := range []types.EntityType{types.EntityResearcher, types.EntityPublication} {
		refs, err := p.entities.ListEntityRefs(ctx, t)
		if err != nil {
			return n, fmt.Errorf("backfilling %ss: %w", t, err)
		}
		for _, ref := range refs {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			default:
			}

			if _, err := p.vectors.Get(ctx, ref); err == nil {
				continue
			} else if !errors.Is(err, types.ErrNotFound) {
				return n, fmt.Errorf("backfilling %s: %w", ref, err)
			}
			if _, err := p.entities.GetJob(ctx, ref); err == nil {
				continue
			}
			if _, err := p.Enqueue(ctx, ref); err != nil {
				return n, err
			}
			n++
		}
	}
	if n > 0 {
		p.logger.Info("backfilled missing embeddings", "count", n)
	}
	return n, nil
}

// WaitIdle blocks until the queue is empty, no job is running, and no
// retry is scheduled.
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	return p.queue.WaitIdle(ctx)
}

// Backoff returns the retry delay after the given number of failed
// attempts: BaseBackoff doubled per attempt, capped at MaxBackoff.
func Backoff(cfg types.PipelineConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if cfg.MaxBackoff > 0 && d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}

// process runs one job to completion, failure or discard.
func (p *Pipeline) process(ctx context.Context, ref types.EntityRef) {
	job, err := p.entities.GetJob(ctx, ref)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		p.fail(ctx, types.EmbeddingJob{Ref: ref}, fmt.Errorf("reading job: %w", err))
		return
	}
	job.Ref = ref
	job.Attempts = max(job.Attempts, p.attemptsFor(ref))

	ent, err := p.entities.Entity(ctx, ref)
	if errors.Is(err, types.ErrNotFound) {
		p.logger.Debug("discarding job for deleted entity", "ref", ref.String())
		p.metrics.RecordJob(metrics.JobDiscarded)
		if err := p.entities.DeleteJob(ctx, ref); err != nil {
			p.logger.Warn("deleting job", "ref", ref.String(), "error", err)
		}
		return
	}
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("reading entity: %w", err))
		return
	}

	job.State = types.JobRunning
	job.UpdatedAt = p.now()
	if err := p.entities.SaveJob(ctx, job); err != nil {
		p.fail(ctx, job, err)
		return
	}

	if !utf8.ValidString(ent.Text) {
		p.fail(ctx, job, fmt.Errorf("%w: text is not valid UTF-8", types.ErrInvalidEntity))
		return
	}

	hash := embed.ContentHash(ent.Text)
	force := p.takeForce(ref)
	if cur, err := p.vectors.Get(ctx, ref); err == nil {
		if !force && cur.ContentHash == hash && cur.SourceVersion >= ent.Version() {
			p.complete(ctx, job, metrics.JobUnchanged)
			return
		}
	} else if !errors.Is(err, types.ErrNotFound) {
		p.fail(ctx, job, fmt.Errorf("reading embedding: %w", err))
		return
	}

	res := p.embedder.Embed(ctx, ent.Text)
	if p.queue.Cancelled(ref) {
		p.discard(ctx, ref)
		return
	}

	err = p.vectors.Upsert(ctx, types.Embedding{
		Ref:           ref,
		Vector:        res.Vector,
		LowConfidence: res.LowConfidence,
		ContentHash:   hash,
		SourceVersion: ent.Version(),
		Model:         res.Model,
		UpdatedAt:     p.now(),
	})
	switch {
	case errors.Is(err, types.ErrStaleWrite):
		p.logger.Debug("newer embedding already stored", "ref", ref.String())
	case err != nil:
		p.fail(ctx, job, err)
		return
	}

	// A delete that raced with the write removes the vector here; one that
	// comes later removes it itself.
	if p.queue.Cancelled(ref) {
		p.discard(ctx, ref)
		return
	}
	p.complete(ctx, job, metrics.JobDone)
}

// finish releases ref after a run. A ref that changed while it was running
// is pending again, and its job row is put back to queued.
func (p *Pipeline) finish(ctx context.Context, ref types.EntityRef) {
	if !p.queue.Done(ref) {
		return
	}
	p.metrics.SetQueueDepth(p.queue.Len())

	job, err := p.entities.GetJob(ctx, ref)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		p.logger.Warn("reading requeued job", "ref", ref.String(), "error", err)
		return
	}
	job.Ref = ref
	job.State = types.JobQueued
	job.NotBefore = time.Time{}
	job.UpdatedAt = p.now()
	if err := p.entities.SaveJob(ctx, job); err != nil {
		p.logger.Warn("saving requeued job", "ref", ref.String(), "error", err)
	}
}

func (p *Pipeline) complete(ctx context.Context, job types.EmbeddingJob, outcome string) {
	p.setAttempts(job.Ref, 0)
	job.State = types.JobDone
	job.Attempts = 0
	job.LastError = ""
	job.NotBefore = time.Time{}
	job.UpdatedAt = p.now()
	if err := p.entities.SaveJob(ctx, job); err != nil {
		p.logger.Warn("saving completed job", "ref", job.Ref.String(), "error", err)
	}
	p.metrics.RecordJob(outcome)

	n := p.completed.Add(1)
	if burst := int64(p.cfg.RankTriggerBurst); burst > 0 && n%burst == 0 && p.onBurst != nil {
		p.logger.Debug("embedding burst complete, triggering ranking", "completed", n)
		p.onBurst()
	}
}

func (p *Pipeline) discard(ctx context.Context, ref types.EntityRef) {
	p.logger.Debug("discarding result for deleted entity", "ref", ref.String())
	p.metrics.RecordJob(metrics.JobDiscarded)
	if err := p.vectors.Delete(ctx, ref); err != nil {
		p.logger.Warn("deleting embedding", "ref", ref.String(), "error", err)
	}
	if err := p.entities.DeleteJob(ctx, ref); err != nil {
		p.logger.Warn("deleting job", "ref", ref.String(), "error", err)
	}
}

// fail records an infrastructure failure and schedules a retry, or moves
// the job to the dead letter state once MaxAttempts is reached.
func (p *Pipeline) fail(ctx context.Context, job types.EmbeddingJob, cause error) {
	job.Attempts = max(job.Attempts, p.attemptsFor(job.Ref)) + 1
	p.setAttempts(job.Ref, job.Attempts)
	job.LastError = cause.Error()
	job.UpdatedAt = p.now()

	if job.Attempts >= p.cfg.MaxAttempts {
		job.State = types.JobDeadLetter
		job.NotBefore = time.Time{}
		p.logger.Error("embedding job dead-lettered",
			"ref", job.Ref.String(), "attempts", job.Attempts, "error", cause)
		p.metrics.RecordJob(metrics.JobDeadLetter)
	} else {
		delay := Backoff(p.cfg, job.Attempts)
		job.State = types.JobFailed
		job.NotBefore = job.UpdatedAt.Add(delay)
		p.logger.Warn("embedding job failed, will retry",
			"ref", job.Ref.String(), "attempts", job.Attempts, "retry_in", delay, "error", cause)
		p.metrics.RecordJob(metrics.JobRetry)
		p.queue.PushAfter(*p.retryCtx.Load(), job.Ref, delay)
	}

	if err := p.entities.SaveJob(ctx, job); err != nil {
		p.logger.Warn("saving failed job", "ref", job.Ref.String(), "error", err)
	}
}

func (p *Pipeline) attemptsFor(ref types.EntityRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[ref]
}

func (p *Pipeline) takeForce(ref types.EntityRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.force[ref]
	delete(p.force, ref)
	return f
}

func (p *Pipeline) setAttempts(ref types.EntityRef, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n == 0 {
		delete(p.attempts, ref)
		return
	}
	p.attempts[ref] = n
}
