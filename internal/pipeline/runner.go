package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/quota"
	"github.com/BeyondDrewTV/stylescope/internal/store"
)

// defaultJobTimeout bounds a single background scoring run.
const defaultJobTimeout = 5 * time.Minute

// Runner executes scoring requests as persisted background jobs. Job state
// lives entirely in the store, so pollers keep working across restarts.
type Runner struct {
	pipeline *Pipeline
	store    store.Store
	guard    *quota.Guard
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewRunner creates a job runner over the pipeline.
func NewRunner(p *Pipeline, st store.Store, guard *quota.Guard) *Runner {
	return &Runner{
		pipeline: p,
		store:    st,
		guard:    guard,
		timeout:  defaultJobTimeout,
	}
}

// Enqueue handles one scoring request. A cached book short-circuits to a
// completed job without consuming quota; otherwise quota is checked, a
// queued job is persisted, and scoring proceeds in the background. The
// returned job can be polled by ID immediately.
func (r *Runner) Enqueue(ctx context.Context, q model.BookQuery, identity string) (*model.Job, error) {
	if q.Title == "" || q.Author == "" {
		return nil, eris.New("pipeline: title and author are required")
	}

	cached, err := r.store.GetBook(ctx, q.Title, q.Author)
	if err == nil {
		return r.completeCached(ctx, q, identity, cached)
	}
	if !errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("pipeline: cache lookup failed, treating as miss",
			zap.String("title", q.Title), zap.Error(err))
	}

	if err := r.guard.Allow(ctx, identity); err != nil {
		return nil, err
	}

	job, err := r.store.CreateJob(ctx, q, identity)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}

	r.wg.Add(1)
	go r.run(job)

	return job, nil
}

// Wait blocks until all in-flight jobs finish. For shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// completeCached records a cache hit as an already-completed job.
func (r *Runner) completeCached(ctx context.Context, q model.BookQuery, identity string, book *model.CachedBook) (*model.Job, error) {
	zap.L().Info("pipeline: cache hit",
		zap.String("title", q.Title),
		zap.Int64("book_id", book.ID))

	job, err := r.store.CreateJob(ctx, q, identity)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}

	result := &model.JobResult{BookID: book.ID, Cached: true}
	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted, result, ""); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete cached job")
	}
	job.Status = model.JobStatusCompleted
	job.Result = result
	return job, nil
}

// run executes one job to a terminal state. It runs detached from the
// request context so clients that disconnect don't abort scoring.
func (r *Runner) run(job *model.Job) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("title", job.Query.Title))

	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobStatusRunning, nil, ""); err != nil {
		log.Error("pipeline: mark job running", zap.Error(err))
	}

	result, err := r.pipeline.ScoreBook(ctx, job.Query, ScoreOptions{IncrementRequested: true})
	if err != nil {
		log.Error("pipeline: job failed", zap.Error(err))
		if uerr := r.store.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, nil, err.Error()); uerr != nil {
			log.Error("pipeline: mark job failed", zap.Error(uerr))
		}
		return
	}

	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted, result, ""); err != nil {
		log.Error("pipeline: mark job completed", zap.Error(err))
		return
	}
	log.Info("pipeline: job completed",
		zap.Int64("book_id", result.BookID),
		zap.String("status", string(result.Score.Status)))
}
