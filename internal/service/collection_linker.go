package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/observability"
	"patchdb/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultLinkPollInterval = 750 * time.Millisecond
	defaultLinkMaxAttempts  = 5
	defaultLinkRetryBackoff = 30 * time.Second
	linkStaleAfter          = 15 * time.Minute
)

// CollectionLinkerConfig tunes the collection link worker.
type CollectionLinkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// SubmissionLinker attaches a published submission's photo to its uploader's collection.
type SubmissionLinker interface {
	LinkSubmission(ctx context.Context, job *models.CollectionLinkJob) error
}

// CollectionLinker drains the collection link outbox written by first-time publishes.
type CollectionLinker struct {
	jobs       repository.LinkJobRepository
	linker     SubmissionLinker
	cfg        CollectionLinkerConfig
	now        func() time.Time
	workerOnce sync.Once
}

// NewCollectionLinker returns a worker with defaults filled in.
func NewCollectionLinker(jobs repository.LinkJobRepository, linker SubmissionLinker, cfg CollectionLinkerConfig) *CollectionLinker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultLinkPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultLinkMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultLinkRetryBackoff
	}
	return &CollectionLinker{jobs: jobs, linker: linker, cfg: cfg, now: time.Now}
}

// Start runs the worker until ctx is cancelled. Calling it again is a no-op.
func (l *CollectionLinker) Start(ctx context.Context) {
	l.workerOnce.Do(func() {
		go l.workerLoop(ctx)
	})
}

func (l *CollectionLinker) workerLoop(ctx context.Context) {
	l.requeueStale(ctx)
	lastRequeue := l.now()

	for {
		if ctx.Err() != nil {
			return
		}
		if l.now().Sub(lastRequeue) >= time.Minute {
			l.requeueStale(ctx)
			lastRequeue = l.now()
		}

		processed, err := l.ProcessNext(ctx)
		if err != nil {
			middleware.Logger.ErrorContext(ctx, "Collection link worker failed to claim a job", "error", err)
			if !sleepContext(ctx, time.Second) {
				return
			}
			continue
		}
		if !processed && !sleepContext(ctx, l.cfg.PollInterval) {
			return
		}
	}
}

func (l *CollectionLinker) requeueStale(ctx context.Context) {
	n, err := l.jobs.RequeueStaleProcessing(ctx, linkStaleAfter)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to requeue stale link jobs", "error", err)
		return
	}
	if n > 0 {
		middleware.Logger.InfoContext(ctx, "Requeued stale link jobs", "count", n)
	}
}

// ProcessNext claims and runs one due job. It reports false when nothing was due.
func (l *CollectionLinker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := l.jobs.ClaimNext(ctx, l.now())
	if errors.Is(err, repository.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ctx = observability.WithCorrelationID(ctx, observability.GenerateCorrelationID())
	span, ctx := observability.NewSpan(ctx, "collection_link.process")
	defer span.End()
	span.AddAttributes(
		attribute.Int64("job.id", int64(job.ID)),
		attribute.Int64("patch.number", int64(job.PatchNumber)),
		attribute.Int("job.attempt", job.Attempts),
	)

	fields := map[string]interface{}{
		"job_id":        job.ID,
		"patch_number":  job.PatchNumber,
		"submission_id": job.PatchSubmissionID,
		"attempt":       job.Attempts,
		"trace_id":      span.TraceID(),
	}
	observability.LogAsyncOperationStart(ctx, "collection_link", fields)

	linkErr := l.linker.LinkSubmission(ctx, job)
	if linkErr == nil {
		observability.CollectionLinkJobs.WithLabelValues("done").Inc()
		observability.LogAsyncOperationEnd(ctx, "collection_link", fields)
		return true, l.jobs.MarkDone(ctx, job.ID)
	}

	span.SetError(linkErr)
	observability.LogAsyncOperationError(ctx, "collection_link", linkErr, fields)
	if isPermanentLinkError(linkErr) || job.Attempts >= l.cfg.MaxAttempts {
		observability.CollectionLinkJobs.WithLabelValues("failed").Inc()
		return true, l.jobs.MarkFailed(ctx, job.ID, linkErr.Error())
	}

	observability.CollectionLinkJobs.WithLabelValues("retry").Inc()
	next := l.now().Add(time.Duration(job.Attempts) * l.cfg.RetryBackoff)
	return true, l.jobs.MarkRetry(ctx, job.ID, linkErr.Error(), next)
}

// RetryFailed puts every failed job back in the queue with a fresh attempt budget.
func (l *CollectionLinker) RetryFailed(ctx context.Context) (int64, error) {
	return l.jobs.RetryFailed(ctx)
}

// Failed lists jobs that exhausted their attempts.
func (l *CollectionLinker) Failed(ctx context.Context, limit int) ([]models.CollectionLinkJob, error) {
	return l.jobs.ListByStatus(ctx, models.LinkJobFailed, limit)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
