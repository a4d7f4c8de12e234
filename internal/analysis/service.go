// Package analysis orchestrates shelf-image analysis: it owns the job queue
// lifecycle, drives the vision provider through the retry loop, normalizes the
// model output, and falls back to previously stored results when a fresh
// analysis cannot be produced.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/shelfscan/internal/cache"
	"github.com/openshelf/shelfscan/internal/config"
	"github.com/openshelf/shelfscan/internal/normalize"
	"github.com/openshelf/shelfscan/internal/retry"
	"github.com/openshelf/shelfscan/internal/store"
	"github.com/openshelf/shelfscan/pkg/models"
)

// ErrNoPendingJobs is returned by ProcessNext when the queue is empty.
var ErrNoPendingJobs = errors.New("no pending jobs")

// ErrPollTimeout is returned by Analyze in queue mode when the job does not
// reach a terminal state within the polling budget. The job keeps running in
// the background; clients can recover the result via Status later.
var ErrPollTimeout = errors.New("timed out waiting for analysis to complete")

// StatusQueued is the response label for a job accepted into the queue. The
// stored row is pending until a worker claims it.
const StatusQueued = "queued"

// Request describes one analysis invocation.
type Request struct {
	ImageURL          string
	ImageID           string
	IncludeConfidence bool
	// UseQueue routes the request through the durable queue instead of
	// calling the model inline.
	UseQueue bool
	// Wait blocks a queued request until the job settles instead of
	// returning the job id right away.
	Wait bool
}

// Outcome is what one analysis produced, including whether the result came
// from the model or a fallback source.
type Outcome struct {
	Result       *models.AnalysisResult
	JobID        uuid.UUID
	Status       string
	Fallback     bool
	FallbackFrom string
	ProcessingMS int64
}

// JobView is the client-facing snapshot of a job's state.
type JobView struct {
	JobID       uuid.UUID
	ImageID     string
	Status      string
	Attempts    int
	Result      *models.AnalysisResult
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Service coordinates the queue, the vision provider, and the fallback stores.
type Service struct {
	store    store.Store
	cache    cache.Cache
	provider models.VisionProvider
	log      *slog.Logger

	retryCfg retry.Config
	cacheTTL time.Duration
	poll     config.AnalysisConfig
}

func NewService(st store.Store, c cache.Cache, provider models.VisionProvider, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:    st,
		cache:    c,
		provider: provider,
		log:      log,
		retryCfg: retry.Config{
			RetryCount:     cfg.Vision.RetryCount,
			AttemptTimeout: cfg.Vision.AttemptTimeout,
			BackoffBase:    cfg.Vision.BackoffBase,
			BackoffMax:     cfg.Vision.BackoffMax,
		},
		cacheTTL: cfg.Analysis.CacheTTL,
		poll:     cfg.Analysis,
	}
}

// Enqueue stores a new pending job for the image.
func (s *Service) Enqueue(ctx context.Context, imageURL, imageID string, includeConfidence bool) (*models.AnalysisJob, error) {
	job, err := s.store.EnqueueJob(ctx, imageURL, imageID, includeConfidence)
	if err != nil {
		return nil, fmt.Errorf("enqueuing job: %w", err)
	}
	if err := s.cache.SetJobStatus(ctx, job.ID, job.Status, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache job status", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
	}
	s.log.Info("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("image_id", imageID),
	)
	return job, nil
}

// Analyze runs one analysis end to end. In direct mode the model is called
// inline and the outcome returned immediately. In queue mode the job is
// enqueued and its id returned with a queued status, leaving processing to
// the worker endpoint; with Wait set, the call instead processes inline and
// polls until the job settles or the polling budget runs out.
func (s *Service) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	if !req.UseQueue {
		return s.analyzeDirect(ctx, req)
	}

	start := time.Now()
	job, err := s.Enqueue(ctx, req.ImageURL, req.ImageID, req.IncludeConfidence)
	if err != nil {
		return nil, err
	}

	if !req.Wait {
		return &Outcome{
			JobID:        job.ID,
			Status:       StatusQueued,
			ProcessingMS: time.Since(start).Milliseconds(),
		}, nil
	}

	// The enqueued job is picked up by the same claim path external workers
	// use, so inline and worker-driven processing stay equivalent.
	if _, err := s.ProcessNext(ctx); err != nil && !errors.Is(err, ErrNoPendingJobs) {
		s.log.Warn("inline processing failed, falling back to polling",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	return s.awaitJob(ctx, job.ID, req.ImageID)
}

func (s *Service) analyzeDirect(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	result, fallback, source := s.runAnalysis(ctx, req)
	return &Outcome{
		Result:       result,
		Status:       models.JobStatusCompleted,
		Fallback:     fallback,
		FallbackFrom: source,
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}

// ProcessNext claims the oldest pending job and runs it to a terminal state.
// It returns ErrNoPendingJobs when the queue is empty. A claimed job always
// settles: the model path completes it, and any failure path records a
// fallback result and marks the job failed so it is never retried by a later
// claim.
func (s *Service) ProcessNext(ctx context.Context) (*JobView, error) {
	job, err := s.store.ClaimNextJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return nil, ErrNoPendingJobs
	}

	log := s.log.With(
		slog.String("job_id", job.ID.String()),
		slog.String("image_id", job.ImageID),
	)
	log.Info("job claimed", slog.Int("attempts", job.Attempts))
	s.publishStatus(ctx, job.ID, models.JobStatusProcessing)

	raw, err := retry.Do(ctx, log, s.retryCfg, func(ctx context.Context) (json.RawMessage, error) {
		return s.provider.AnalyzeShelf(ctx, models.VisionRequest{
			ImageURL:          job.ImageURL,
			ImageID:           job.ImageID,
			IncludeConfidence: job.IncludeConfidence,
		})
	})
	if err != nil {
		log.Error("analysis failed after retries", slog.String("error", err.Error()))
		result, _, source := s.fallbackResult(ctx, job.ImageID)
		log.Info("using fallback result", slog.String("source", source))
		if failErr := s.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			log.Error("failed to mark job failed", slog.String("error", failErr.Error()))
		}
		s.publishStatus(ctx, job.ID, models.JobStatusFailed)
		return &JobView{
			JobID:   job.ID,
			ImageID: job.ImageID,
			Status:  models.JobStatusFailed,
			Result:  result,
			Error:   err.Error(),
		}, nil
	}

	result := normalize.Result(raw)
	if err := s.store.CompleteJob(ctx, job.ID, result); err != nil {
		return nil, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	s.persistResult(ctx, job.ImageID, result)
	s.publishStatus(ctx, job.ID, models.JobStatusCompleted)
	log.Info("job completed", slog.Int("records", len(result.Records())))

	return &JobView{
		JobID:   job.ID,
		ImageID: job.ImageID,
		Status:  models.JobStatusCompleted,
		Result:  result,
	}, nil
}

// Status reports the most recent job for an image. Returns store.ErrNotFound
// when no job has ever been enqueued for the image.
func (s *Service) Status(ctx context.Context, imageID string) (*JobView, error) {
	job, err := s.store.JobByImageID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	view := &JobView{
		JobID:       job.ID,
		ImageID:     job.ImageID,
		Status:      job.Status,
		Attempts:    job.Attempts,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.ErrorMessage != nil {
		view.Error = *job.ErrorMessage
	}
	return view, nil
}

// runAnalysis performs the model call with retries and falls back on failure.
// It never returns a nil-equivalent result.
func (s *Service) runAnalysis(ctx context.Context, req Request) (*models.AnalysisResult, bool, string) {
	raw, err := retry.Do(ctx, s.log, s.retryCfg, func(ctx context.Context) (json.RawMessage, error) {
		return s.provider.AnalyzeShelf(ctx, models.VisionRequest{
			ImageURL:          req.ImageURL,
			ImageID:           req.ImageID,
			IncludeConfidence: req.IncludeConfidence,
		})
	})
	if err != nil {
		s.log.Error("analysis failed after retries",
			slog.String("image_id", req.ImageID),
			slog.String("error", err.Error()),
		)
		return s.fallbackResult(ctx, req.ImageID)
	}

	result := normalize.Result(raw)
	s.persistResult(ctx, req.ImageID, result)
	return result, false, ""
}

// fallbackResult finds the best stale result for an image: the Redis cache
// first, then the durable picture record, then an empty well-formed result.
func (s *Service) fallbackResult(ctx context.Context, imageID string) (*models.AnalysisResult, bool, string) {
	if cached, ok, err := s.cache.GetAnalysis(ctx, imageID); err == nil && ok {
		return normalize.Records(cached), true, "cache"
	} else if err != nil {
		s.log.Warn("cache fallback lookup failed", slog.String("image_id", imageID), slog.String("error", err.Error()))
	}

	stored, err := s.store.ReadAnalysis(ctx, imageID)
	if err == nil {
		return normalize.Records(stored), true, "store"
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("store fallback lookup failed", slog.String("image_id", imageID), slog.String("error", err.Error()))
	}

	return models.EmptyAnalysisResult(), true, "empty"
}

// persistResult writes a fresh result to both the durable picture record and
// the cache. Neither write is allowed to fail the analysis itself.
func (s *Service) persistResult(ctx context.Context, imageID string, result *models.AnalysisResult) {
	if err := s.store.WriteAnalysis(ctx, imageID, result); err != nil {
		s.log.Error("failed to persist analysis", slog.String("image_id", imageID), slog.String("error", err.Error()))
	}
	if err := s.cache.SetAnalysis(ctx, imageID, result, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache analysis", slog.String("image_id", imageID), slog.String("error", err.Error()))
	}
}

func (s *Service) publishStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if err := s.cache.SetJobStatus(ctx, jobID, status, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache job status", slog.String("job_id", jobID.String()), slog.String("error", err.Error()))
	}
}

// awaitJob polls its own job by id until it settles or the budget runs out.
// Resolving by id rather than by image keeps a concurrent enqueue for the
// same image from shadowing this caller's job.
func (s *Service) awaitJob(ctx context.Context, jobID uuid.UUID, imageID string) (*Outcome, error) {
	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, s.poll.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(s.poll.PollInterval)
	defer ticker.Stop()

	for {
		job, err := s.store.JobByID(pollCtx, jobID)
		if err == nil && job.Terminal() {
			outcome := &Outcome{
				JobID:        jobID,
				Status:       job.Status,
				Fallback:     job.Status == models.JobStatusFailed,
				ProcessingMS: time.Since(start).Milliseconds(),
			}
			if job.Result != nil {
				outcome.Result = job.Result
			} else {
				result, _, source := s.fallbackResult(ctx, imageID)
				outcome.Result = result
				outcome.FallbackFrom = source
			}
			return outcome, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("polling job %s: %w", jobID, err)
		}

		select {
		case <-pollCtx.Done():
			return nil, fmt.Errorf("%w (job %s)", ErrPollTimeout, jobID)
		case <-ticker.C:
		}
	}
}
