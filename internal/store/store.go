package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openshelf/shelfscan/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrInvalidTransition is returned when a terminal update targets a job that
// is not currently processing.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Queue
	PictureStore

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// Queue is the durable analysis-job queue. EnqueueJob appends, ClaimNextJob
// hands out exclusive processing rights, and CompleteJob/FailJob settle a
// claim. Records are append-only: jobs reach a terminal state but are never
// removed.
type Queue interface {
	// EnqueueJob stores a new pending job and returns it. The confidence flag
	// rides along so the claiming worker can honor the caller's preference.
	EnqueueJob(ctx context.Context, imageURL, imageID string, includeConfidence bool) (*models.AnalysisJob, error)

	// ClaimNextJob atomically transitions the oldest pending job to
	// processing, incrementing attempts and stamping started_at. It returns
	// nil when no pending job exists. Under concurrent callers a given job is
	// claimed at most once; the transition is a single conditional write, not
	// a read followed by an update.
	ClaimNextJob(ctx context.Context) (*models.AnalysisJob, error)

	// CompleteJob moves a processing job to completed with its result.
	CompleteJob(ctx context.Context, id uuid.UUID, result *models.AnalysisResult) error

	// FailJob moves a processing job to failed with the error message.
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error

	// JobByID returns one job by its id, or ErrNotFound.
	JobByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)

	// JobByImageID returns the most recent job for an image, or ErrNotFound.
	JobByImageID(ctx context.Context, imageID string) (*models.AnalysisJob, error)
}

// PictureStore is the external picture-record collaborator: the analysis_data
// field of a picture record, read for fallbacks and written on success.
type PictureStore interface {
	// ReadAnalysis returns the stored analysis for an image, or ErrNotFound
	// when the picture has no analysis yet.
	ReadAnalysis(ctx context.Context, imageID string) (*models.AnalysisResult, error)

	// WriteAnalysis upserts the analysis for an image.
	WriteAnalysis(ctx context.Context, imageID string, result *models.AnalysisResult) error
}
