package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// AnalysisJob is one durable entry in the shelf-analysis queue. The API returns
// a job_id on POST /analyze-shelf-image; the client polls the status endpoint by
// image_id until status is completed or failed. Jobs are never deleted; they
// double as the audit trail for every analysis ever requested.
//
// At most one consumer may hold a processing claim on a job, and attempts is
// incremented exactly once per claim. Retries that happen inside a single claim
// (the retry loop around the model call) are not visible here.
type AnalysisJob struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	ImageURL string    `db:"image_url" json:"image_url"`
	ImageID  string    `db:"image_id"  json:"image_id"`
	// IncludeConfidence carries the caller's prompt preference to whichever
	// worker eventually claims the job.
	IncludeConfidence bool            `db:"include_confidence" json:"include_confidence"`
	Status            string          `db:"status"             json:"status"`
	Attempts          int             `db:"attempts"           json:"attempts"`
	Result            *AnalysisResult `db:"result"             json:"result,omitempty"`
	ErrorMessage      *string         `db:"error_message"      json:"error_message,omitempty"`
	StartedAt         *time.Time      `db:"started_at"         json:"started_at,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at"       json:"completed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"         json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *AnalysisJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
