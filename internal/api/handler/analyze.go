// Package handler implements the HTTP handlers for the analysis API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/shelfscan/internal/analysis"
	"github.com/openshelf/shelfscan/internal/api/response"
	"github.com/openshelf/shelfscan/internal/store"
	"github.com/openshelf/shelfscan/pkg/models"
)

// AnalysisHandler serves the shelf-image analysis endpoints.
type AnalysisHandler struct {
	svc *analysis.Service
	log *slog.Logger
}

func NewAnalysisHandler(svc *analysis.Service, log *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, log: log}
}

type analyzeRequest struct {
	ImageURL          string `json:"imageUrl"`
	ImageID           string `json:"imageId"`
	IncludeConfidence bool   `json:"includeConfidence"`
	UseQueue          *bool  `json:"useQueue"`
	Wait              bool   `json:"wait"`
}

type analyzeResponse struct {
	Success          bool                   `json:"success"`
	JobID            string                 `json:"jobId,omitempty"`
	Status           string                 `json:"status"`
	Data             *models.AnalysisResult `json:"data,omitempty"`
	Fallback         bool                   `json:"fallback,omitempty"`
	ProcessingTimeMS int64                  `json:"processingTimeMs"`
}

// Analyze accepts an image for analysis. In direct mode (the default) it runs
// the model inline and returns the result; with useQueue it enqueues and
// answers queued immediately, and with wait on top it blocks until the job
// settles and returns the settled result.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
		return
	}

	imageURL, imageID, err := validateAnalyzeRequest(req.ImageURL, req.ImageID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	useQueue := req.UseQueue != nil && *req.UseQueue
	outcome, err := h.svc.Analyze(r.Context(), analysis.Request{
		ImageURL:          imageURL,
		ImageID:           imageID,
		IncludeConfidence: req.IncludeConfidence,
		UseQueue:          useQueue,
		Wait:              req.Wait,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrPollTimeout) {
			response.Error(w, http.StatusGatewayTimeout, "POLL_TIMEOUT",
				"Analysis did not complete in time; poll the status endpoint", nil)
			return
		}
		h.log.Error("analyze request failed", slog.String("image_id", imageID), slog.String("error", err.Error()))
		response.AppError(w, err)
		return
	}

	resp := analyzeResponse{
		Success:          true,
		Status:           outcome.Status,
		Data:             outcome.Result,
		Fallback:         outcome.Fallback,
		ProcessingTimeMS: outcome.ProcessingMS,
	}
	if outcome.JobID != uuid.Nil {
		resp.JobID = outcome.JobID.String()
	}
	response.JSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	ImageID string `json:"imageId"`
}

type statusResponse struct {
	Success   bool                   `json:"success"`
	JobID     string                 `json:"jobId"`
	Status    string                 `json:"status"`
	Data      *models.AnalysisResult `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Attempts  int                    `json:"attempts"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Status reports the most recent job for an image id.
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
		return
	}
	imageID, err := sanitizeImageID(req.ImageID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	job, err := h.svc.Status(r.Context(), imageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No analysis job found for image", nil)
			return
		}
		response.AppError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, statusResponse{
		Success:   true,
		JobID:     job.JobID.String(),
		Status:    job.Status,
		Data:      job.Result,
		Error:     job.Error,
		Attempts:  job.Attempts,
		CreatedAt: job.CreatedAt,
	})
}

type processNextResponse struct {
	Success          bool   `json:"success"`
	JobID            string `json:"jobId,omitempty"`
	ImageID          string `json:"imageId,omitempty"`
	Status           string `json:"status,omitempty"`
	ProcessingTimeMS int64  `json:"processingTimeMs"`
	Message          string `json:"message,omitempty"`
}

// ProcessNext claims and processes one pending job. Workers call this on a
// schedule; an empty queue is a success with no job, not an error.
func (h *AnalysisHandler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	view, err := h.svc.ProcessNext(r.Context())
	if err != nil {
		if errors.Is(err, analysis.ErrNoPendingJobs) {
			response.JSON(w, http.StatusOK, processNextResponse{
				Success:          true,
				Message:          "no pending jobs",
				ProcessingTimeMS: time.Since(start).Milliseconds(),
			})
			return
		}
		h.log.Error("process-next failed", slog.String("error", err.Error()))
		response.AppError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, processNextResponse{
		Success:          true,
		JobID:            view.JobID.String(),
		ImageID:          view.ImageID,
		Status:           view.Status,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	})
}
