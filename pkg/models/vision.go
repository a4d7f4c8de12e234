package models

import (
	"context"
	"encoding/json"
)

// VisionProvider is the core interface every vision-model integration must
// implement. Never call a specific provider directly; always inject this
// interface.
type VisionProvider interface {
	// AnalyzeShelf sends the shelf image to the model and returns the
	// structured payload extracted from its reply. The payload is raw JSON in
	// whatever field dialect the model produced; normalization happens later.
	AnalyzeShelf(ctx context.Context, req VisionRequest) (json.RawMessage, error)
	// Name returns the provider identifier (e.g., "anthropic").
	Name() string
}

// VisionRequest is the input to one model invocation.
type VisionRequest struct {
	ImageURL          string
	ImageID           string
	IncludeConfidence bool
}
