// Package vision selects and constructs a VisionProvider from configuration.
package vision

import (
	"fmt"

	"github.com/openshelf/shelfscan/internal/config"
	"github.com/openshelf/shelfscan/internal/vision/anthropic"
	"github.com/openshelf/shelfscan/internal/vision/mock"
	"github.com/openshelf/shelfscan/pkg/models"
)

// NewProvider creates a vision provider based on the configured backend.
func NewProvider(cfg config.VisionConfig) (models.VisionProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.MaxImageBytes), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown vision provider: %s", cfg.Provider)
	}
}
