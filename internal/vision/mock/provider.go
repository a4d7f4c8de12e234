// Package mock provides a VisionProvider for tests and local development.
package mock

import (
	"context"
	"encoding/json"

	"github.com/openshelf/shelfscan/internal/apperr"
	"github.com/openshelf/shelfscan/pkg/models"
)

// MockProvider satisfies models.VisionProvider for testing.
type MockProvider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.VisionRequest) (json.RawMessage, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) AnalyzeShelf(ctx context.Context, req models.VisionRequest) (json.RawMessage, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return json.RawMessage(`[]`), nil
}

// NewMockProvider returns a MockProvider with a plausible default reply in the
// model's raw field dialect.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, _ models.VisionRequest) (json.RawMessage, error) {
			return json.RawMessage(`[
				{"SKUFullName": "Coca-Cola 500ml Bottle", "SKUBrand": "Coca-Cola", "NumberFacings": 4, "PriceSKU": "$1.29", "ShelfSection": "Middle Left", "OutofStock": false, "Confidence": 0.95, "PackSize": "500ml"},
				{"SKUFullName": "Pepsi 500ml Bottle", "SKUBrand": "Pepsi", "NumberFacings": 0, "PriceSKU": "$1.25", "ShelfSection": "Bottom Right", "OutofStock": true, "Confidence": 0.8}
			]`), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.VisionRequest) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeFunc: func(ctx context.Context, _ models.VisionRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, apperr.External(0, "vision call timed out", ctx.Err())
		},
	}
}

// Compile-time check that MockProvider implements VisionProvider.
var _ models.VisionProvider = (*MockProvider)(nil)
