// Package anthropic implements the vision provider against the Anthropic
// messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openshelf/shelfscan/internal/apperr"
	"github.com/openshelf/shelfscan/internal/config"
	"github.com/openshelf/shelfscan/internal/vision/extract"
	"github.com/openshelf/shelfscan/pkg/models"
)

const apiVersion = "2023-06-01"

const userInstruction = "Analyze this shelf image and provide detailed information about ALL visible products according to the format specified. Be comprehensive and do not omit any visible products."

// Provider implements models.VisionProvider using the Anthropic API.
type Provider struct {
	cfg           config.AnthropicConfig
	maxImageBytes int64
	client        *http.Client
}

// NewProvider creates an Anthropic provider. The HTTP client carries no
// timeout of its own; each call is bounded by the caller's context.
func NewProvider(cfg config.AnthropicConfig, maxImageBytes int64) *Provider {
	return &Provider{
		cfg:           cfg,
		maxImageBytes: maxImageBytes,
		client:        &http.Client{},
	}
}

func (p *Provider) Name() string { return "anthropic" }

// AnalyzeShelf fetches the image, sends it to the model with the fixed
// merchandising prompt, and extracts the JSON payload from the reply.
func (p *Provider) AnalyzeShelf(ctx context.Context, req models.VisionRequest) (json.RawMessage, error) {
	img, err := fetchImage(ctx, p.client, req.ImageURL, p.maxImageBytes)
	if err != nil {
		return nil, err
	}

	body := messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   4096,
		Temperature: 0,
		System:      shelfAnalysisPrompt(req.IncludeConfidence),
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: img.mediaType,
						Data:      img.base64,
					},
				},
				{Type: "text", Text: userInstruction},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperr.External(0, "calling vision API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.External(resp.StatusCode,
			fmt.Sprintf("vision API returned status %d: %s", resp.StatusCode, detail), nil)
	}

	var reply messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, apperr.External(0, "decoding vision API response", err)
	}
	if len(reply.Content) == 0 {
		return nil, apperr.Extraction("vision API reply carried no content blocks", nil)
	}

	return extract.JSON(reply.Content[0].Text)
}

// --- Anthropic wire types ---

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Compile-time check that Provider implements VisionProvider.
var _ models.VisionProvider = (*Provider)(nil)
