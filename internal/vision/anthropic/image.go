package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openshelf/shelfscan/internal/apperr"
)

// encodeChunkSize is a multiple of 3 so each chunk encodes without padding
// and the pieces concatenate into one valid base64 string.
const encodeChunkSize = 3072

type fetchedImage struct {
	base64    string
	mediaType string
}

// fetchImage downloads the image and base64-encodes it in fixed-size chunks.
// Images over maxBytes are rejected outright; a retry will not shrink them.
func fetchImage(ctx context.Context, client *http.Client, imageURL string, maxBytes int64) (*fetchedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.External(0, "fetching image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.External(resp.StatusCode,
			fmt.Sprintf("image fetch returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, apperr.External(0, "reading image body", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.Validation("image exceeds maximum size of %d bytes", maxBytes)
	}

	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	for off := 0; off < len(data); off += encodeChunkSize {
		end := off + encodeChunkSize
		if end > len(data) {
			end = len(data)
		}
		sb.WriteString(base64.StdEncoding.EncodeToString(data[off:end]))
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/jpeg"
	}

	return &fetchedImage{base64: sb.String(), mediaType: mediaType}, nil
}
