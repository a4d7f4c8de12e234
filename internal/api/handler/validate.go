package handler

import (
	"net/url"
	"strings"

	"github.com/openshelf/shelfscan/internal/apperr"
)

const (
	maxImageURLLen = 2048
	maxImageIDLen  = 100

	// defaultImageID correlates jobs whose caller supplied no image id.
	defaultImageID = "unspecified"
)

// validateAnalyzeRequest checks the image URL and sanitizes the image id.
// Failures are validation errors, never retried.
func validateAnalyzeRequest(imageURL, imageID string) (string, string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return "", "", apperr.Validation("imageUrl is required")
	}
	if len(imageURL) > maxImageURLLen {
		return "", "", apperr.Validation("imageUrl exceeds %d characters", maxImageURLLen)
	}
	parsed, err := url.Parse(imageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", apperr.Validation("imageUrl is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", apperr.Validation("imageUrl must use http or https")
	}

	id, err := sanitizeImageID(imageID)
	if err != nil {
		return "", "", err
	}
	return imageURL, id, nil
}

// sanitizeImageID strips an image id to safe characters and bounds its
// length. An empty id maps to a shared sentinel.
func sanitizeImageID(imageID string) (string, error) {
	imageID = strings.TrimSpace(imageID)
	if len(imageID) > maxImageIDLen {
		return "", apperr.Validation("imageId exceeds %d characters", maxImageIDLen)
	}

	var b strings.Builder
	for _, r := range imageID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultImageID, nil
	}
	return b.String(), nil
}
