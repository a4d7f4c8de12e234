// Package extract pulls a JSON payload out of a free-text model reply.
//
// Vision models are instructed to answer with a fenced JSON block, but replies
// drift: some wrap the payload in a plain fence, some skip the fence entirely
// and embed a bare array in prose. The extraction chain tries each form in
// order and the first successful parse wins.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/openshelf/shelfscan/internal/apperr"
)

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedRe     = regexp.MustCompile("(?s)```\\s*(.*?)```")
	bareArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
)

// JSON extracts the first parseable JSON value from content. The error is an
// extraction error, which the retry loop treats as fatal: the same reply will
// not parse differently on a second attempt.
func JSON(content string) (json.RawMessage, error) {
	for _, candidate := range candidates(content) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, apperr.Extraction("no JSON found in model reply", nil)
}

// candidates returns the extraction attempts in priority order: a ```json
// fence, any bare fence, then the widest bracketed array anywhere in the text,
// and finally the whole reply.
func candidates(content string) []string {
	var out []string
	if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		out = append(out, m[1])
	}
	if m := fencedRe.FindStringSubmatch(content); m != nil {
		out = append(out, m[1])
	}
	if m := bareArrayRe.FindString(content); m != "" {
		out = append(out, m)
	}
	out = append(out, content)
	return out
}
