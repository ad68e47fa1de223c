// Package detector decides when a plain page fetch should be retried in headless Chrome.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/personal-site-api/internal/fetcher"
)

// Heuristic flags responses that look like bot walls or script-only shells.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var challengeMarkers = [][]byte{
	[]byte("challenge-platform"),
	[]byte("cf-chl-"),
	[]byte("<title>Just a moment...</title>"),
}

// ShouldPromote reports whether resp is a block page worth re-fetching with a browser.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusOK:
	default:
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(body)
}

// scriptDensityHigh reports whether at least a quarter of the document is inside script tags.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		end := total
		if relEnd := strings.Index(lower[contentStart:], closeTag); relEnd != -1 {
			end = contentStart + relEnd + len(closeTag)
		}
		covered += end - start
		pos = end
	}
	return covered*100/total >= 25
}
