// Package fetcher defines the page-fetch contract shared by the plain and
// headless fetchers used to scrape third-party sites.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request describes one page fetch.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw result of a page fetch. Non-2xx statuses are returned, not raised.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}
