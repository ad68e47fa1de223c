// Package api hosts the HTTP server, middleware, and handlers for the personal
// site. Notable routes:
//   - GET /healthz / readyz for probes; readyz pings the note store.
//   - GET /metrics for Prometheus scraping.
//   - /notes for the sticky-note board (list, deleted, get, create, patch, delete).
//   - /paint for the shared canvas image.
//   - GET /lastfm/{username} for cached recent scrobbles.
//   - GET /letterboxd/ for the cached film diary.
//
// Mutating routes sit behind a per-IP rate limit and, when configured, an API key.
package api
