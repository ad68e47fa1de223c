// Package main hosts the personal site API entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, sticky notes, the paint canvas, and the
//     cached last.fm and letterboxd feeds.
//   - Notes: internal/notes validates input and publishes mutation events; notes live in Postgres when
//     db.dsn is set and in memory otherwise.
//   - Paint: uploads are decoded, size-checked, re-encoded as PNG and written to the configured blob store
//     (local, memory or GCS).
//   - Feeds: outbound calls share one pooled transport; each upstream has its own circuit breaker. Responses
//     are held in TTL caches that collapse concurrent refreshes.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported at /metrics.
//
// Quick checklist:
//   - Configure env vars: SITE_SERVER_PORT or PORT, SITE_DB_DSN or DATABASE_URL, LAST_FM_API_KEY,
//     SITE_STORAGE_BACKEND, SITE_AUTH_ENABLED/SITE_AUTH_API_KEY for write protection.
//   - Run locally: go run ./cmd/siteapi -config config.yaml (or rely solely on env overrides).
//   - The process drains in-flight requests on SIGTERM within server.shutdown_timeout_seconds.
package main
