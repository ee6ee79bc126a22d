// Package main hosts the webfetch entrypoint.
//
// Architecture overview:
//   - Fetch pipeline: internal/webfetch.Service makes one live attempt through the Colly fetcher. A successful
//     response is decoded to UTF-8, reduced to text and links by internal/extract, and written through to every
//     archive candidate derived by internal/archive. A failed attempt (transport error, timeout, non-2xx status,
//     including a surfaced 308) falls back to the first archive candidate that exists.
//   - Archive: candidates are a readable path under the host plus a flat digest file. Backends are the local
//     filesystem, memory, or GCS; entries are never expired.
//   - HTTP API: internal/api.Server exposes /v1/fetch, /v1/archive, /v1/echo, /v1/services, health and metrics.
//   - Side channels: outcomes are journaled to Postgres when a DSN is configured, and a Pub/Sub notification is
//     published after each successful write-through when a topic is configured. Neither can fail a fetch.
//   - Plumbing: Viper loads config from file and WEBFETCH_* env vars; zap logs every interaction; Prometheus
//     metrics and optional OpenTelemetry tracing cover the API and the pipeline.
//
// Quick checklist:
//   - Run the API: go run ./cmd/webfetch serve --config config.yaml
//   - One-off fetch: go run ./cmd/webfetch fetch https://example.com
//   - Archive location: WEBFETCH_ARCHIVE_BACKEND=local and WEBFETCH_ARCHIVE_ROOT_DIR=/var/lib/webfetch
package main
