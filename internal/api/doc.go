// Package api hosts the HTTP server, middleware, and REST handlers for the
// fetch service. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/fetch to fetch a URL with archive fallback.
//   - GET /v1/archive?url= to read the archived copy without fetching.
//   - POST /v1/echo and GET /v1/services for connectivity checks.
package api
