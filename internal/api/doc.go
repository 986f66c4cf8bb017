// Package api hosts the HTTP server, middleware, and REST handlers for the
// query interface. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q= for ranked topic suggestions.
//   - GET /v1/topics[/{topic}[/{modifier}]] for listing and reading back
//     stored batches.
package api
