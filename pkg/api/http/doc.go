// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Execution submission and status queries
//   - Checkpoint listing, export, import and deletion
//   - Health checks
//   - Prometheus metrics
package http
