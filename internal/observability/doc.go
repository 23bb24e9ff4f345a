// Package observability provides structured logging and metrics
// for the identity core.
//
// This package implements:
//   - zap logger construction from configuration
//   - Request ID propagation into log fields
//   - Prometheus collectors for token verification, key-set refreshes,
//     authorization outcomes, provider calls and HTTP requests
package observability
