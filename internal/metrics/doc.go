// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Catalog fetch outcomes, latency and cache hits per sort key
//   - Ticker poll outcomes and snapshot coverage
//   - Highlight transitions and live flash timers
//   - Stream client count, dropped frames and board publishes per sink
package metrics
