// Package poller implements the Ticker Poller component.
//
// The Ticker Poller:
//   - Fetches a full price snapshot on a fixed interval (default 3s)
//   - Skips ticks while the instrument catalog is empty
//   - Keeps serving the last good snapshot through transient failures
//   - Stops serving it once it is older than the retention window
package poller
