// Package model defines shared data types used across the coin board service.
//
// Conventions:
//   - Codes: upper-case instrument codes as returned by the catalog backend (e.g. "BTC")
//   - Prices and volumes: kept as the feed's decimal strings until merge formats them
//   - Timestamps: time.Time, taken from the injected clock
package model
