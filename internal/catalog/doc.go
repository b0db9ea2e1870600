// Package catalog owns the active instrument list for the current sort key.
//
// Every successful fetch is cached per sort key; asking for a cached key swaps
// the active list synchronously without touching the network. Concurrent
// requests for the same uncached key share one fetch, while different keys
// fetch independently. A response only becomes active if its key is still
// the most recently requested one.
package catalog
