// Package session wires one catalog store, one ticker poller and one
// highlight tracker into the board served to a single user.
//
// A Session is constructed once per process and passed by reference to the
// HTTP boundary. Stop releases every timer and discards in-flight responses.
package session
