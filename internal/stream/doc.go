// Package stream pushes boards to WebSocket consumers.
//
// The Hub is the server side: every published board is queued for every
// connected client, and clients may send sort/select commands back. Each
// client has a bounded queue that drops its oldest frame when full, so a
// slow reader never blocks publishing.
//
// The Client is the dialing side used by command-line consumers.
package stream
