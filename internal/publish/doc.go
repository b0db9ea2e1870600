// Package publish fans boards out to Redis for consumers outside this process.
//
// Every board is published on "board.<sessionID>", each record on
// "prices.<code>", and the latest board is kept under "board:latest" with a
// TTL so late readers can catch up without subscribing.
package publish
