// Package httpapi is the HTTP boundary of the board service.
//
// Routes:
//
//	GET    /health              session health, 503 once stopped
//	GET    /api/v1/board        current board
//	POST   /api/v1/sort         {"sort": "<key>"}
//	POST   /api/v1/select       {"code": "<code>"}
//	DELETE /api/v1/cache        drop every cached catalog list
//	DELETE /api/v1/cache/{key}  drop one cached list ("_default" is the empty key)
//	GET    /ws                  board stream, when a stream handler is wired
//	GET    /metrics             Prometheus, when enabled
package httpapi
