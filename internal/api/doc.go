// Package api provides REST clients for the coin board's upstream services.
//
// Upstreams:
//   - Catalog backend: GET /coin-name-list?userId=..&state=<sort> (ordered instrument list)
//   - Account backend: GET /get-user-cash?userId=.. (cash and holdings, read side only)
//   - Ticker feed:     GET /public/ticker/ALL_KRW (Bithumb-shaped full price snapshot)
//
// Failures surface as *NetworkError (transport, non-2xx, non-success feed status)
// or *DataShapeError (payload missing fields or non-numeric where numeric expected).
package api
