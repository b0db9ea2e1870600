package httpapi

import "github.com/rickgao/coinboard/internal/model"

// DefaultSortAlias addresses the empty sort key in URL paths.
const DefaultSortAlias = "_default"

// SortRequest is the body of POST /api/v1/sort.
type SortRequest struct {
	Sort string `json:"sort"`
}

// SortResponse echoes the sort key now requested.
type SortResponse struct {
	Sort  string      `json:"sort"`
	Board model.Board `json:"board"`
}

// SelectRequest is the body of POST /api/v1/select.
type SelectRequest struct {
	Code string `json:"code"`
}

// InvalidateResponse reports how many cached lists were dropped.
type InvalidateResponse struct {
	Sort    string `json:"sort,omitempty"`
	Dropped int    `json:"dropped"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
