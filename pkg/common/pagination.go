package common

import (
	"net/http"
	"strconv"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageParams represents offset based pagination parameters
type PageParams struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DefaultPageParams returns default pagination parameters
func DefaultPageParams() PageParams {
	return PageParams{Offset: 0, Limit: DefaultPageLimit}
}

// ExtractPageParams reads offset and limit from the query string. Invalid
// values fall back to defaults and the limit is capped.
func ExtractPageParams(r *http.Request) PageParams {
	params := DefaultPageParams()

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			params.Offset = o
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			if l > MaxPageLimit {
				l = MaxPageLimit
			}
			params.Limit = l
		}
	}

	return params
}

// PaginationInfo contains pagination details
type PaginationInfo struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// BuildPaginationMeta builds pagination metadata
func BuildPaginationMeta(offset, limit, total int) *PaginationInfo {
	return &PaginationInfo{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasNext: offset+limit < total,
		HasPrev: offset > 0,
	}
}

// PaginatedResult represents a paginated result
type PaginatedResult struct {
	Items      interface{}     `json:"items"`
	Pagination *PaginationInfo `json:"pagination"`
}

// NewPaginatedResult creates a new paginated result
func NewPaginatedResult(items interface{}, offset, limit, total int) *PaginatedResult {
	return &PaginatedResult{
		Items:      items,
		Pagination: BuildPaginationMeta(offset, limit, total),
	}
}
