// Package pagination converts page-based paging into offset/limit windows.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Params holds a page window.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return New(1, defaultPerPage)
}

// New builds a window from page and perPage. Out-of-range values fall back
// to the defaults.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// FromRequest reads page and per_page from the query string.
func FromRequest(r *http.Request) Params {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return New(page, perPage)
}

// Meta describes where a page sits in the full result.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalCount int64 `json:"total_count"`
	TotalPages int64 `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewMeta computes page counts for totalCount matches.
func NewMeta(totalCount int64, params Params) Meta {
	perPage := int64(params.PerPage)
	totalPages := totalCount / perPage
	if totalCount%perPage > 0 {
		totalPages++
	}
	return Meta{
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalCount: totalCount,
		TotalPages: totalPages,
		HasNext:    int64(params.Page) < totalPages,
		HasPrev:    params.Page > 1,
	}
}
