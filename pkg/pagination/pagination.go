// Package pagination reads list parameters from a request and shapes list
// responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit and ?offset. A 1-based ?page is honored when no
// offset is given. Out-of-range values are clamped.
func FromContext(c echo.Context) Params {
	limit := atoiOr(c.QueryParam("limit"), DefaultLimit)
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	offset := atoiOr(c.QueryParam("offset"), -1)
	if offset < 0 {
		offset = 0
		if page := atoiOr(c.QueryParam("page"), 1); page > 1 {
			offset = (page - 1) * limit
		}
	}
	return Params{Limit: limit, Offset: offset}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Page is the 1-based page the offset falls on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Page:    p.Page(),
		Pages:   pages,
		HasMore: p.Offset+p.Limit < total,
	}
}

// FromSlice pages a list that was loaded whole.
func FromSlice[T any](items []T, p Params) *Response {
	total := len(items)
	lo := min(max(p.Offset, 0), total)
	hi := min(lo+max(p.Limit, 0), total)
	page := items[lo:hi]
	if page == nil {
		page = []T{}
	}
	return NewResponse(page, total, p)
}
