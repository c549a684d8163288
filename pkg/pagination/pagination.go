// Package pagination extracts and bounds limit/offset parameters for list
// endpoints.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit and offset from the echo context, applying the
// default and cap.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps one page of results.
type Response struct {
	Data    interface{} `json:"data"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse builds a page envelope. returned is the number of items in
// this page; a full page implies more may follow.
func NewResponse(data interface{}, returned int, p Params) *Response {
	return &Response{
		Data:    data,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: returned == p.Limit,
	}
}

// NextOffset returns the offset for the following page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}
