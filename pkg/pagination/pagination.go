package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts ?pagina=&limite= from the echo context. Missing or
// invalid values fall back to page 1 and DefaultLimit; limite is capped at
// MaxLimit.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("pagina"))
	limit, _ := strconv.Atoi(c.QueryParam("limite"))
	return New(page, limit)
}

// New normalises a page/limit pair.
func New(page, limit int) Params {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

// Offset is the number of rows skipped before this page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset())
}

// TotalPages returns the number of pages needed for total rows.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit < total
}

// Meta is the "paginacion" member of a paginated payload.
type Meta struct {
	Total        int `json:"total"`
	Pagina       int `json:"pagina"`
	Limite       int `json:"limite"`
	TotalPaginas int `json:"totalPaginas"`
}

// Response wraps a page of items.
type Response struct {
	Items      interface{} `json:"items"`
	Paginacion Meta        `json:"paginacion"`
}

func NewResponse(items interface{}, total int, p Params) *Response {
	return &Response{
		Items: items,
		Paginacion: Meta{
			Total:        total,
			Pagina:       p.Page,
			Limite:       p.Limit,
			TotalPaginas: p.TotalPages(total),
		},
	}
}
