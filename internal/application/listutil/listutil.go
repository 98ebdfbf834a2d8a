package listutil

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultPerPage is the dashboard page size when none is configured.
const DefaultPerPage = 10

// maxButtons bounds the numbered links in pagination controls.
const maxButtons = 5

// PageInfo carries pagination metadata for rendering.
type PageInfo struct {
	Page       int // current page (1-indexed)
	PerPage    int // rows per page
	Total      int // total matching rows
	TotalPages int // ceil(Total / PerPage), at least 1
}

// ParsePage reads the 1-indexed page number from the query.
// PRE: none
// POST: returns a value >= 1
func ParsePage(q url.Values) int {
	page, err := strconv.Atoi(strings.TrimSpace(q.Get("page")))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0
// POST: Page >= 1; a page past the end is kept and simply has no rows
func NewPageInfo(page, perPage, total int) PageInfo {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	return PageInfo{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the SQL OFFSET for the current page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// StartRow returns the 1-indexed first row on the page, or 0 when it is empty.
func (p PageInfo) StartRow() int {
	if p.Offset() >= p.Total {
		return 0
	}
	return p.Offset() + 1
}

// EndRow returns the 1-indexed last row on the page.
func (p PageInfo) EndRow() int {
	if p.StartRow() == 0 {
		return 0
	}
	end := p.Offset() + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return end
}

// HasPrev reports whether a previous page exists.
func (p PageInfo) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p PageInfo) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage is the previous page number.
func (p PageInfo) PrevPage() int { return p.Page - 1 }

// NextPage is the following page number.
func (p PageInfo) NextPage() int { return p.Page + 1 }

// PageNumbers returns at most five page numbers centred on the current page.
// POST: every number lies within [1, TotalPages]
func (p PageInfo) PageNumbers() []int {
	current := p.Page
	if current > p.TotalPages {
		current = p.TotalPages
	}
	start := current - maxButtons/2
	if start < 1 {
		start = 1
	}
	end := start + maxButtons - 1
	if end > p.TotalPages {
		end = p.TotalPages
		start = end - maxButtons + 1
		if start < 1 {
			start = 1
		}
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ShowPagination reports whether there is more than one page.
func (p PageInfo) ShowPagination() bool {
	return p.TotalPages > 1
}
