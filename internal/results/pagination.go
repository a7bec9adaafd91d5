package results

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// PageToken is a 1-based page number, or Ellipsis for a gap.
type PageToken int

// Ellipsis stands for one or more omitted pages.
const Ellipsis PageToken = 0

// IsEllipsis reports whether the token is a gap marker.
func (t PageToken) IsEllipsis() bool { return t == Ellipsis }

func (t PageToken) String() string {
	if t.IsEllipsis() {
		return "..."
	}
	return strconv.Itoa(int(t))
}

// Pagination lists the page tokens to show for currentPage out of
// totalPages: always the first and last pages and the current page's
// immediate neighbours, with each run of omitted pages collapsed into one
// Ellipsis. currentPage is clamped into range.
func Pagination(totalPages, currentPage int) []PageToken {
	if totalPages <= 0 {
		return []PageToken{}
	}
	if currentPage < 1 {
		currentPage = 1
	}
	if currentPage > totalPages {
		currentPage = totalPages
	}

	tokens := []PageToken{}
	last := 0
	for page := 1; page <= totalPages; page++ {
		visible := page == 1 || page == totalPages ||
			(page >= currentPage-1 && page <= currentPage+1)
		if !visible {
			continue
		}
		if last != 0 && page-last > 1 {
			tokens = append(tokens, Ellipsis)
		}
		tokens = append(tokens, PageToken(page))
		last = page
	}
	return tokens
}

// PageWindow is the slice of results the backend returned, as reported in
// its pagination headers.
type PageWindow struct {
	TotalResults int `json:"totalResults"`
	Offset       int `json:"offset"`
	Limit        int `json:"limit"`
}

// PaginationOptions customises generated links.
type PaginationOptions struct {
	// Hash is appended verbatim to every page href, e.g. "#map".
	Hash string
}

// Page item types.
const (
	PageItemNumber   = "number"
	PageItemEllipsis = "ellipsis"
)

// PageItem is one link in the pagination component.
type PageItem struct {
	Type    string `json:"type"`
	Number  int    `json:"number,omitempty"`
	Href    string `json:"href"`
	Current bool   `json:"current,omitempty"`
}

// PaginationState is everything the results template needs to draw
// navigation links.
type PaginationState struct {
	TotalResults int        `json:"totalResults"`
	Offset       int        `json:"offset"`
	Limit        int        `json:"limit"`
	CurrentPage  int        `json:"currentPage"`
	NextPage     *int       `json:"nextPage"`
	PreviousPage *int       `json:"previousPage"`
	TotalPages   int        `json:"totalPages"`
	Items        []PageItem `json:"items"`
}

// Paginator builds navigation for the results pages of one request.
type Paginator struct {
	ID     string
	Window PageWindow
}

// TotalPages is ceil(totalResults / limit). A non-positive limit means the
// whole result set is one page.
func (p Paginator) TotalPages() int {
	if p.Window.TotalResults <= 0 {
		return 0
	}
	if p.Window.Limit <= 0 {
		return 1
	}
	return int(math.Ceil(float64(p.Window.TotalResults) / float64(p.Window.Limit)))
}

// Href links to a 0-based page of the results.
func (p Paginator) Href(pageNumber int, hash string) string {
	return fmt.Sprintf("/check/results/%s/%d%s", url.PathEscape(p.ID), pageNumber, hash)
}

// State computes navigation for a 0-based page number. Negative page
// numbers are treated as 0.
func (p Paginator) State(pageNumber int, opts PaginationOptions) PaginationState {
	if pageNumber < 0 {
		pageNumber = 0
	}
	totalPages := p.TotalPages()
	state := PaginationState{
		TotalResults: p.Window.TotalResults,
		Offset:       p.Window.Offset,
		Limit:        p.Window.Limit,
		CurrentPage:  pageNumber + 1,
		TotalPages:   totalPages,
		Items:        []PageItem{},
	}
	if pageNumber+1 < totalPages {
		next := pageNumber + 1
		state.NextPage = &next
	}
	if pageNumber > 0 && totalPages > 0 {
		prev := pageNumber - 1
		if prev > totalPages-1 {
			prev = totalPages - 1
		}
		state.PreviousPage = &prev
	}

	for _, token := range Pagination(totalPages, state.CurrentPage) {
		if token.IsEllipsis() {
			state.Items = append(state.Items, PageItem{Type: PageItemEllipsis, Href: "#"})
			continue
		}
		n := int(token)
		state.Items = append(state.Items, PageItem{
			Type:    PageItemNumber,
			Number:  n,
			Href:    p.Href(n-1, opts.Hash),
			Current: n == state.CurrentPage,
		})
	}
	return state
}

// Pagination computes navigation for the page these details belong to.
func (d *ResponseDetails) Pagination(pageNumber int, opts PaginationOptions) PaginationState {
	return Paginator{ID: d.id, Window: d.window}.State(pageNumber, opts)
}

// ParsePageNumber reads a 0-based page number from a path segment. Anything
// that is not a non-negative integer becomes 0.
func ParsePageNumber(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
