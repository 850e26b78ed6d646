package core

import (
	"cmp"
	"slices"
	"strings"
)

// DefaultPageSize is used when a Page carries no size.
const DefaultPageSize = 10

type (
	// Filter narrows a ledger. Zero fields are ignored; set fields combine
	// with AND.
	Filter struct {
		StartDate  *Date
		EndDate    *Date
		CategoryID string
		Search     string
	}

	// Page selects a 1-indexed window of a sorted result set.
	Page struct {
		Number int
		Size   int
	}

	QueryResult struct {
		Results    []Expense `json:"expenses"`
		TotalCount int       `json:"count"`
		TotalPages int       `json:"totalPages"`
		Page       int       `json:"page,omitempty"`
		PageSize   int       `json:"pageSize,omitempty"`
	}
)

// Match reports whether e satisfies every set predicate.
func (f Filter) Match(e Expense) bool {
	if f.StartDate != nil && e.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Date.After(*f.EndDate) {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	return true
}

// SortExpenses orders by date, most recent first, then by insertion order.
func SortExpenses(es []Expense) {
	slices.SortStableFunc(es, func(a, b Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// Query filters, sorts and optionally paginates expenses. The input slice
// is not modified.
func Query(expenses []Expense, f Filter, page *Page) QueryResult {
	matched := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}
	SortExpenses(matched)

	res := QueryResult{TotalCount: len(matched)}
	if page == nil {
		res.Results = matched
		if len(matched) > 0 {
			res.TotalPages = 1
		}
		return res
	}

	size := page.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	number := max(page.Number, 1)
	res.Page, res.PageSize = number, size
	res.TotalPages = (len(matched) + size - 1) / size

	if number > res.TotalPages {
		res.Results = []Expense{}
		return res
	}
	start := (number - 1) * size
	end := min(start+size, len(matched))
	res.Results = matched[start:end]
	return res
}
