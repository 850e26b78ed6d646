package services

import (
	"context"
	"errors"
	"time"

	"ledger/internal/core"
)

// ExpenseQuery is a caller's filter. Category accepts an id or a name;
// empty or core.AllCategories disables it. Page 0 returns every match.
type ExpenseQuery struct {
	StartDate *core.Date
	EndDate   *core.Date
	Category  string
	Search    string
	Page      int
}

// LedgerService answers read-side questions over a user's whole ledger.
// Nothing is cached; every call reads the current records.
type LedgerService struct {
	expenses   *ExpenseService
	categories *CategoryService
	now        Clock
	pageSize   int
}

func NewLedgerService(expenses *ExpenseService, categories *CategoryService, now Clock, pageSize int) *LedgerService {
	if now == nil {
		now = time.Now
	}
	if pageSize <= 0 {
		pageSize = core.DefaultPageSize
	}
	return &LedgerService{expenses: expenses, categories: categories, now: now, pageSize: pageSize}
}

// Query filters the caller's records. An unknown category matches nothing.
func (s *LedgerService) Query(ctx context.Context, userID string, q ExpenseQuery) (core.QueryResult, error) {
	var page *core.Page
	if q.Page > 0 {
		page = &core.Page{Number: q.Page, Size: s.pageSize}
	}

	f := core.Filter{StartDate: q.StartDate, EndDate: q.EndDate, Search: q.Search}
	if q.Category != "" && q.Category != core.AllCategories {
		cat, err := s.categories.Resolve(ctx, userID, q.Category, false)
		switch {
		case errors.Is(err, core.ErrNotFound):
			return core.Query(nil, f, page), nil
		case err != nil:
			return core.QueryResult{}, err
		}
		f.CategoryID = cat.ID
	}

	es, err := s.expenses.ListAll(ctx, userID)
	if err != nil {
		return core.QueryResult{}, err
	}
	return core.Query(es, f, page), nil
}

// Summarize computes dashboard totals from the full ledger.
func (s *LedgerService) Summarize(ctx context.Context, userID string) (core.Summary, error) {
	es, err := s.expenses.ListAll(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}
	names := make(map[string]string)
	for _, e := range es {
		names[e.CategoryID] = e.Category
	}
	return core.Summarize(es, names, s.now()), nil
}

// MonthlyStats narrows the ledger to one calendar month. Zero year or
// month default to the current one.
func (s *LedgerService) MonthlyStats(ctx context.Context, userID string, year, month int) (core.MonthOverview, error) {
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	var verr core.ValidationError
	if year < 1 || year > 9999 {
		verr.Add("year", "year must be between 1 and 9999")
	}
	if month < 1 || month > 12 {
		verr.Add("month", "month must be between 1 and 12")
	}
	if err := verr.Err(); err != nil {
		return core.MonthOverview{}, err
	}

	es, err := s.expenses.ListAll(ctx, userID)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.MonthlyStats(es, year, time.Month(month)), nil
}
