package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// TrendMonths is the length of the trailing monthly window.
const TrendMonths = 6

type (
	// MonthAmount is one bucket of the trailing monthly trend.
	MonthAmount struct {
		Label  string
		Year   int
		Month  time.Month
		Amount Money
	}

	// MonthlyBreakdown keeps its buckets in chronological order and
	// encodes as a JSON object keyed by label.
	MonthlyBreakdown []MonthAmount

	Summary struct {
		TotalExpenses     Money            `json:"totalExpenses"`
		TotalCount        int              `json:"totalCount"`
		AverageExpense    float64          `json:"averageExpense"`
		CategoryBreakdown map[string]Money `json:"categoryBreakdown"`
		MonthlyBreakdown  MonthlyBreakdown `json:"monthlyBreakdown"`
	}

	MonthOverview struct {
		Label    string    `json:"month"`
		Year     int       `json:"year"`
		Month    int       `json:"monthNumber"`
		Total    Money     `json:"total"`
		Count    int       `json:"count"`
		Expenses []Expense `json:"expenses"`
	}
)

// Summarize folds every expense into totals, a per-category breakdown and
// the six-month trend ending at the month containing now. names maps
// category ids to display names; unknown ids fall back to the id itself.
func Summarize(expenses []Expense, names map[string]string, now time.Time) Summary {
	s := Summary{
		CategoryBreakdown: make(map[string]Money),
		MonthlyBreakdown:  trailingMonths(now, TrendMonths),
	}
	for _, e := range expenses {
		s.TotalExpenses = s.TotalExpenses.Add(e.Amount)
		s.TotalCount++

		name, ok := names[e.CategoryID]
		if !ok {
			name = e.CategoryID
		}
		s.CategoryBreakdown[name] = s.CategoryBreakdown[name].Add(e.Amount)

		for i := range s.MonthlyBreakdown {
			b := &s.MonthlyBreakdown[i]
			if e.Date.SameMonth(b.Year, b.Month) {
				b.Amount = b.Amount.Add(e.Amount)
				break
			}
		}
	}
	if s.TotalCount > 0 {
		s.AverageExpense = s.TotalExpenses.Float() / float64(s.TotalCount)
	}
	return s
}

// MonthlyStats narrows expenses to one calendar month. The returned
// records are sorted like Query results.
func MonthlyStats(expenses []Expense, year int, month time.Month) MonthOverview {
	out := MonthOverview{
		Label:    time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006"),
		Year:     year,
		Month:    int(month),
		Expenses: []Expense{},
	}
	for _, e := range expenses {
		if e.Date.SameMonth(year, month) {
			out.Expenses = append(out.Expenses, e)
			out.Total = out.Total.Add(e.Amount)
		}
	}
	out.Count = len(out.Expenses)
	SortExpenses(out.Expenses)
	return out
}

func trailingMonths(now time.Time, n int) MonthlyBreakdown {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make(MonthlyBreakdown, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := first.AddDate(0, -i, 0)
		out = append(out, MonthAmount{
			Label: m.Format("Jan 2006"),
			Year:  m.Year(),
			Month: m.Month(),
		})
	}
	return out
}

// Get returns the amount for label.
func (mb MonthlyBreakdown) Get(label string) (Money, bool) {
	for _, b := range mb {
		if b.Label == label {
			return b.Amount, true
		}
	}
	return Money{}, false
}

func (mb MonthlyBreakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range mb {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(b.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
