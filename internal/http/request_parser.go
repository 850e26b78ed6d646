// Package http provides the JSON API server and its handlers.
//
// This file implements request decoding: size-limited JSON bodies, expense
// payloads whose amount may be a number or a string, and query parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/services"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a single JSON value from the body into dst. Unknown
// fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("field %q has the wrong type", typeErr.Field)
		default:
			return fmt.Errorf("malformed JSON: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected a string or a number")
	}
	*f = flexString(n.String())
	return nil
}

// expenseBody is the wire shape of an expense create or update. Absent
// and null members decode to nil.
type expenseBody struct {
	Title       *string     `json:"title"`
	Amount      *flexString `json:"amount"`
	Category    *string     `json:"category"`
	Date        *string     `json:"date"`
	Description *string     `json:"description"`
}

func (b expenseBody) draft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Title:       clean(b.Title),
		Amount:      strings.TrimSpace(string(deref(b.Amount))),
		Category:    clean(b.Category),
		Date:        clean(b.Date),
		Description: clean(b.Description),
	}
}

func (b expenseBody) patch() core.ExpensePatch {
	p := core.ExpensePatch{
		Title:       cleanPtr(b.Title),
		Category:    cleanPtr(b.Category),
		Date:        cleanPtr(b.Date),
		Description: cleanPtr(b.Description),
	}
	if b.Amount != nil {
		s := strings.TrimSpace(string(*b.Amount))
		p.Amount = &s
	}
	return p
}

type categoryBody struct {
	Name string `json:"name"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func clean(p *string) string {
	return sanitizeInput(deref(p))
}

func cleanPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := sanitizeInput(*p)
	return &s
}

// parseExpenseQuery reads startDate, endDate, category, search and page.
// A missing page returns every match.
func parseExpenseQuery(q url.Values) (services.ExpenseQuery, error) {
	var out services.ExpenseQuery
	verr := &core.ValidationError{}

	for _, p := range []struct {
		key string
		dst **core.Date
	}{{"startDate", &out.StartDate}, {"endDate", &out.EndDate}} {
		v := strings.TrimSpace(q.Get(p.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			verr.Add(p.key, "must be a date in YYYY-MM-DD format")
			continue
		}
		*p.dst = &d
	}

	out.Category = sanitizeInput(q.Get("category"))
	out.Search = sanitizeInput(q.Get("search"))

	if v := strings.TrimSpace(q.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			verr.Add("page", "must be a positive integer")
		} else {
			out.Page = n
		}
	}
	return out, verr.Err()
}

// parseYearMonth reads optional positive integer year and month. Absent
// values are returned as zero; a value that is present must be at least 1.
func parseYearMonth(q url.Values) (year, month int, err error) {
	verr := &core.ValidationError{}
	parse := func(key string) int {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			return 0
		}
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 1 {
			verr.Add(key, "must be a positive integer")
			return 0
		}
		return n
	}
	year = parse("year")
	month = parse("month")
	return year, month, verr.Err()
}
