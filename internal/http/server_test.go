package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/auth"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/services"
	"ledger/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

const (
	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
)

type testServer struct {
	*Server
	ready error
}

func newTestServer(t *testing.T, requestsPerMinute int) *testServer {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	store := memory.New()
	cats := services.NewCategoryService(store, nil, clock)
	exps := services.NewExpenseService(store, cats, services.ExpenseOptions{Now: clock})
	tokens, err := auth.ParseTokens(aliceToken + ":alice," + bobToken + ":bob")
	require.NoError(t, err)

	ts := &testServer{}
	ts.Server = NewServer(":0", Options{
		Expenses:   exps,
		Categories: cats,
		Ledger:     services.NewLedgerService(exps, cats, clock, 2),
		Auth:       tokens,
		Ready:      func(context.Context) error { return ts.ready },
		RateLimit:  ratelimit.Config{RequestsPerMinute: requestsPerMinute, MutatingOnly: true},
	})
	t.Cleanup(func() { _ = ts.Shutdown(context.Background()) })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (ts *testServer) createExpense(t *testing.T, token, body string) map[string]any {
	t.Helper()
	rec, out := ts.do(t, http.MethodPost, "/api/v1/expenses", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return out["expense"].(map[string]any)
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, 100)

	rec, out := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	rec, out = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", out["status"])

	ts.ready = errors.New("database is down")
	rec, out = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "failed: database is down", out["checks"].(map[string]any)["storage"])
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, 100)

	for _, token := range []string{"", "wrong"} {
		rec, out := ts.do(t, http.MethodGet, "/api/v1/expenses", token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, false, out["success"])
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	}
}

func TestAPI_CommonHeaders(t *testing.T) {
	ts := newTestServer(t, 100)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/categories", aliceToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS is only sent over TLS")
}

func TestCreateExpense(t *testing.T) {
	ts := newTestServer(t, 100)

	rec, out := ts.do(t, http.MethodPost, "/api/v1/expenses", aliceToken,
		`{"title":"  Lunch ","amount":12.5,"category":"Food & Dining","date":"2024-03-01","description":"team"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Expense created successfully", out["message"])

	e := out["expense"].(map[string]any)
	assert.Equal(t, "Lunch", e["title"])
	assert.Equal(t, 12.5, e["amount"])
	assert.Equal(t, "food-dining", e["categoryId"])
	assert.Equal(t, "Food & Dining", e["category"])
	assert.Equal(t, "2024-03-01", e["date"])
	assert.Equal(t, "alice", e["userId"])
	assert.Equal(t, "/api/v1/expenses/"+e["id"].(string), rec.Header().Get("Location"))

	// Amounts may arrive as strings.
	e = ts.createExpense(t, aliceToken, `{"title":"Bus","amount":"2.40","category":"Transportation","date":"2024-03-02"}`)
	assert.Equal(t, 2.4, e["amount"])
}

func TestCreateExpense_Invalid(t *testing.T) {
	ts := newTestServer(t, 100)

	tests := []struct {
		name       string
		body       string
		wantError  string
		wantFields []string
	}{
		{"empty body", "", "request body is empty", nil},
		{"malformed", `{"title":`, "", nil},
		{"wrong type", `{"title":5}`, `field "title" has the wrong type`, nil},
		{"trailing value", `{"title":"a"} {}`, "request body must contain a single JSON object", nil},
		{"missing fields", `{}`, "validation failed", []string{"title", "amount", "category", "date"}},
		{"bad amount", `{"title":"x","amount":"-3","category":"Other","date":"2024-03-01"}`, "validation failed", []string{"amount"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := ts.do(t, http.MethodPost, "/api/v1/expenses", aliceToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["success"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
			}
			var fields []string
			if details, ok := out["details"].([]any); ok {
				for _, d := range details {
					fields = append(fields, d.(map[string]any)["field"].(string))
				}
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestCreateExpense_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, 100)

	body := `{"title":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rec, out := ts.do(t, http.MethodPost, "/api/v1/expenses", aliceToken, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "exceeds")
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t, 100)
	e := ts.createExpense(t, aliceToken, `{"title":"Cinema","amount":"15","category":"Entertainment","date":"2024-03-05"}`)
	path := "/api/v1/expenses/" + e["id"].(string)

	rec, out := ts.do(t, http.MethodGet, path, aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cinema", out["expense"].(map[string]any)["title"])

	rec, out = ts.do(t, http.MethodPatch, path, aliceToken, `{"amount":18.75}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Expense updated successfully", out["message"])
	updated := out["expense"].(map[string]any)
	assert.Equal(t, 18.75, updated["amount"])
	assert.Equal(t, "Cinema", updated["title"], "omitted fields are kept")

	rec, out = ts.do(t, http.MethodPut, path, aliceToken, `{"title":"Theatre","category":"My Hobby"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated = out["expense"].(map[string]any)
	assert.Equal(t, "Theatre", updated["title"])
	assert.Equal(t, "My Hobby", updated["category"])
	assert.Equal(t, 18.75, updated["amount"])

	rec, out = ts.do(t, http.MethodPatch, path, aliceToken, `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", out["error"])

	rec, out = ts.do(t, http.MethodDelete, path, aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Expense deleted successfully", out["message"])

	rec, out = ts.do(t, http.MethodGet, path, aliceToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "expense not found", out["error"])

	rec, _ = ts.do(t, http.MethodDelete, path, aliceToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpenses_IsolatedPerUser(t *testing.T) {
	ts := newTestServer(t, 100)
	e := ts.createExpense(t, aliceToken, `{"title":"Rent","amount":"900","category":"Bills & Utilities","date":"2024-03-01"}`)
	path := "/api/v1/expenses/" + e["id"].(string)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec, out := ts.do(t, method, path, bobToken, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.Equal(t, "expense not found", out["error"])
	}
	rec, _ := ts.do(t, http.MethodPatch, path, bobToken, `{"title":"mine"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, out := ts.do(t, http.MethodGet, "/api/v1/expenses", bobToken, "")
	assert.Equal(t, float64(0), out["count"])
	assert.Empty(t, out["expenses"])

	rec, _ = ts.do(t, http.MethodGet, path, aliceToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListExpenses_Filters(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.createExpense(t, aliceToken, `{"title":"Groceries","amount":"40","category":"Food & Dining","date":"2024-01-15"}`)
	ts.createExpense(t, aliceToken, `{"title":"Train","amount":"12","category":"Transportation","date":"2024-02-10","description":"to the coast"}`)
	ts.createExpense(t, aliceToken, `{"title":"Dinner","amount":"60","category":"Food & Dining","date":"2024-03-02"}`)

	titles := func(out map[string]any) []string {
		var ts []string
		for _, e := range out["expenses"].([]any) {
			ts = append(ts, e.(map[string]any)["title"].(string))
		}
		return ts
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all newest first", "", []string{"Dinner", "Train", "Groceries"}},
		{"category by name", "?category=Food+%26+Dining", []string{"Dinner", "Groceries"}},
		{"category by id", "?category=transportation", []string{"Train"}},
		{"all sentinel", "?category=All", []string{"Dinner", "Train", "Groceries"}},
		{"unknown category", "?category=Travel", nil},
		{"search description", "?search=COAST", []string{"Train"}},
		{"date range inclusive", "?startDate=2024-01-15&endDate=2024-02-10", []string{"Train", "Groceries"}},
		{"first page", "?page=1", []string{"Dinner", "Train"}},
		{"second page", "?page=2", []string{"Groceries"}},
		{"page beyond", "?page=5", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := ts.do(t, http.MethodGet, "/api/v1/expenses"+tt.query, aliceToken, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, true, out["success"])
			assert.Equal(t, tt.want, titles(out))
		})
	}

	_, out := ts.do(t, http.MethodGet, "/api/v1/expenses?page=2", aliceToken, "")
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, float64(2), out["totalPages"])
	assert.Equal(t, float64(2), out["page"])
}

func TestListExpenses_InvalidQuery(t *testing.T) {
	ts := newTestServer(t, 100)

	for _, q := range []string{"?page=0", "?page=abc", "?startDate=03/01/2024"} {
		rec, out := ts.do(t, http.MethodGet, "/api/v1/expenses"+q, aliceToken, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "validation failed", out["error"])
	}
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, 100)

	rec, out := ts.do(t, http.MethodGet, "/api/v1/categories", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["categories"], 8)

	rec, out = ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, `{"name":" Pets "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Pets", out["data"].(map[string]any)["name"])

	rec, out = ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, `{"name":"Pets"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, `{"name":"Shopping"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, out = ts.do(t, http.MethodGet, "/api/v1/categories", aliceToken, "")
	assert.Len(t, out["categories"], 9)
	_, out = ts.do(t, http.MethodGet, "/api/v1/categories", bobToken, "")
	assert.Len(t, out["categories"], 8, "custom categories are private")
}

func TestDashboardSummary(t *testing.T) {
	ts := newTestServer(t, 100)

	_, out := ts.do(t, http.MethodGet, "/api/v1/dashboard/summary", aliceToken, "")
	assert.Equal(t, float64(0), out["totalExpenses"])
	assert.Equal(t, float64(0), out["averageExpense"])
	assert.Empty(t, out["categoryBreakdown"])

	ts.createExpense(t, aliceToken, `{"title":"a","amount":"10","category":"Shopping","date":"2024-03-01"}`)
	ts.createExpense(t, aliceToken, `{"title":"b","amount":"5.50","category":"Shopping","date":"2024-02-01"}`)
	ts.createExpense(t, aliceToken, `{"title":"c","amount":"4.50","category":"Other","date":"2023-01-01"}`)

	rec, out := ts.do(t, http.MethodGet, "/api/v1/dashboard/summary", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(20), out["totalExpenses"])
	assert.Equal(t, float64(3), out["totalCount"])
	assert.InDelta(t, 6.6667, out["averageExpense"], 0.001)
	assert.Equal(t, map[string]any{"Shopping": 15.5, "Other": 4.5}, out["categoryBreakdown"])

	months := out["monthlyBreakdown"].(map[string]any)
	assert.Len(t, months, 6)
	assert.Equal(t, float64(10), months["Mar 2024"])
	assert.Equal(t, 5.5, months["Feb 2024"])
	assert.Equal(t, float64(0), months["Oct 2023"])
}

func TestDashboardMonthly(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.createExpense(t, aliceToken, `{"title":"a","amount":"10","category":"Shopping","date":"2024-03-01"}`)
	ts.createExpense(t, aliceToken, `{"title":"b","amount":"7","category":"Other","date":"2024-02-29"}`)

	rec, out := ts.do(t, http.MethodGet, "/api/v1/dashboard/monthly", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "March 2024", out["month"])
	assert.Equal(t, float64(10), out["total"])
	assert.Equal(t, float64(1), out["count"])

	_, out = ts.do(t, http.MethodGet, "/api/v1/dashboard/monthly?year=2024&month=2", aliceToken, "")
	assert.Equal(t, "February 2024", out["month"])
	assert.Equal(t, float64(7), out["total"])
	assert.Len(t, out["expenses"], 1)

	for _, q := range []string{"?month=13", "?year=abc", "?month=0", "?year=0&month=3"} {
		rec, out = ts.do(t, http.MethodGet, "/api/v1/dashboard/monthly"+q, aliceToken, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, false, out["success"])
	}
}

func TestRateLimit_MutatingRequests(t *testing.T) {
	ts := newTestServer(t, 2)
	body := `{"name":"X"}`

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, out := ts.do(t, http.MethodPost, "/api/v1/categories", aliceToken, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, false, out["success"])

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/categories", aliceToken, "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/categories", bobToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code, "limits are per user")
}

func TestRouting_MethodMismatch(t *testing.T) {
	ts := newTestServer(t, 100)

	rec, _ := ts.do(t, http.MethodDelete, "/api/v1/categories", aliceToken, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = ts.do(t, "TRACE", "/api/v1/expenses", aliceToken, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoverFromPanic(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.expenses = nil

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/expenses", aliceToken,
		`{"title":"a","amount":"1","category":"Other","date":"2024-03-01"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, strings.TrimSpace(rec.Body.String()))
}

func TestShutdown_Idempotent(t *testing.T) {
	ts := newTestServer(t, 100)
	assert.NoError(t, ts.Shutdown(context.Background()))
	assert.NoError(t, ts.Shutdown(context.Background()))
}
