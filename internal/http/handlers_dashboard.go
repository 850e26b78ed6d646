package http

import (
	"net/http"
)

// handleSummary returns totals, the per-category breakdown and the
// six-month trend as top-level members.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summarize(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Merge(sum).Write(w)
}

// handleMonthly returns one calendar month. year and month default to the
// current month.
func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.ledger.MonthlyStats(r.Context(), userID(r), year, month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Merge(stats).Write(w)
}
