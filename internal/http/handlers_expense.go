package http

import (
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var body expenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	e, err := s.expenses.Create(r.Context(), userID(r), body.draft())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/v1/expenses/"+e.ID).
		Message("Expense created successfully").
		Field("expense", e).
		Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := parseExpenseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.ledger.Query(r.Context(), userID(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Expenses queried",
		log.FieldOperation, log.OpQuery, "count", res.TotalCount)
	NewJSONResponse().Merge(res).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeExpenseError(w, r, err)
		return
	}
	NewJSONResponse().Field("expense", e).Write(w)
}

// handleUpdateExpense serves both PUT and PATCH. Omitted fields keep their
// stored values.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var body expenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	e, err := s.expenses.Update(r.Context(), userID(r), r.PathValue("id"), body.patch())
	if err != nil {
		s.writeExpenseError(w, r, err)
		return
	}

	NewJSONResponse().
		Message("Expense updated successfully").
		Field("expense", e).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeExpenseError(w, r, err)
		return
	}
	NewJSONResponse().Message("Expense deleted successfully").Write(w)
}

// writeExpenseError reports a missing or foreign record as
// "expense not found" without revealing which.
func (s *Server) writeExpenseError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrNotFound) {
		NotFoundError("expense not found").Write(w)
		return
	}
	s.writeError(w, r, err)
}
