package http

import (
	"net/http"
)

// handleListCategories returns the built-ins followed by the caller's own
// categories.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Field("categories", cats).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var body categoryBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	c, err := s.categories.Create(r.Context(), userID(r), sanitizeInput(body.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Message("Category created successfully").
		Field("data", c).
		Write(w)
}
