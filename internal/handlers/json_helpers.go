package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
)

const ErrMsgInvalidRequestBody = "Invalid request body"

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		w.Write([]byte(`{"error":"Internal server error"}`))
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps domain errors onto HTTP statuses. Validation
// failures carry every violated rule so the frontend shows them together.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var validationErrors models.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{"errors": validationErrors})
	case errors.Is(err, service.ErrPermissionDenied):
		respondWithError(w, http.StatusForbidden, "Permission denied")
	case errors.Is(err, service.ErrPreconditionFailed):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrAssessmentExists):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrAssessmentNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
