package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// AuditHandler exposes the transition audit trail to administrators
type AuditHandler struct {
	auditRepo *repository.AuditRepository
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditRepo *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo}
}

// ListForAssessment returns the audit trail of one assessment
// @Summary Assessment audit trail
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 200 {array} models.AuditLog
// @Router /assessments/{id}/audit [get]
func (h *AuditHandler) ListForAssessment(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid assessment ID")
		return
	}

	logs, err := h.auditRepo.ListByResource(assessmentID.String(), 100)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	respondWithJSON(w, http.StatusOK, logs)
}
