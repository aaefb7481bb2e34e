package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/docstore"
	"github.com/gip-inclusion/geiq-assessments/internal/middleware"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
)

// FileHandler serves assessment documents. Downloads go through expiring
// signed URLs, so Serve needs no session; SignedURL mints them for users who
// can read the assessment.
type FileHandler struct {
	docstore          *docstore.Store
	assessmentService *service.AssessmentService
}

// NewFileHandler creates a new file handler
func NewFileHandler(store *docstore.Store, assessmentService *service.AssessmentService) *FileHandler {
	return &FileHandler{
		docstore:          store,
		assessmentService: assessmentService,
	}
}

// SignedURL mints an expiring download URL for a document
// @Summary Get document URL
// @Description Returns an expiring signed download URL for one of the assessment's documents
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param kind path string true "Document kind" Enums(summary, structure_financial, action_financial)
// @Param disposition query string false "inline or attachment" default(attachment)
// @Success 200 {object} map[string]string "Signed URL"
// @Failure 404 {object} map[string]string "No document of this kind"
// @Router /assessments/{id}/documents/{kind}/url [get]
func (h *FileHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	roles := middleware.GetUserRoles(r)

	assessmentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid assessment ID")
		return
	}

	assessment, err := h.assessmentService.GetAssessment(userID, roles, assessmentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var fileID *uuid.UUID
	switch r.PathValue("kind") {
	case models.FileKindSummary:
		fileID = assessment.SummaryDocumentFile
	case models.FileKindStructureFinancial:
		fileID = assessment.StructureFinancialAssessmentFile
	case models.FileKindActionFinancial:
		fileID = assessment.ActionFinancialAssessmentFile
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid document kind")
		return
	}
	if fileID == nil {
		respondWithError(w, http.StatusNotFound, "No document of this kind")
		return
	}

	disposition := docstore.DispositionAttachment
	if r.URL.Query().Get("disposition") == string(docstore.DispositionInline) {
		disposition = docstore.DispositionInline
	}

	file, err := h.docstore.Get(*fileID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"url": h.docstore.SignedURL(file.ID, disposition, file.Filename),
	})
}

// Serve streams a document after verifying its signed URL
// @Summary Download document
// @Description Serve a document blob; the signature in the URL is the access grant
// @Tags Files
// @Produce application/octet-stream
// @Param id path string true "File ID"
// @Param disposition query string true "inline or attachment"
// @Param expires query int true "Expiry timestamp"
// @Param signature query string true "URL signature"
// @Success 200 {file} binary "Document content"
// @Failure 403 {object} map[string]string "Invalid or expired signature"
// @Router /files/{id} [get]
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file ID")
		return
	}

	query := r.URL.Query()
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid expiry")
		return
	}
	disposition := docstore.Disposition(query.Get("disposition"))
	filename := query.Get("filename")

	if err := h.docstore.Verify(fileID, disposition, filename, expires, query.Get("signature")); err != nil {
		if errors.Is(err, docstore.ErrExpiredURL) {
			respondWithError(w, http.StatusForbidden, "URL has expired")
			return
		}
		respondWithError(w, http.StatusForbidden, "Invalid signature")
		return
	}

	file, err := h.docstore.Get(fileID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if filename == "" {
		filename = file.Filename
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Content)))
	w.Write(file.Content)
}
