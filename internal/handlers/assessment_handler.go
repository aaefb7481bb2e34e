package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/middleware"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
)

// AssessmentHandler handles the GEIQ-side assessment requests
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
	syncService       *service.SyncService
	maxUploadSize     int64
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(assessmentService *service.AssessmentService, syncService *service.SyncService, maxUploadSize int64) *AssessmentHandler {
	return &AssessmentHandler{
		assessmentService: assessmentService,
		syncService:       syncService,
		maxUploadSize:     maxUploadSize,
	}
}

// CreateAssessmentRequest represents the assessment creation body
type CreateAssessmentRequest struct {
	CampaignID        uint     `json:"campaign_id"`
	LabelGeiqID       int      `json:"label_geiq_id"`
	LabelGeiqName     string   `json:"label_geiq_name"`
	LabelAntennaNames []string `json:"label_antenna_names"`
	WithMainGeiq      bool     `json:"with_main_geiq"`
	InstitutionIDs    []uint   `json:"institution_ids"`
	ConventionHolder  uint     `json:"convention_holder"`
	CompanyIDs        []uint   `json:"company_ids"`
}

// Create opens an assessment for a GEIQ in a campaign
// @Summary Create assessment
// @Description Open an assessment; at most one main-GEIQ assessment per campaign and GEIQ
// @Tags Assessments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateAssessmentRequest true "Assessment"
// @Success 201 {object} models.Assessment
// @Failure 409 {object} map[string]string "Assessment already exists"
// @Router /assessments [post]
func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if req.CampaignID == 0 || req.LabelGeiqID == 0 || req.LabelGeiqName == "" {
		respondWithError(w, http.StatusBadRequest, "campaign_id, label_geiq_id and label_geiq_name are required")
		return
	}
	if len(req.InstitutionIDs) == 0 {
		respondWithError(w, http.StatusBadRequest, "at least one institution is required")
		return
	}

	assessment, err := h.assessmentService.CreateAssessment(userID, service.CreateAssessmentInput{
		CampaignID:        req.CampaignID,
		LabelGeiqID:       req.LabelGeiqID,
		LabelGeiqName:     req.LabelGeiqName,
		LabelAntennaNames: req.LabelAntennaNames,
		WithMainGeiq:      req.WithMainGeiq,
		InstitutionIDs:    req.InstitutionIDs,
		ConventionHolder:  req.ConventionHolder,
		CompanyIDs:        req.CompanyIDs,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, assessment)
}

// List returns assessments matching the query filters
// @Summary List assessments
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param campaign_id query int false "Campaign ID"
// @Param label_geiq_id query int false "Label GEIQ ID"
// @Param submitted query bool false "Submitted filter"
// @Success 200 {array} models.Assessment
// @Router /assessments [get]
func (h *AssessmentHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters repository.AssessmentFilters

	if value := r.URL.Query().Get("campaign_id"); value != "" {
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid campaign_id")
			return
		}
		campaignID := uint(id)
		filters.CampaignID = &campaignID
	}
	if value := r.URL.Query().Get("label_geiq_id"); value != "" {
		id, err := strconv.Atoi(value)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid label_geiq_id")
			return
		}
		filters.LabelGeiqID = &id
	}
	if value := r.URL.Query().Get("submitted"); value != "" {
		submitted, err := strconv.ParseBool(value)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid submitted")
			return
		}
		filters.Submitted = &submitted
	}
	if value := r.URL.Query().Get("final_reviewed"); value != "" {
		finalReviewed, err := strconv.ParseBool(value)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid final_reviewed")
			return
		}
		filters.FinalReviewed = &finalReviewed
	}

	assessments, err := h.assessmentService.ListAssessments(filters)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if assessments == nil {
		assessments = []models.Assessment{}
	}

	respondWithJSON(w, http.StatusOK, assessments)
}

// Get returns one assessment with its derived state
// @Summary Get assessment
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 200 {object} map[string]interface{} "Assessment and state"
// @Failure 404 {object} map[string]string "Not found"
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, roles, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	assessment, err := h.assessmentService.GetAssessment(userID, roles, assessmentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"assessment": assessment,
		"state":      assessment.State(),
	})
}

// Employees returns the assessment's employees with contracts and
// prequalifications
// @Summary List assessment employees
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 200 {array} models.EmployeeWithChildren
// @Router /assessments/{id}/employees [get]
func (h *AssessmentHandler) Employees(w http.ResponseWriter, r *http.Request) {
	userID, roles, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	employees, err := h.assessmentService.ListEmployees(userID, roles, assessmentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, employees)
}

// Sync mirrors the Label registry into the assessment
// @Summary Sync contracts
// @Description Fetch contracts, prequalifications and rates from the Label registry
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Synced"
// @Failure 409 {object} map[string]string "Selection already validated"
// @Router /assessments/{id}/sync [post]
func (h *AssessmentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.syncService.SyncContracts(r.Context(), userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ValidateContractsSelection freezes the contract selection
// @Summary Validate contract selection
// @Tags Assessments
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Validated"
// @Router /assessments/{id}/contracts-selection/validate [post]
func (h *AssessmentHandler) ValidateContractsSelection(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.assessmentService.ValidateContractsSelection(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateContractsSelection reopens the contract selection
// @Summary Invalidate contract selection
// @Tags Assessments
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Invalidated"
// @Failure 409 {object} map[string]string "Already submitted"
// @Router /assessments/{id}/contracts-selection/invalidate [post]
func (h *AssessmentHandler) InvalidateContractsSelection(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.assessmentService.InvalidateContractsSelection(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllowanceRequest represents an allowance toggle body
type AllowanceRequest struct {
	Value bool `json:"value"`
}

// SetAllowanceRequested toggles the GEIQ-side allowance flag on a contract
// @Summary Set allowance requested
// @Description Toggle the requested flag; silently ignored once the selection is validated
// @Tags Assessments
// @Accept json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param contractID path string true "Contract ID"
// @Param request body AllowanceRequest true "Flag"
// @Success 204 "Updated"
// @Router /assessments/{id}/contracts/{contractID}/allowance-requested [put]
func (h *AssessmentHandler) SetAllowanceRequested(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	contractID, err := uuid.Parse(r.PathValue("contractID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid contract ID")
		return
	}

	var req AllowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.assessmentService.SetAllowanceRequested(userID, assessmentID, contractID, req.Value); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommentRequest represents the GEIQ comment body
type CommentRequest struct {
	Comment string `json:"comment"`
}

// SetComment records the GEIQ's narrative comment
// @Summary Set GEIQ comment
// @Tags Assessments
// @Accept json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param request body CommentRequest true "Comment"
// @Success 204 "Updated"
// @Router /assessments/{id}/comment [put]
func (h *AssessmentHandler) SetComment(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.assessmentService.SetGeiqComment(userID, assessmentID, req.Comment); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument stores a supporting document
// @Summary Upload document
// @Description Upload one of the three supporting documents (multipart field "file")
// @Tags Assessments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param kind path string true "Document kind" Enums(summary, structure_financial, action_financial)
// @Param file formData file true "Document"
// @Success 201 {object} models.AssessmentFile
// @Failure 409 {object} map[string]string "Already submitted"
// @Router /assessments/{id}/documents/{kind} [post]
func (h *AssessmentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	kind := r.PathValue("kind")
	switch kind {
	case models.FileKindSummary, models.FileKindStructureFinancial, models.FileKindActionFinancial:
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid document kind")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stored, err := h.assessmentService.UploadDocument(userID, assessmentID, kind, header.Filename, contentType, content)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, stored)
}

// Submit hands the assessment over to the institutions
// @Summary Submit assessment
// @Description Submit for review; requires synced contracts, a validated selection, the three documents and a comment
// @Tags Assessments
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Submitted"
// @Failure 409 {object} map[string]string "Preconditions not met"
// @Router /assessments/{id}/submit [post]
func (h *AssessmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, _, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.assessmentService.Submit(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestContext extracts the authenticated user and the assessment ID from
// the request
func (h *AssessmentHandler) requestContext(w http.ResponseWriter, r *http.Request) (uint, []string, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, nil, uuid.Nil, false
	}
	roles := middleware.GetUserRoles(r)

	assessmentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid assessment ID")
		return 0, nil, uuid.Nil, false
	}

	return userID, roles, assessmentID, true
}
