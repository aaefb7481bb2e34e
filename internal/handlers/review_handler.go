package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/middleware"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
)

// ReviewHandler handles the institution-side review requests
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// SetAllowanceGranted toggles the institution-side allowance flag
// @Summary Set allowance granted
// @Description Toggle the granted flag; granting requires a requested allowance; silently ignored once the grant selection is validated
// @Tags Review
// @Accept json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param contractID path string true "Contract ID"
// @Param request body AllowanceRequest true "Flag"
// @Success 204 "Updated"
// @Failure 409 {object} map[string]string "Allowance not requested"
// @Router /assessments/{id}/contracts/{contractID}/allowance-granted [put]
func (h *ReviewHandler) SetAllowanceGranted(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
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

	if err := h.reviewService.SetAllowanceGranted(userID, assessmentID, contractID, req.Value); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateGrantsSelection freezes the grant selection
// @Summary Validate grant selection
// @Tags Review
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Validated"
// @Router /assessments/{id}/grants-selection/validate [post]
func (h *ReviewHandler) ValidateGrantsSelection(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.reviewService.ValidateGrantsSelection(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateGrantsSelection reopens the grant selection
// @Summary Invalidate grant selection
// @Tags Review
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Invalidated"
// @Failure 409 {object} map[string]string "Decision already validated"
// @Router /assessments/{id}/grants-selection/invalidate [post]
func (h *ReviewHandler) InvalidateGrantsSelection(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.reviewService.InvalidateGrantsSelection(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DecisionRequest represents the financial decision body
type DecisionRequest struct {
	ConventionAmount int    `json:"convention_amount"`
	GrantedAmount    int    `json:"granted_amount"`
	AdvanceAmount    int    `json:"advance_amount"`
	ReviewComment    string `json:"review_comment"`
}

// ValidateDecision records the financial decision
// @Summary Validate decision
// @Description Record the amounts and review comment; every violated rule is returned at once
// @Tags Review
// @Accept json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param request body DecisionRequest true "Decision"
// @Success 204 "Validated"
// @Failure 400 {object} map[string][]models.ValidationError "Violated rules"
// @Router /assessments/{id}/decision [post]
func (h *ReviewHandler) ValidateDecision(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	err := h.reviewService.ValidateDecision(userID, assessmentID,
		req.ConventionAmount, req.GrantedAmount, req.AdvanceAmount, req.ReviewComment)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Review records the first-tier review
// @Summary Review assessment
// @Description Record the review; a final-tier reviewer with no first-tier review records both tiers at once
// @Tags Review
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Reviewed"
// @Failure 409 {object} map[string]string "Decision not validated"
// @Router /assessments/{id}/review [post]
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.reviewService.Review(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FixReview sends the assessment back to the first tier
// @Summary Fix review
// @Description Reopen the first-tier review (final tier only, before final review)
// @Tags Review
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Reopened"
// @Failure 409 {object} map[string]string "Already final reviewed"
// @Router /assessments/{id}/fix-review [post]
func (h *ReviewHandler) FixReview(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.reviewService.FixReview(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinalReview records the final-tier review
// @Summary Final review
// @Description Record the final review and notify the GEIQ of the result
// @Tags Review
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 204 "Final reviewed"
// @Failure 409 {object} map[string]string "Not reviewed"
// @Router /assessments/{id}/final-review [post]
func (h *ReviewHandler) FinalReview(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	if err := h.reviewService.FinalReview(userID, assessmentID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Result returns the financial settlement
// @Summary Assessment result
// @Description Balance and settlement direction, available once final reviewed
// @Tags Review
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 200 {object} models.AssessmentResult
// @Failure 409 {object} map[string]string "Not final reviewed"
// @Router /assessments/{id}/result [get]
func (h *ReviewHandler) Result(w http.ResponseWriter, r *http.Request) {
	userID, assessmentID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	roles := middleware.GetUserRoles(r)

	result, err := h.reviewService.Result(userID, roles, assessmentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *ReviewHandler) requestContext(w http.ResponseWriter, r *http.Request) (uint, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, uuid.Nil, false
	}

	assessmentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid assessment ID")
		return 0, uuid.Nil, false
	}

	return userID, assessmentID, true
}
