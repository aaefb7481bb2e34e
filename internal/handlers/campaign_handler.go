package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/middleware"
	"github.com/gip-inclusion/geiq-assessments/internal/service"
)

// CampaignHandler handles campaign administration requests
type CampaignHandler struct {
	campaignService *service.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService}
}

// CreateCampaignRequest represents the campaign creation body
type CreateCampaignRequest struct {
	Year               int    `json:"year"`
	SubmissionDeadline string `json:"submission_deadline"`
	ReviewDeadline     string `json:"review_deadline"`
}

// Create opens a campaign for a year
// @Summary Create campaign
// @Description Open the assessment campaign for a year (admin only)
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCampaignRequest true "Campaign"
// @Success 201 {object} models.Campaign
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /campaigns [post]
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	submissionDeadline, err := time.Parse("2006-01-02", req.SubmissionDeadline)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid submission deadline")
		return
	}
	reviewDeadline, err := time.Parse("2006-01-02", req.ReviewDeadline)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid review deadline")
		return
	}

	campaign, err := h.campaignService.CreateCampaign(req.Year, submissionDeadline, reviewDeadline)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, campaign)
}

// List returns all campaigns
// @Summary List campaigns
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Campaign
// @Router /campaigns [get]
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaignService.ListCampaigns()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, campaigns)
}

// Get returns one campaign
// @Summary Get campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} map[string]string "Not found"
// @Router /campaigns/{id} [get]
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	campaign, err := h.campaignService.GetCampaign(id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, campaign)
}

// CloseCampaignRequest carries the refusal reason applied to never-submitted
// assessments
type CloseCampaignRequest struct {
	Reason string `json:"reason"`
}

// Close refuses every assessment of the campaign never submitted
// @Summary Close campaign
// @Description Refuse never-submitted assessments past the deadline (admin only)
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body CloseCampaignRequest true "Refusal reason"
// @Success 200 {object} map[string]int "Number of refused assessments"
// @Failure 409 {object} map[string]string "Deadline not passed"
// @Router /campaigns/{id}/close [post]
func (h *CampaignHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := campaignID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	var req CloseCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	if req.Reason == "" {
		req.Reason = "Bilan non transmis avant la date limite"
	}

	closed, err := h.campaignService.CloseCampaign(userID, id, req.Reason)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"refused": closed})
}

func campaignID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	return uint(id), err
}
