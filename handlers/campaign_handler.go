package handlers

import (
	"net/http"

	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

// CampaignListResponse is the body of GET /campaigns
type CampaignListResponse struct {
	Campaigns []*models.Campaign `json:"campaigns"`
	Page      Page               `json:"page"`
}

// CampaignHandler serves tenant campaigns. Every route is mounted behind
// BindTenant, so the repository runs on the request's tenant lease.
type CampaignHandler struct {
	campaigns repositories.CampaignRepository
	logger    *zap.Logger
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(campaigns repositories.CampaignRepository, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		logger:    logger,
	}
}

// HandleList handles GET /campaigns
func (h *CampaignHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	page, err := parsePage(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	campaigns, err := h.campaigns.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to list campaigns"), logger)
		return
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}

	_ = utils.WriteOK(w, CampaignListResponse{Campaigns: campaigns, Page: page})
}

// HandleGet handles GET /campaigns/{id}
func (h *CampaignHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	id, err := pathID(r, "id")
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	campaign, err := h.campaigns.GetByID(r.Context(), id)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to get campaign"), logger)
		return
	}

	_ = utils.WriteOK(w, campaign)
}

// HandleReport handles GET /campaigns/{id}/reports
func (h *CampaignHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	id, err := pathID(r, "id")
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	report, err := h.campaigns.GetReport(r.Context(), id)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to build campaign report"), logger)
		return
	}

	_ = utils.WriteOK(w, report)
}
