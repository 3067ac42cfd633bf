package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

// CampaignHandler handles the campaign CRUD API.
type CampaignHandler struct {
	campaignService service.CampaignService
}

// NewCampaignHandler creates a new CampaignHandler instance.
func NewCampaignHandler(campaignService service.CampaignService) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService}
}

// CampaignRequest is the request body for create and update.
type CampaignRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateCampaign creates a new campaign owned by the caller.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "campaign name is required"})
		return
	}

	claims := c.MustGet("claims").(*token.CustomClaims)
	campaign, err := h.campaignService.CreateCampaign(c.Request.Context(), req.Name, req.Description, claims.UserID)
	if err != nil {
		log.Error("CreateCampaign: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": campaign})
}

// ListCampaigns returns the caller's campaigns, newest first.
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	claims := c.MustGet("claims").(*token.CustomClaims)

	campaigns, err := h.campaignService.ListCampaigns(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error("ListCampaigns: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": campaigns})
}

// GetCampaign returns one campaign by id.
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.campaignService.GetCampaign(c.Request.Context(), c.Param("campaignId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		log.Error("GetCampaign: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get campaign"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": campaign})
}

// UpdateCampaignRequest allows partial updates.
type UpdateCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateCampaign updates the name and description of a campaign.
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	campaign, err := h.campaignService.UpdateCampaign(c.Request.Context(), c.Param("campaignId"), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		log.Error("UpdateCampaign: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update campaign"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": campaign})
}

// DeleteCampaign removes a campaign and everything derived from it:
// documents, fragments, staged shards and indexed knowledge.
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	if err := h.campaignService.DeleteCampaign(c.Request.Context(), c.Param("campaignId")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		log.Error("DeleteCampaign: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete campaign"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "campaign deleted"})
}
