package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

// ResourceHandler handles the processed-document API of a campaign.
type ResourceHandler struct {
	resourceService service.ResourceService
}

// NewResourceHandler creates a new ResourceHandler instance.
func NewResourceHandler(resourceService service.ResourceService) *ResourceHandler {
	return &ResourceHandler{resourceService: resourceService}
}

// ListResources returns the campaign's uploaded documents.
func (h *ResourceHandler) ListResources(c *gin.Context) {
	resources, err := h.resourceService.ListResources(c.Request.Context(), c.Param("campaignId"))
	if err != nil {
		log.Error("ListResources: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list resources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": resources})
}

// GetDownloadURL returns a presigned URL for the merged document.
func (h *ResourceHandler) GetDownloadURL(c *gin.Context) {
	url, err := h.resourceService.GetDownloadURL(c.Request.Context(), c.Param("campaignId"), c.Param("fileMd5"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}
		log.Error("GetDownloadURL: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate download url"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"url": url}})
}

// DeleteResource removes a document together with its fragments,
// manifest, staged shards and indexed knowledge.
func (h *ResourceHandler) DeleteResource(c *gin.Context) {
	if err := h.resourceService.DeleteResource(c.Request.Context(), c.Param("campaignId"), c.Param("fileMd5")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}
		log.Error("DeleteResource: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete resource"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "resource deleted"})
}
