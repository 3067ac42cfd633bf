package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

const defaultSearchSize = 20

// SearchHandler handles knowledge queries over approved shards.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search runs a full-text query scoped to one campaign.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	size := defaultSearchSize
	if sizeStr := c.Query("size"); sizeStr != "" {
		if parsed, err := strconv.Atoi(sizeStr); err == nil && parsed > 0 {
			size = parsed
		}
	}

	shards, err := h.searchService.Search(c.Request.Context(), c.Param("campaignId"), query, size)
	if err != nil {
		log.Error("Search: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": shards})
}
