package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

// calculateProgress is a helper function to calculate upload progress.
func calculateProgress(uploadedChunks []int, totalChunks int) float64 {
	if totalChunks == 0 {
		return 0.0
	}
	return (float64(len(uploadedChunks)) / float64(totalChunks)) * 100
}

// UploadHandler handles the chunked upload API of a campaign.
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler creates a new UploadHandler instance.
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// CheckFileRequest is the request body of the resumable-upload check.
type CheckFileRequest struct {
	MD5 string `json:"md5" binding:"required"`
}

// CheckFile reports whether the file is already uploaded and which
// chunks the server has seen.
func (h *UploadHandler) CheckFile(c *gin.Context) {
	var req CheckFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	campaignID := c.Param("campaignId")

	completed, uploadedChunks, err := h.uploadService.CheckFile(c.Request.Context(), req.MD5, campaignID)
	if err != nil {
		log.Error("CheckFile: failed to check file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"completed":      completed,
		"uploadedChunks": uploadedChunks,
	})
}

// UploadChunk stores one chunk of a multipart upload.
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	fileMD5 := c.PostForm("fileMd5")
	fileName := c.PostForm("fileName")
	totalSizeStr := c.PostForm("totalSize")
	chunkIndexStr := c.PostForm("chunkIndex")

	if fileMD5 == "" || fileName == "" || totalSizeStr == "" || chunkIndexStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required parameters"})
		return
	}

	totalSize, err := strconv.ParseInt(totalSizeStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file size"})
		return
	}
	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk index"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded chunk"})
		return
	}
	defer file.Close()

	campaignID := c.Param("campaignId")
	claims := c.MustGet("claims").(*token.CustomClaims)

	uploadedChunks, totalChunks, err := h.uploadService.UploadChunk(c.Request.Context(), fileMD5, fileName, totalSize, chunkIndex, file, campaignID, claims.UserID)
	if err != nil {
		log.Error("UploadChunk: failed to upload chunk", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "chunk upload failed: " + err.Error(),
		})
		return
	}

	progress := calculateProgress(uploadedChunks, totalChunks)

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "chunk uploaded",
		"data": gin.H{
			"uploaded": uploadedChunks,
			"progress": progress,
		},
	})
}

// MergeChunksRequest is the request body of the merge call.
type MergeChunksRequest struct {
	MD5      string `json:"fileMd5" binding:"required"`
	FileName string `json:"fileName" binding:"required"`
}

// MergeChunks assembles the uploaded chunks into the final object and
// enqueues the processing task.
func (h *UploadHandler) MergeChunks(c *gin.Context) {
	var req MergeChunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	campaignID := c.Param("campaignId")
	claims := c.MustGet("claims").(*token.CustomClaims)

	objectKey, err := h.uploadService.MergeChunks(c.Request.Context(), req.MD5, req.FileName, campaignID, claims.UserID)
	if err != nil {
		log.Error("MergeChunks: failed to merge chunks", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to merge chunks: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "file merged, processing task enqueued",
		"data":    gin.H{"objectKey": objectKey},
	})
}

// GetUploadStatus reports the progress of an in-flight upload.
func (h *UploadHandler) GetUploadStatus(c *gin.Context) {
	fileMD5 := c.Query("file_md5")
	if fileMD5 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file_md5 parameter"})
		return
	}
	campaignID := c.Param("campaignId")

	fileName, uploadedChunks, totalChunks, err := h.uploadService.GetUploadStatus(c.Request.Context(), fileMD5, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "upload record not found",
			})
			return
		}
		log.Error("GetUploadStatus: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get upload status"})
		return
	}

	progress := calculateProgress(uploadedChunks, totalChunks)

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "upload status",
		"data": gin.H{
			"fileName":    fileName,
			"uploaded":    uploadedChunks,
			"progress":    progress,
			"totalChunks": totalChunks,
		},
	})
}

// FastUpload handles the fast upload check request.
func (h *UploadHandler) FastUpload(c *gin.Context) {
	var req struct {
		MD5 string `json:"md5"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	campaignID := c.Param("campaignId")

	isUploaded, err := h.uploadService.FastUpload(c.Request.Context(), req.MD5, campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check file status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploaded": isUploaded})
}
