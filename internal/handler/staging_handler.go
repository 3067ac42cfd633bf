// Package handler contains the HTTP controllers.
package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/notify"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/internal/workflow"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

// refreshDelay is how long a review session waits after an upload signal
// before re-reading its staged records.
const refreshDelay = 2 * time.Second

// Sessions untouched for sessionIdleTTL are evicted so controllers and
// their watch goroutines do not accumulate for the process lifetime.
const (
	sessionIdleTTL       = 30 * time.Minute
	sessionSweepInterval = 5 * time.Minute
)

// StagingHandler serves the shard review API. Each (campaign, reviewer)
// pair gets its own workflow controller holding that session's selection
// and optimistic state.
type StagingHandler struct {
	staging service.StagingService
	hub     *notify.Hub

	mu          sync.Mutex
	controllers map[string]*sessionState
}

type sessionState struct {
	controller *workflow.Controller
	cancel     func()
	lastSeen   time.Time
}

// NewStagingHandler creates a new StagingHandler instance and starts the
// idle-session sweeper.
func NewStagingHandler(staging service.StagingService, hub *notify.Hub) *StagingHandler {
	h := &StagingHandler{
		staging:     staging,
		hub:         hub,
		controllers: make(map[string]*sessionState),
	}
	go h.sweepIdleSessions()
	return h
}

func (h *StagingHandler) sweepIdleSessions() {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		h.evictIdle(time.Now())
	}
}

// evictIdle cancels and drops every session idle longer than the TTL.
func (h *StagingHandler) evictIdle(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, state := range h.controllers {
		if now.Sub(state.lastSeen) > sessionIdleTTL {
			state.cancel()
			delete(h.controllers, key)
		}
	}
}

// session returns (creating if needed) the review session for the request.
func (h *StagingHandler) session(c *gin.Context) (*workflow.Controller, string, string) {
	campaignID := c.Param("campaignId")
	claims := c.MustGet("claims").(*token.CustomClaims)
	key := campaignID + ":" + claims.Username

	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.controllers[key]
	if ok {
		state.lastSeen = time.Now()
	} else {
		store := service.NewReviewStore(h.staging, campaignID, claims.Username)
		controller := workflow.NewController(store)

		signals, cancelSub := h.hub.Subscribe(campaignID)
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		go controller.WatchRefresh(watchCtx, signals, refreshDelay)

		state = &sessionState{
			controller: controller,
			cancel: func() {
				cancelWatch()
				cancelSub()
			},
			lastSeen: time.Now(),
		}
		h.controllers[key] = state
	}
	return state.controller, campaignID, claims.Username
}

// respondWorkflowError maps workflow and staging errors onto HTTP
// responses. Idempotent conflicts never reach this function; callers get
// nil from the controller for those.
func respondWorkflowError(c *gin.Context, err error) {
	var blocked *workflow.BlockedError
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "approval blocked, required fields missing",
			"missing": blocked.Missing,
		})
	case errors.Is(err, workflow.ErrActionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "another action is in flight"})
	case errors.Is(err, workflow.ErrNothingSelected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing selected"})
	case errors.Is(err, workflow.ErrEmptyReason):
		c.JSON(http.StatusBadRequest, gin.H{"error": "rejection requires a reason"})
	case errors.Is(err, workflow.ErrStaleSelection):
		c.JSON(http.StatusConflict, gin.H{"error": "selection is out of date, refresh and retry"})
	case errors.Is(err, repository.ErrStagingWrite):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "staging write failed",
			"retryable": true,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "shard not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// ListGroups returns the campaign's staged shards grouped by source
// fragment, annotated with the session's selection and processed marks.
func (h *StagingHandler) ListGroups(c *gin.Context) {
	controller, campaignID, _ := h.session(c)

	if err := controller.Refresh(c.Request.Context()); err != nil {
		log.Error("ListGroups: refresh failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load staged shards"})
		return
	}

	groups, err := h.staging.ListGroups(c.Request.Context(), campaignID)
	if err != nil {
		log.Error("ListGroups: failed to list groups", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load staged shards"})
		return
	}

	selected := controller.Selected()
	processed := make([]string, 0)
	for _, group := range groups {
		for _, rec := range group.Records {
			if controller.IsProcessed(rec.ID) {
				processed = append(processed, rec.ID)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"groups":    groups,
			"selected":  selected,
			"processed": processed,
			"action":    controller.InFlightAction(),
		},
	})
}

// SelectAll puts every currently staged shard into the selection. The
// controller refreshes first so every selected id is classified and the
// approval gate can check it.
func (h *StagingHandler) SelectAll(c *gin.Context) {
	controller, campaignID, _ := h.session(c)

	if err := controller.Refresh(c.Request.Context()); err != nil {
		log.Error("SelectAll: refresh failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load staged shards"})
		return
	}

	groups, err := h.staging.ListGroups(c.Request.Context(), campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load staged shards"})
		return
	}
	controller.SelectAll(groups)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"selected": controller.Selected()}})
}

// SelectNone clears the selection.
func (h *StagingHandler) SelectNone(c *gin.Context) {
	controller, _, _ := h.session(c)
	controller.SelectNone()
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"selected": []string{}}})
}

// ToggleSelection flips one shard in or out of the selection.
func (h *StagingHandler) ToggleSelection(c *gin.Context) {
	controller, _, _ := h.session(c)
	controller.Toggle(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"selected": controller.Selected()}})
}

// ApproveSelected bulk-approves the selection.
func (h *StagingHandler) ApproveSelected(c *gin.Context) {
	controller, _, _ := h.session(c)

	if err := controller.ApproveSelected(c.Request.Context()); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shards approved"})
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectSelected bulk-rejects the selection with a reason.
func (h *StagingHandler) RejectSelected(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rejection requires a reason"})
		return
	}

	controller, _, _ := h.session(c)
	if err := controller.RejectSelected(c.Request.Context(), req.Reason); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shards rejected"})
}

// ApproveOne approves a single shard.
func (h *StagingHandler) ApproveOne(c *gin.Context) {
	controller, _, _ := h.session(c)

	if err := controller.ApproveOne(c.Request.Context(), c.Param("id")); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shard approved"})
}

// RejectOne rejects a single shard with a reason.
func (h *StagingHandler) RejectOne(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rejection requires a reason"})
		return
	}

	controller, _, _ := h.session(c)
	if err := controller.RejectOne(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shard rejected"})
}

// DeleteShard hard-deletes one staged shard.
func (h *StagingHandler) DeleteShard(c *gin.Context) {
	controller, campaignID, actor := h.session(c)

	release, err := controller.BeginAction(workflow.ActionDeleting)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	defer release()

	if err := h.staging.DeleteShard(c.Request.Context(), campaignID, c.Param("id"), actor); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shard deleted"})
}

// ShardProperties returns the editable key/value triples of one shard.
func (h *StagingHandler) ShardProperties(c *gin.Context) {
	props, err := h.staging.ShardProperties(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": props})
}

// UpdateContentRequest carries an edited shard payload.
type UpdateContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateContent writes an edited payload back to the staging store.
func (h *StagingHandler) UpdateContent(c *gin.Context) {
	var req UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	controller, campaignID, actor := h.session(c)
	release, err := controller.BeginAction(workflow.ActionEditing)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	defer release()

	if err := h.staging.UpdateShardContent(c.Request.Context(), campaignID, c.Param("id"), req.Content, actor); err != nil {
		if errors.Is(err, repository.ErrAlreadyResolved) {
			c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shard already resolved"})
			return
		}
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "shard updated"})
}

// FillFieldRequest names the stub field to generate.
type FillFieldRequest struct {
	FieldName string `json:"fieldName" binding:"required"`
}

// FillField asks the field-generation service to fill one missing
// required field of a stub shard.
func (h *StagingHandler) FillField(c *gin.Context) {
	var req FillFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fieldName is required"})
		return
	}

	_, campaignID, _ := h.session(c)
	value, err := h.staging.FillField(c.Request.Context(), campaignID, c.Param("id"), req.FieldName)
	if err != nil {
		log.Error("FillField: field generation failed", err)
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{"fieldName": req.FieldName, "value": value},
	})
}

// SearchApproved runs the substring search over approved shards.
func (h *StagingHandler) SearchApproved(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	_, campaignID, _ := h.session(c)
	records, err := h.staging.SearchApproved(c.Request.Context(), campaignID, query)
	if err != nil {
		log.Error("SearchApproved: search failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": records})
}

// Activity returns the campaign's recent review actions.
func (h *StagingHandler) Activity(c *gin.Context) {
	_, campaignID, _ := h.session(c)
	entries, err := h.staging.Activity(c.Request.Context(), campaignID, 50)
	if err != nil {
		log.Error("Activity: failed to read feed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read activity feed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": entries})
}
