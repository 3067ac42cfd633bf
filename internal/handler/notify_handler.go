package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ofisk/loresmith-ai-sub003/internal/notify"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NotifyHandler pushes staging-refresh signals to connected review
// clients over websocket.
type NotifyHandler struct {
	hub        *notify.Hub
	jwtManager *token.JWTManager
}

// NewNotifyHandler creates a new NotifyHandler instance.
func NewNotifyHandler(hub *notify.Hub, jwtManager *token.JWTManager) *NotifyHandler {
	return &NotifyHandler{hub: hub, jwtManager: jwtManager}
}

type refreshEvent struct {
	Event      string `json:"event"`
	CampaignID string `json:"campaignId"`
}

// Subscribe upgrades the connection and forwards refresh signals for one
// campaign until the client disconnects. Websocket clients cannot send
// an Authorization header, so the token travels in the path.
func (h *NotifyHandler) Subscribe(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	campaignID := c.Param("campaignId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[Notify] websocket upgrade failed for user '%s': %v", claims.Username, err)
		return
	}
	defer conn.Close()

	signals, cancel := h.hub.Subscribe(campaignID)
	defer cancel()

	// Read pump: discard client messages, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Infof("[Notify] user '%s' subscribed to campaign %s", claims.Username, campaignID)
	for {
		select {
		case _, ok := <-signals:
			if !ok {
				return
			}
			event := refreshEvent{Event: "staging_refresh", CampaignID: campaignID}
			if err := conn.WriteJSON(event); err != nil {
				log.Warnf("[Notify] failed to push refresh event to user '%s': %v", claims.Username, err)
				return
			}
		case <-done:
			return
		}
	}
}
