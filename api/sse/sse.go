package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

const announceChannel = "announce"

// Handler streams relationship events and announcements to logged-in users.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /api/events?token=<jwt>. The token may also be sent as
// a bearer header. Each message on the caller's user channel is written as
// an event named after its type; announcements arrive as "announce".
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = mw.BearerToken(c)
	}
	if tokenStr == "" {
		mw.AbortWithError(c, http.StatusUnauthorized, "missing token")
		return
	}
	accountID, reason := mw.VerifySession(c.Request.Context(), h.sec, h.c, tokenStr)
	if reason != "" {
		mw.AbortWithError(c, http.StatusUnauthorized, reason)
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	userChannel := social.UserChannel(accountID)
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, userChannel, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("account_id", accountID), zap.Error(err))
		mw.AbortWithError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"accountId\":%d}\n\n", accountID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name := announceChannel
			if msg.Channel == userChannel {
				name = eventName(msg.Payload)
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func eventName(payload string) string {
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.Type == "" {
		return "message"
	}
	return ev.Type
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}

// PostAnnounce handles POST /api/admin/announce with body {"message": "..."}.
func (h *Handler) PostAnnounce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		mw.AbortWithError(c, http.StatusBadRequest, "message is required")
		return
	}
	data, _ := json.Marshal(gin.H{"message": req.Message, "at": time.Now().UTC()})
	if err := h.Announce(c.Request.Context(), string(data)); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		mw.AbortWithError(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
