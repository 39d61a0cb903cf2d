package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/audit"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

// FriendHandler exposes the relationship engine.
type FriendHandler struct {
	social *social.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewFriendHandler creates a new FriendHandler. auditSvc may be nil.
func NewFriendHandler(soc *social.Service, auditSvc *audit.Service, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{social: soc, audit: auditSvc, logger: logger}
}

// ListFriends handles GET /api/users/friends.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.social.ListFriends(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListRequests handles GET /api/users/friends/requests.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	reqs, err := h.social.ListRequests(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendRequests": reqs})
}

// ListBlocked handles GET /api/users/friends/blocked.
func (h *FriendHandler) ListBlocked(c *gin.Context) {
	blocked, err := h.social.ListBlocked(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockedUsers": blocked})
}

type command func(ctx context.Context, actor, target int64) error

// run resolves the actor and target, executes cmd and records it in the
// audit trail.
func (h *FriendHandler) run(c *gin.Context, action string, cmd command, status int, message string) {
	target, ok := targetID(c)
	if !ok {
		return
	}
	actor := mw.GetAccountID(c)

	start := time.Now()
	err := cmd(c.Request.Context(), actor, target)
	h.record(c, action, actor, target, start, err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(status, gin.H{"message": message})
}

func (h *FriendHandler) record(c *gin.Context, action string, actor, target int64, start time.Time, err error) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		AccountID:  actor,
		TargetID:   &target,
		Action:     action,
		Request:    gin.H{"method": c.Request.Method, "path": c.FullPath(), "target": target},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// SendRequest handles POST /api/users/friends/requests/add/:id.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	h.run(c, "friend.add", h.social.SendRequest, http.StatusCreated, "Friend request sent")
}

// AcceptRequest handles PUT /api/users/friends/requests/accept/:id.
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	h.run(c, "friend.accept", h.social.AcceptRequest, http.StatusOK, "Friend request accepted")
}

// RefuseRequest handles PUT /api/users/friends/requests/refuse/:id.
func (h *FriendHandler) RefuseRequest(c *gin.Context) {
	h.run(c, "friend.refuse", h.social.RefuseRequest, http.StatusOK, "Friend request refused")
}

// Block handles PUT /api/users/friends/block/:id.
func (h *FriendHandler) Block(c *gin.Context) {
	h.run(c, "friend.block", h.social.BlockUser, http.StatusOK, "User blocked")
}

// Remove handles DELETE /api/users/friends/:id.
func (h *FriendHandler) Remove(c *gin.Context) {
	h.run(c, "friend.remove", h.social.RemoveRelationship, http.StatusOK, "Relationship removed")
}
