package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/scheduler"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	accounts *account.Service
	social   *social.Service
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	accounts *account.Service,
	soc *social.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{accounts: accounts, social: soc, sched: sched, logger: logger}
}

// Metrics returns account and relationship counts plus scheduler state.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	accounts, err := h.accounts.Count(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	rels, err := h.social.Count(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":        accounts,
		"relationships":   rels,
		"scheduler_tasks": h.sched.Tasks(),
	})
}

// BanAccount bans or unbans an account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, ok := targetID(c)
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.accounts.SetBanned(c.Request.Context(), accountID, req.Ban); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("admin changed account status", zap.Int64("account_id", accountID), zap.Bool("banned", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "banned": req.Ban})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints answer 503, so the server cannot
// be deployed with them unprotected.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			mw.AbortWithError(c, http.StatusServiceUnavailable,
				"admin endpoints disabled: set server.admin_key in config")
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			mw.AbortWithError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}
