package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

// UserHandler serves the profile and user directory endpoints.
type UserHandler struct {
	accounts *account.Service
	social   *social.Service
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(accounts *account.Service, soc *social.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, social: soc, logger: logger}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateMe handles PUT /api/users/me. Absent fields are left unchanged.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req profileRequest
	if !bindBody(c, "profile", &req) {
		return
	}

	user, err := h.accounts.UpdateProfile(c.Request.Context(), mw.GetAccountID(c), account.ProfileUpdate{
		DisplayUsername: req.Username,
		AboutMe:         req.About,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updatedUser": user})
}

type listedUser struct {
	account.User
	Status social.Status `json:"status"`
}

// List handles GET /api/users: every other account with the caller's
// relationship to it. Accounts that blocked the caller are left out.
func (h *UserHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	actor := mw.GetAccountID(c)

	users, err := h.accounts.List(ctx, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	statuses, err := h.social.Statuses(ctx, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]listedUser, 0, len(users))
	for _, u := range users {
		st, ok := statuses[u.ID]
		if !ok {
			st = social.StatusNone
		}
		if st == social.StatusBlockedBy {
			continue
		}
		out = append(out, listedUser{User: u, Status: st})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
