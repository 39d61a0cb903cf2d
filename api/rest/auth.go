package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"go.uber.org/zap"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	accounts *account.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *account.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, cache: c, sec: sec, logger: logger}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	if !bindBody(c, "credentials", &req) {
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, account.ErrUsernameTaken) {
		mw.AbortWithError(c, http.StatusConflict, fmt.Sprintf("Username '%s' is already taken.", req.Username))
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"message": "Created user successfully",
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		respondError(c, h.logger, account.ErrInvalidCredentials)
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, ok := h.issue(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) issue(c *gin.Context, accountID int64) (string, bool) {
	token, err := mw.GenerateToken(accountID, h.sec.JWTSecret, h.sec.JWTTTL)
	if err != nil {
		respondError(c, h.logger, err)
		return "", false
	}
	if err := mw.StartSession(c.Request.Context(), h.cache, token, accountID, h.sec.JWTTTL); err != nil {
		respondError(c, h.logger, err)
		return "", false
	}
	return token, true
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := mw.EndSession(c.Request.Context(), h.cache, mw.BearerToken(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Refresh handles POST /api/auth/refresh.
// The presented token is retired in favour of a fresh one.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := h.issue(c, mw.GetAccountID(c))
	if !ok {
		return
	}
	if err := mw.EndSession(c.Request.Context(), h.cache, mw.BearerToken(c)); err != nil {
		h.logger.Warn("refresh: old session not retired",
			zap.Int64("account_id", mw.GetAccountID(c)),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
