package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/social"
	"go.uber.org/zap"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

var errorTable = []errorMapping{
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{account.ErrAccountBanned, http.StatusForbidden, "Account is banned"},
	{account.ErrUsernameTaken, http.StatusConflict, "Username is already taken."},
	{account.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{social.ErrSelfRelation, http.StatusBadRequest, "You cannot target yourself"},
	{social.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{social.ErrAlreadyRelated, http.StatusConflict, "A relationship with this user already exists"},
	{social.ErrRequestNotFound, http.StatusNotFound, "Friend request not found"},
	{social.ErrRelationNotFound, http.StatusNotFound, "No relationship with this user"},
	{social.ErrForbidden, http.StatusForbidden, "You are not allowed to do that"},
}

// classify returns the HTTP status and client message for err.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// respondError writes the envelope for err. Unmapped errors are logged and
// reported as a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	mw.AbortWithError(c, status, msg)
}

// targetID parses the :id path parameter. On failure it writes a 400 and
// returns false.
func targetID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		mw.AbortWithError(c, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return id, true
}
