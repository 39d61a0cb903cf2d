package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
)

const AccountIDKey = "account_id"

const sessionPrefix = "session:"

// SessionKey is the cache key that marks tokenStr as a live session.
func SessionKey(tokenStr string) string {
	return sessionPrefix + tokenStr
}

// StartSession records a freshly issued token in the cache for its lifetime.
func StartSession(ctx context.Context, c cache.Cache, tokenStr string, accountID int64, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Set(ctx, SessionKey(tokenStr), strconv.FormatInt(accountID, 10), ttl)
}

// EndSession removes the session for tokenStr.
func EndSession(ctx context.Context, c cache.Cache, tokenStr string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Del(ctx, SessionKey(tokenStr))
}

// VerifySession parses tokenStr and checks that its session is still live.
// It returns the account id carried by the token.
func VerifySession(ctx context.Context, sec config.SecurityConfig, c cache.Cache, tokenStr string) (int64, string) {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return 0, "invalid token"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(ctx, SessionKey(tokenStr))
	if err != nil || !exists {
		return 0, "session expired"
	}
	return claims.AccountID, ""
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			AbortWithError(ctx, http.StatusUnauthorized, "missing token")
			return
		}

		accountID, reason := VerifySession(ctx.Request.Context(), sec, c, tokenStr)
		if reason != "" {
			AbortWithError(ctx, http.StatusUnauthorized, reason)
			return
		}

		ctx.Set(AccountIDKey, accountID)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

func newTokenID() string {
	return uuid.NewString()
}
