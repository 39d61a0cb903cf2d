package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newLoginLimitRouter(r rate.Limit, b int) *gin.Engine {
	eng := gin.New()
	eng.Use(RateLimit(r, b))
	eng.POST("/api/auth/login", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"token": "t"}) })
	return eng
}

func loginFrom(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = ip + ":50000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsFirst(t *testing.T) {
	r := newLoginLimitRouter(100, 5)
	assert.Equal(t, http.StatusOK, loginFrom(r, "10.0.0.1").Code)
}

func TestRateLimit_BurstThenEnvelope(t *testing.T) {
	// near-zero refill
	r := newLoginLimitRouter(0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, loginFrom(r, "10.0.1.1").Code, "attempt %d", i+1)
	}

	w := loginFrom(r, "10.0.1.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests, please try again later", body.Error.Message)
	assert.NotContains(t, w.Body.String(), "token")
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newLoginLimitRouter(0.001, 1)

	assert.Equal(t, http.StatusOK, loginFrom(r, "10.1.1.1").Code)
	assert.Equal(t, http.StatusOK, loginFrom(r, "10.1.1.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(r, "10.1.1.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(r, "10.1.1.2").Code)
}
