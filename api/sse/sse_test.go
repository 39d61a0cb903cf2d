package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/social"
	"github.com/hearthchat/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sseSetup struct {
	srv *httptest.Server
	c   cache.Cache
	ps  cache.PubSub
	sec config.SecurityConfig
	h   *Handler
}

func newSSESetup(t *testing.T) *sseSetup {
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "sse-secret", JWTTTL: time.Hour}
	h := NewHandler(ps, c, sec, zap.NewNop())
	r := gin.New()
	r.GET("/api/events", h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &sseSetup{srv: srv, c: c, ps: ps, sec: sec, h: h}
}

func (s *sseSetup) login(t *testing.T, accountID int64) string {
	token, err := mw.GenerateToken(accountID, s.sec.JWTSecret, s.sec.JWTTTL)
	require.NoError(t, err)
	require.NoError(t, mw.StartSession(context.Background(), s.c, token, accountID, time.Hour))
	return token
}

// readEvent returns the next "event:" name and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServeSSE_MissingToken(t *testing.T) {
	s := newSSESetup(t)
	resp, err := http.Get(s.srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_InvalidToken(t *testing.T) {
	s := newSSESetup(t)
	resp, err := http.Get(s.srv.URL + "/api/events?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_LoggedOutSession(t *testing.T) {
	s := newSSESetup(t)
	token := s.login(t, 5)
	require.NoError(t, mw.EndSession(context.Background(), s.c, token))

	resp, err := http.Get(s.srv.URL + "/api/events?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_DeliversUserEvents(t *testing.T) {
	s := newSSESetup(t)
	token := s.login(t, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.srv.URL+"/api/events?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	name, data := readEvent(t, r)
	assert.Equal(t, "connected", name)
	assert.JSONEq(t, `{"accountId":7}`, data)

	n := social.NewPubSubNotifier(s.ps)
	// Another user's event must not be delivered.
	require.NoError(t, n.Notify(ctx, 8, social.Event{Type: social.EventFriendRemoved, From: 1}))
	require.NoError(t, n.Notify(ctx, 7, social.Event{Type: social.EventFriendRequest, From: 3}))

	name, data = readEvent(t, r)
	assert.Equal(t, social.EventFriendRequest, name)
	assert.Contains(t, data, `"from":3`)

	require.NoError(t, s.h.Announce(ctx, `{"message":"maintenance"}`))
	name, data = readEvent(t, r)
	assert.Equal(t, "announce", name)
	assert.Contains(t, data, "maintenance")
}

func TestServeSSE_BearerHeader(t *testing.T) {
	s := newSSESetup(t)
	token := s.login(t, 9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.srv.URL+"/api/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	name, _ := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "connected", name)
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "friend_accepted", eventName(`{"type":"friend_accepted"}`))
	assert.Equal(t, "message", eventName(`not json`))
	assert.Equal(t, "message", eventName(`{}`))
}
