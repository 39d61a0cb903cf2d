package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	apirest "github.com/hearthchat/server/api/rest"
	"github.com/hearthchat/server/api/sse"
	"github.com/hearthchat/server/audit"
	"github.com/hearthchat/server/cache"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/scheduler"
	"github.com/hearthchat/server/social"
	"github.com/hearthchat/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const testAdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Accounts *account.Service
	Social   *social.Service
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTL:         time.Hour,
		BcryptCost:     bcrypt.MinCost,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	srvCfg := config.ServerConfig{AdminKey: testAdminKey}

	// ---- Services ----
	accounts := account.NewService(db, sec.BcryptCost, logger)
	soc := social.NewService(db, accounts, social.NewPubSubNotifier(pubsub), logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.CORS(sec.AllowedOrigins), mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	apirest.Register(api, apirest.Deps{
		Accounts:  accounts,
		Social:    soc,
		Audit:     auditSvc,
		Scheduler: sched,
		Cache:     c,
		Security:  sec,
		Server:    srvCfg,
		Logger:    logger,
	})

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	api.GET("/events", sseH.ServeSSE)
	api.POST("/admin/announce", mw.IPWhitelist(srvCfg.AdminIPs), apirest.AdminAuth(srvCfg.AdminKey), sseH.PostAnnounce)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Accounts: accounts,
		Social:   soc,
		Audit:    auditSvc,
		Sched:    sched,
		Server:   server,
		URL:      server.URL,
		Sec:      sec,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and background workers. It is safe to
// call more than once.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPut, path, body, token)
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, nil, token)
}

// Status sends a request, closes the body and returns the status code.
func (ts *TestServer) Status(t *testing.T, method, path, token string) int {
	t.Helper()
	resp := ts.do(t, method, path, nil, token)
	resp.Body.Close()
	return resp.StatusCode
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Signup registers an account and returns its ID.
func (ts *TestServer) Signup(t *testing.T, username, password string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/signup", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result struct {
		User account.User `json:"user"`
	}
	ReadJSON(t, resp, &result)
	return result.User.ID
}

// Login logs in and returns the token.
func (ts *TestServer) Login(t *testing.T, username, password string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]string
	ReadJSON(t, resp, &result)
	return result["token"]
}

// NewUser signs up a fresh account with a unique name and logs it in.
func (ts *TestServer) NewUser(t *testing.T, prefix string) (id int64, username, token string) {
	t.Helper()
	username = UniqueID(prefix)
	id = ts.Signup(t, username, "pass1234")
	token = ts.Login(t, username, "pass1234")
	return id, username, token
}

var testCounter uint64

// UniqueID returns a short unique string that satisfies the username rules.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

// --- SSE client ---

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads events from /api/events in a background goroutine.
type SSEClient struct {
	events chan SSEEvent
	cancel context.CancelFunc
	t      *testing.T
}

// ConnectSSE opens the event stream for token and waits for the
// "connected" event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{events: make(chan SSEEvent, 64), cancel: cancel, t: t}
	go sc.readLoop(resp.Body)
	t.Cleanup(sc.Close)

	ev := sc.Next(5 * time.Second)
	require.Equal(t, "connected", ev.Name)
	return sc
}

func (sc *SSEClient) readLoop(body io.ReadCloser) {
	defer close(sc.events)
	defer body.Close()
	r := bufio.NewReader(body)
	var cur SSEEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.Name != "":
			sc.events <- cur
			cur = SSEEvent{}
		}
	}
}

// Next returns the next event or fails the test after timeout.
func (sc *SSEClient) Next(timeout time.Duration) SSEEvent {
	sc.t.Helper()
	select {
	case ev, ok := <-sc.events:
		if !ok {
			sc.t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(timeout):
		sc.t.Fatal("timed out waiting for event")
	}
	return SSEEvent{}
}

// Close ends the stream.
func (sc *SSEClient) Close() {
	sc.cancel()
}
