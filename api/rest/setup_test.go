package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthchat/server/account"
	"github.com/hearthchat/server/api/rest"
	"github.com/hearthchat/server/audit"
	"github.com/hearthchat/server/config"
	mw "github.com/hearthchat/server/middleware"
	"github.com/hearthchat/server/scheduler"
	"github.com/hearthchat/server/social"
	"github.com/hearthchat/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminKey = "test-admin-key"

type apiSetup struct {
	r        *gin.Engine
	db       *gorm.DB
	accounts *account.Service
	audit    *audit.Service
}

func newAPI(t *testing.T) *apiSetup {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	accounts := account.NewService(db, bcrypt.MinCost, logger)
	soc := social.NewService(db, accounts, social.NewPubSubNotifier(ps), logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	r := gin.New()
	r.Use(mw.TraceID())
	rest.Register(r.Group("/api"), rest.Deps{
		Accounts:  accounts,
		Social:    soc,
		Audit:     auditSvc,
		Scheduler: sched,
		Cache:     c,
		Security:  config.SecurityConfig{JWTSecret: "test-secret", JWTTTL: time.Hour},
		Server:    config.ServerConfig{AdminKey: adminKey},
		Logger:    logger,
	})
	return &apiSetup{r: r, db: db, accounts: accounts, audit: auditSvc}
}

func do(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return do(r, http.MethodPost, path, body, headers...)
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// signup creates an account and returns its id.
func (s *apiSetup) signup(t *testing.T, username, password string) int64 {
	t.Helper()
	w := postJSON(s.r, "/api/auth/signup", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		User account.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.User.ID
}

// login returns a bearer token for username.
func (s *apiSetup) login(t *testing.T, username, password string) string {
	t.Helper()
	w := postJSON(s.r, "/api/auth/login", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"]
}

// user signs up and logs in, returning the id and token.
func (s *apiSetup) user(t *testing.T, username string) (int64, string) {
	t.Helper()
	id := s.signup(t, username, "pass123")
	return id, s.login(t, username, "pass123")
}

type envelope struct {
	Error struct {
		Message   json.RawMessage `json:"message"`
		Timestamp string          `json:"timestamp"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	_, err := time.Parse(time.RFC3339Nano, env.Error.Timestamp)
	require.NoError(t, err, "timestamp must be RFC3339")
	return env
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, w)
	var msg string
	require.NoError(t, json.Unmarshal(env.Error.Message, &msg), string(env.Error.Message))
	return msg
}

func validationIssues(t *testing.T, w *httptest.ResponseRecorder) []rest.ValidationIssue {
	t.Helper()
	env := decodeEnvelope(t, w)
	var issues []rest.ValidationIssue
	require.NoError(t, json.Unmarshal(env.Error.Message, &issues), string(env.Error.Message))
	return issues
}
