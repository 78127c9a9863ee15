package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/api"
	"github.com/escalaapp/escala/internal/app"
	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/cache"
	sharedtestutil "github.com/escalaapp/escala/internal/database/testutil"
	"github.com/escalaapp/escala/internal/middleware"
	"github.com/escalaapp/escala/pkg/response"
)

// Env is a fully wired API instance backed by an in-memory database, for
// handler tests that exercise routes end to end.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	csrfToken  string
	csrfCookie *http.Cookie
}

// NewEnv builds a router with migrations applied, CSRF enabled, and the
// invite defaults used across the handler suite.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.ExternalURL = "https://escala.test"
	cfg.Server.CSRF.Enabled = true
	cfg.Monitoring.Health.Enabled = true
	cfg.Auth.JWT = app.JWTSettings{
		Secret: jwtSecret,
		Issuer: "test-suite",
		TTL:    time.Hour,
	}
	cfg.Invites.TTL = 72 * time.Hour
	cfg.Invites.PendingStaleness = time.Hour

	router, err := api.NewRouter(db, jwtSvc, cfg, cache.NewDatabaseStore(db), middleware.NewMemoryRateStore())
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
	}
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// SessionResult bundles the JSON payload from register and login responses.
type SessionResult struct {
	Token        string          `json:"token"`
	User         UserPayload     `json:"user"`
	InviteResult json.RawMessage `json:"invite_result"`
}

// Register creates an account through the public endpoint and returns the session.
func (e *Env) Register(email, password, displayName string) SessionResult {
	e.T.Helper()

	payload := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}

	w := e.Request(http.MethodPost, "/api/auth/register", payload, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result SessionResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	return result
}

// Login authenticates an existing account. A non-empty visitorID is forwarded
// so any stashed invitation is redeemed during sign-in.
func (e *Env) Login(email, password, visitorID string) SessionResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	if visitorID != "" {
		payload["visitor_id"] = visitorID
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result SessionResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	return result
}

// RegisterUnique registers an account with a generated address and returns the
// session together with the email used.
func (e *Env) RegisterUnique(prefix string) (SessionResult, string) {
	e.T.Helper()

	email := fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
	return e.Register(email, "Password123!", prefix), email
}

// APIResponse is the envelope every endpoint responds with.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the response envelope from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into dest.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	require.NotNil(t, dest)
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request performs an HTTP request against the router, handling JSON
// encoding, bearer auth, and CSRF attestation.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false)
}

func (e *Env) request(method, path string, body any, token string, skipCSRF bool) *httptest.ResponseRecorder {
	e.T.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		payload = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if !skipCSRF && mutatesState(method) {
		e.attachCSRF(req)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

// attachCSRF fetches a token pair via /health on first use, then decorates
// the request with the cookie and matching header.
func (e *Env) attachCSRF(req *http.Request) {
	if e.csrfToken == "" || e.csrfCookie == nil {
		resp := e.request(http.MethodGet, "/health", nil, "", true)
		require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
	}

	if e.csrfCookie != nil {
		req.AddCookie(e.csrfCookie)
	}
	if e.csrfToken != "" {
		req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
	}
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			clone := *c
			e.csrfCookie = &clone
			break
		}
	}
}

func mutatesState(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
