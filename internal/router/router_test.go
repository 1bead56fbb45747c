package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

type env struct {
	handler http.Handler
	users   *user.UserService
	logs    *observer.ObservedLogs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC))
	users := user.NewUserService(userrepo.NewMemoryRepo(), clock)
	issuer, err := session.NewIssuer(session.Config{Secret: []byte("router-test-secret-router-test-s")}, clock)
	require.NoError(t, err)
	svc, err := auth.NewService(auth.Deps{
		Users:       users,
		Challenges:  otp.NewMemoryStore(clock, otp.Config{}),
		Sessions:    issuer,
		Credentials: auth.CredentialVerifier{Cost: bcrypt.MinCost},
		Logger:      logger,
	})
	require.NoError(t, err)
	_, err = svc.SeedAdmin(context.Background(), "admin", "admin-pw", "2006")
	require.NoError(t, err)

	h := RegisterRoutes(Deps{
		Auth:   auth.NewHandler(svc, logger),
		Users:  user.NewHandler(users, auth.CallerUID, logger),
		Gate:   auth.NewGate(issuer, logger),
		Node:   utilities.NewSnowflakeNode(7),
		Logger: logger,
	})
	return &env{handler: h, users: users, logs: logs}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func tokenOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsKept(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	entries := e.logs.FilterMessage("http request").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "abc-123", entries[len(entries)-1].ContextMap()["request_id"])
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/login", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminModerationFlow(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/register", `{"username":"paul","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg struct {
		UID string `json:"uid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))

	rec = e.do(http.MethodPost, "/login", `{"username":"paul","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	userTok := tokenOf(t, rec)

	rec = e.do(http.MethodGet, "/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(http.MethodGet, "/admin/users", "", userTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPost, "/login", `{"username":"admin","password":"admin-pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"require2fa":true}`, rec.Body.String())
	rec = e.do(http.MethodPost, "/admin/verify-2fa", `{"username":"admin","code":"2006"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	adminTok := tokenOf(t, rec)

	rec = e.do(http.MethodGet, "/admin/users", "", adminTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"paul"`)

	rec = e.do(http.MethodPost, "/admin/users/"+reg.UID+"/ban", `{"banned":true}`, adminTok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/login", `{"username":"paul","password":"pw"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"account banned"}`, rec.Body.String())

	// sessions issued before the ban keep working
	rec = e.do(http.MethodGet, "/me", "", userTok)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodDelete, "/admin/users/"+reg.UID, "", userTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := e.users.ResolveByUsername(context.Background(), "admin")
	require.NoError(t, err)
	rec = e.do(http.MethodDelete, "/admin/users/"+admin.UID, "", adminTok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"cannot delete your own account"}`, rec.Body.String())

	rec = e.do(http.MethodDelete, "/admin/users/"+reg.UID, "", adminTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"deletedUser":"paul"}`, rec.Body.String())

	rec = e.do(http.MethodDelete, "/admin/users/"+reg.UID, "", adminTok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/login", `{"username":"paul","password":"pw"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogsNeverCarryCredentials(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/login", `{"username":"admin","password":"admin-pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodPost, "/admin/verify-2fa", `{"username":"admin","code":"2006"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := tokenOf(t, rec)

	for _, entry := range e.logs.All() {
		for k, v := range entry.ContextMap() {
			s, _ := v.(string)
			assert.NotContains(t, s, "admin-pw", k)
			assert.NotContains(t, s, tok, k)
		}
	}
}
