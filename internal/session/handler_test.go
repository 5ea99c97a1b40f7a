package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voterlist-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, _, _ := newTestManager(t)
	r := gin.New()
	r.Use(middleware.Auth(m))
	NewHandler(m).RegisterRoutes(r.Group("/api/v1"))
	return r, m
}

func doJSON(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlerLoginMessages(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"username":"u1","password":"bad"}`, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), invalidCredentialsMessage)

	resp = doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"username":"nobody","password":"bad"}`, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), invalidCredentialsMessage)
}

func TestHandlerLoginAndViews(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"username":"01737654555","password":"admin-secret"}`, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Result().Cookies())

	var login loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	assert.Equal(t, ViewAdmin, login.View)

	resp = doJSON(r, http.MethodGet, "/api/v1/views/admin", "", login.Token)
	require.Equal(t, http.StatusOK, resp.Code)
	var view viewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, ViewAdmin, view.View)
	assert.False(t, view.Redirected)

	resp = doJSON(r, http.MethodGet, "/api/v1/me", "", login.Token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"role":"ADMIN"`)

	resp = doJSON(r, http.MethodPost, "/api/v1/auth/logout", "", login.Token)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(r, http.MethodGet, "/api/v1/me", "", login.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doJSON(r, http.MethodGet, "/api/v1/views/admin", "", login.Token)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, ViewLanding, view.View)
	assert.True(t, view.Redirected)
}

func TestHandlerUserCannotReachAdminView(t *testing.T) {
	r, m := newTestRouter(t)
	s, err := m.Login(t.Context(), "u1", "pw1")
	require.NoError(t, err)

	resp := doJSON(r, http.MethodGet, "/api/v1/views/admin", "", s.ID)
	var view viewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, ViewDashboard, view.View)
	assert.True(t, view.Redirected)
}
