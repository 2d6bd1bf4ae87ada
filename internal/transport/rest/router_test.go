package rest

import (
	_ "codepair/docs"
	"codepair/internal/apperr"
	"codepair/internal/collab"
	"codepair/internal/model"
	"codepair/internal/service"
	"codepair/internal/transport/ws"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]*model.User

func (a tokenAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.CodeUnauthenticated, "invalid or expired token")
}

func (a tokenAuth) ChatToken(user *model.User) (*model.ChatTokenResponse, error) {
	return &model.ChatTokenResponse{Token: "chat-" + user.ExternalID, UserID: user.ExternalID}, nil
}

// listSessions answers the read endpoints and panics on anything else.
type listSessions struct {
	service.SessionService
	active []*model.SessionView
}

func (l *listSessions) ListActive(context.Context, string) ([]*model.SessionView, error) {
	return l.active, nil
}

func (l *listSessions) Membership(context.Context, string, string) (*model.Session, model.Role, error) {
	return nil, model.RoleNone, apperr.New(apperr.CodeSessionNotFound, "session not found")
}

func newTestRouter(t *testing.T) (http.Handler, *ws.Hub) {
	t.Helper()
	hub := ws.NewHub(collab.NewStore())
	t.Cleanup(hub.Shutdown)

	auth := tokenAuth{"good": {ID: "u1", ExternalID: "ext-1", Name: "Ada"}}
	sessions := &listSessions{active: []*model.SessionView{{Session: &model.Session{ID: "s1", Status: model.SessionActive}}}}

	return newRouter(routes{
		auth:     auth,
		chat:     auth,
		sessions: sessions,
		member:   sessions,
		hub:      hub,
		origins:  "https://app.example.com",
	}), hub
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, "GET", "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, "OPTIONS", "/v1/sessions/s1/decision", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestAuthenticatedRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(h, "GET", "/v1/sessions/active", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, "GET", "/v1/sessions/active", "bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperr.CodeUnauthenticated))

	rec = do(h, "GET", "/v1/sessions/active", "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)

	rec = do(h, "GET", "/v1/chat/token", "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat-ext-1")
}

func TestPanicsBecome500(t *testing.T) {
	h, _ := newTestRouter(t)

	// The embedded zero SessionService has no repositories, so this panics.
	rec := do(h, "GET", "/v1/sessions/s1", "good")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestWebSocketRouteIsOutsideBearerAuth(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(h, "GET", "/v1/ws/rooms/session_x?token=good", "")

	// Membership is checked by the socket handler itself.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, "GET", "/swagger/doc.json", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/sessions/{id}/switch")
}
