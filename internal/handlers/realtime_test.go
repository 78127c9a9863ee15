package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/realtime"
)

func streamRequest(t *testing.T, handler *RealtimeHandler, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler.Stream(c)
	return rec
}

func realtimeFixture(t *testing.T, streams ...string) (*RealtimeHandler, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	return NewRealtimeHandler(realtime.NewHub(), jwtSvc, streams...), jwtSvc
}

func TestRealtimeStreamRequiresToken(t *testing.T) {
	handler, _ := realtimeFixture(t, realtime.StreamNotifications)

	rec := streamRequest(t, handler, "/api/realtime")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = streamRequest(t, handler, "/api/realtime?token=not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeStreamRejectsUnknownStream(t *testing.T) {
	handler, jwtSvc := realtimeFixture(t, realtime.StreamNotifications, realtime.StreamInvitations)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	// "sessions" is not an offered stream, so the subscription attempt
	// fails before any websocket upgrade.
	rec := streamRequest(t, handler, "/api/realtime?token="+token+"&streams=sessions")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
