package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/escalaapp/escala/internal/auth"
)

func secureRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		UserID: "user-123",
		Email:  "ana@example.com",
		Name:   "Ana",
	})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc), func(c *gin.Context) {
		identity, _ := c.Get(CtxIdentityKey)
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString(CtxUserIDKey),
			"identity": identity,
		})
	})
	return r, token
}

func TestAuthMiddlewareRejectsBadCredentials(t *testing.T) {
	r, _ := secureRouter(t)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty token":    "Bearer   ",
		"garbage token":  "Bearer nonsense",
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if authz != "" {
				req.Header.Set("Authorization", authz)
			}
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthMiddlewareSeedsIdentity(t *testing.T) {
	r, token := secureRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	// Scheme matching is case-insensitive.
	req.Header.Set("Authorization", "bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		UserID   string `json:"user_id"`
		Identity struct {
			UID   string `json:"uid"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload.UserID)
	require.Equal(t, "user-123", payload.Identity.UID)
	require.Equal(t, "ana@example.com", payload.Identity.Email)
	require.Equal(t, "Ana", payload.Identity.Name)
}
