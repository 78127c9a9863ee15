package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/response"
)

// Context keys set by Auth for downstream handlers.
const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxIdentityKey = "identity"
)

// Auth requires a valid bearer token on every request it guards. On
// success the verified claims, user id and identity snapshot are placed
// on the gin context under the Ctx* keys.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Expired, malformed and forged tokens all look the same
			// to the client.
			c.Header("WWW-Authenticate", "Bearer")
			reject(c)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxIdentityKey, claims.Identity())

		c.Next()
	}
}

func bearerToken(authz string) (string, bool) {
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	return token, token != ""
}

func reject(c *gin.Context) {
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}
