package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/middleware"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireUserID pulls the authenticated user id set by the auth middleware,
// answering 401 itself when it is absent.
func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// currentIdentity extracts the authenticated identity placed by the auth
// middleware. The boolean is false on unauthenticated requests.
func currentIdentity(c *gin.Context) (iauth.Identity, bool) {
	value, ok := c.Get(middleware.CtxIdentityKey)
	if !ok {
		return iauth.Identity{}, false
	}
	identity, ok := value.(iauth.Identity)
	if !ok || identity.IsZero() {
		return iauth.Identity{}, false
	}
	return identity, true
}
