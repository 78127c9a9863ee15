package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/logger"
	"github.com/escalaapp/escala/pkg/response"
)

// Recovery turns a handler panic into an opaque 500. The panic value
// is logged, never echoed to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.WithModule("http").Error("panic",
				zap.String("path", c.Request.URL.Path),
				zap.Any("error", r),
			)
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with a JSON 404 instead of
// gin's default plain-text body.
func NotFoundHandler(c *gin.Context) {
	response.Success(c, http.StatusNotFound, gin.H{
		"error": fmt.Sprintf("route %s not found", c.Request.URL.Path),
	})
}
