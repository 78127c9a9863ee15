package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/escalaapp/escala/pkg/crypto"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/logger"
	"github.com/escalaapp/escala/pkg/response"
)

const (
	// CSRFCookieName carries the double-submit token to browsers.
	CSRFCookieName = "escala_csrf"
	// CSRFHeaderName is where clients must echo the token on mutating requests.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60 // seconds
)

// CSRF guards cookie-authenticated clients with the double-submit
// pattern. Safe methods receive the token via cookie and response
// header; POST, PUT, PATCH and DELETE must echo it back in
// X-CSRF-Token or are rejected with 403.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, minted, err := currentCSRFToken(c)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if !stateChanging(c.Request.Method) {
			// Hand the token to the client for later echo.
			c.Header(CSRFHeaderName, token)
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
		if !tokensMatch(token, presented) {
			// Token values deliberately stay out of the log.
			logger.WithModule("csrf").Warn("csrf validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Bool("cookie_minted", minted),
			)
			response.Error(c, errors.ErrCSRFInvalid)
			c.Abort()
			return
		}

		c.Next()
	}
}

// currentCSRFToken returns the caller's token, minting a fresh one when
// the cookie is absent. The cookie is re-set on every response so its
// expiry slides.
func currentCSRFToken(c *gin.Context) (token string, minted bool, err error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		writeCSRFCookie(c, existing)
		return existing, false, nil
	}

	token, err = crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", false, err
	}
	writeCSRFCookie(c, token)
	return token, true, nil
}

func writeCSRFCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   requestOverTLS(c.Request),
		HttpOnly: false, // the frontend reads it to mirror into the header
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}

func requestOverTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func tokensMatch(want, got string) bool {
	if want == "" || got == "" || len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
