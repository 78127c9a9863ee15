package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/realtime"
	"github.com/escalaapp/escala/pkg/errors"
	"github.com/escalaapp/escala/pkg/response"
)

// RealtimeHandler upgrades HTTP requests into authenticated WebSocket
// sessions on the realtime hub.
type RealtimeHandler struct {
	hub            *realtime.Hub
	jwt            *iauth.JWTService
	allowedStreams map[string]struct{}
}

// NewRealtimeHandler builds the handler. Passing stream names restricts
// subscribers to that set; with none given every stream is open.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, streams ...string) *RealtimeHandler {
	allowed := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if name := normalizeStream(stream); name != "" {
			allowed[name] = struct{}{}
		}
	}

	return &RealtimeHandler{hub: hub, jwt: jwt, allowedStreams: allowed}
}

// Stream authenticates the caller and hands the connection to the hub.
// Browsers cannot set headers on websocket dials, so the token may arrive as
// a query parameter instead of the Authorization header.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := websocketToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := requestedStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	for _, stream := range streams {
		if !h.streamAllowed(stream) {
			response.Error(c, errors.ErrNotFound)
			return
		}
	}

	h.hub.Serve(userID, streams, h.allowedStreams, c.Writer, c.Request)
}

func (h *RealtimeHandler) streamAllowed(stream string) bool {
	if len(h.allowedStreams) == 0 {
		return true
	}
	_, ok := h.allowedStreams[stream]
	return ok
}

// websocketToken looks for the access token in the places browser clients
// can put it: ?token=, ?access_token=, then the Authorization header.
func websocketToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token
	}
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// requestedStreams merges the path parameter, repeated ?stream= values, and
// the comma separated ?streams= list into a deduplicated set.
func requestedStreams(c *gin.Context) []string {
	candidates := []string{c.Param("stream")}
	candidates = append(candidates, c.QueryArray("stream")...)
	candidates = append(candidates, strings.Split(c.Query("streams"), ",")...)

	seen := make(map[string]struct{}, len(candidates))
	var streams []string
	for _, candidate := range candidates {
		name := normalizeStream(candidate)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		streams = append(streams, name)
	}
	return streams
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
