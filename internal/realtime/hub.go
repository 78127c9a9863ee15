package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/escalaapp/escala/pkg/logger"
	"github.com/escalaapp/escala/pkg/metrics"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = (pongTimeout * 9) / 10
	readLimitBytes = 1 << 20
	outboxSize     = 64
)

// Message is the JSON envelope delivered to stream subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// clientCommand is what subscribers send upstream to adjust their streams.
type clientCommand struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans stream messages out to websocket subscribers. Sessions are indexed
// by stream and user so per-user delivery stays cheap.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	index map[string]map[string]map[*session]struct{} // stream -> user -> sessions
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		log: logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		index: make(map[string]map[string]map[*session]struct{}),
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. A nil allowed set permits every stream.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		hub:     h,
		conn:    conn,
		userID:  userID,
		allowed: allowed,
		joined:  make(map[string]struct{}),
		outbox:  make(chan Message, outboxSize),
		quit:    make(chan struct{}),
	}
	h.join(sess, streams)
	metrics.RealtimeConnections.Inc()

	go sess.writer()
	sess.reader()
}

// BroadcastToUser queues message for every session the user has open on the
// given stream. Sessions that cannot keep up are disconnected.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = canonicalStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sess := range h.index[stream][userID] {
		select {
		case sess.outbox <- message:
		default:
			h.log.Warn("dropping slow realtime client", zap.String("user_id", sess.userID))
			// close re-enters the hub lock, so it runs on its own goroutine.
			go sess.close()
		}
	}
}

func (h *Hub) join(sess *session, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		stream = canonicalStream(stream)
		if stream == "" {
			continue
		}
		if !sess.mayJoin(stream) {
			h.log.Warn("ignoring unauthorized stream",
				zap.String("stream", stream), zap.String("user_id", sess.userID))
			continue
		}
		if _, ok := sess.joined[stream]; ok {
			continue
		}

		byUser := h.index[stream]
		if byUser == nil {
			byUser = make(map[string]map[*session]struct{})
			h.index[stream] = byUser
		}
		set := byUser[sess.userID]
		if set == nil {
			set = make(map[*session]struct{})
			byUser[sess.userID] = set
		}
		set[sess] = struct{}{}
		sess.joined[stream] = struct{}{}
	}
}

func (h *Hub) leave(sess *session, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		stream = canonicalStream(stream)
		if stream == "" {
			continue
		}
		h.dropLocked(sess, stream)
		delete(sess.joined, stream)
	}
}

func (h *Hub) detach(sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range sess.joined {
		h.dropLocked(sess, stream)
		delete(sess.joined, stream)
	}
}

func (h *Hub) dropLocked(sess *session, stream string) {
	byUser := h.index[stream]
	if byUser == nil {
		return
	}
	set := byUser[sess.userID]
	if set == nil {
		return
	}

	delete(set, sess)
	if len(set) == 0 {
		delete(byUser, sess.userID)
	}
	if len(byUser) == 0 {
		delete(h.index, stream)
	}
}

type session struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  string
	allowed map[string]struct{}
	joined  map[string]struct{}
	outbox  chan Message
	quit    chan struct{}
	once    sync.Once
}

func (s *session) mayJoin(stream string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[stream]
	return ok
}

func (s *session) reader() {
	defer s.close()

	s.conn.SetReadLimit(readLimitBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.log.Debug("unexpected close",
					zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var cmd clientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.hub.log.Debug("invalid control payload",
				zap.String("user_id", s.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
		case "subscribe":
			s.hub.join(s, cmd.Streams)
		case "unsubscribe":
			s.hub.leave(s, cmd.Streams)
		case "ping":
			select {
			case s.outbox <- Message{Event: "pong"}:
			default:
			}
		default:
			s.hub.log.Debug("unsupported control action",
				zap.String("action", cmd.Action), zap.String("user_id", s.userID))
		}
	}
}

func (s *session) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.quit:
			_ = s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
			return
		case message := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close is idempotent. The outbox channel is never closed; the writer exits
// through quit and unread messages are left to the collector.
func (s *session) close() {
	s.once.Do(func() {
		s.hub.detach(s)
		metrics.RealtimeConnections.Dec()
		close(s.quit)
		_ = s.conn.Close()
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	host = stripPort(host)

	if strings.EqualFold(host, stripPort(r.Host)) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSpace(host)
}

func canonicalStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
