package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RedisConfig holds the connection settings for the lightweight Redis client.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	redisDialTimeout = 5 * time.Second
	redisKeyPrefix   = "escala:"
)

// RedisClient speaks just enough RESP for the Store interface: AUTH and
// SELECT during the handshake, then INCR, PEXPIRE, PTTL, GET, SET and DEL.
// A single connection is shared behind a mutex; on any protocol or network
// error the connection is dropped and redialled on the next call.
type RedisClient struct {
	cfg RedisConfig

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
}

// NewRedisClient dials the configured server immediately so a bad address or
// password surfaces at startup rather than on the first request.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = redisDialTimeout
	}

	c := &RedisClient{cfg: cfg}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialLocked(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Close drops the live connection. A later command redials.
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.br = nil
	return err
}

// IncrementWithTTL bumps key and pins its expiry to the supplied window when
// the counter is fresh. The remaining TTL is read back so callers can report
// accurate retry hints.
func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = applyPrefix(key)

	count, err := c.intCommand(ctx, "INCR", key)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if _, err := c.intCommand(ctx, "PEXPIRE", key, millis(window)); err != nil {
			return 0, 0, err
		}
	}

	remaining, err := c.intCommand(ctx, "PTTL", key)
	if err != nil || remaining < 0 {
		// A negative PTTL means the key raced away; fall back to the window.
		return count, window, nil
	}
	return count, time.Duration(remaining) * time.Millisecond, nil
}

// Set stores value under key. A positive ttl is applied as a PX expiry.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", applyPrefix(key), string(value)}
	if ttl > 0 {
		args = append(args, "PX", millis(ttl))
	}
	_, err := c.statusCommand(ctx, args...)
	return err
}

// Get fetches the value at key. A nil bulk reply reports a miss.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply, err := c.roundTrip(ctx, "GET", applyPrefix(key))
	if err != nil {
		return nil, false, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("redis: GET returned %T", v)
	}
}

// Delete removes the given keys in a single DEL call.
func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]string, 1, len(keys)+1)
	args[0] = "DEL"
	for _, key := range keys {
		args = append(args, applyPrefix(key))
	}
	_, err := c.roundTrip(ctx, args...)
	return err
}

func (c *RedisClient) statusCommand(ctx context.Context, args ...string) (string, error) {
	reply, err := c.roundTrip(ctx, args...)
	if err != nil {
		return "", err
	}
	s, ok := reply.(string)
	if !ok {
		return "", fmt.Errorf("redis: %s returned %T", args[0], reply)
	}
	return s, nil
}

func (c *RedisClient) intCommand(ctx context.Context, args ...string) (int64, error) {
	reply, err := c.roundTrip(ctx, args...)
	if err != nil {
		return 0, err
	}
	switch v := reply.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("redis: %s returned %T", args[0], v)
	}
}

func (c *RedisClient) roundTrip(ctx context.Context, args ...string) (any, error) {
	ctx = ensureContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.conn.SetDeadline(callDeadline(ctx, c.cfg.Timeout)); err != nil {
		c.dropLocked()
		return nil, err
	}
	if err := writeRESP(c.conn, args); err != nil {
		c.dropLocked()
		return nil, err
	}
	reply, err := readRESP(c.br)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	return reply, nil
}

func (c *RedisClient) dialLocked(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLS {
		conn, err = (&tls.Dialer{NetDialer: &net.Dialer{}}).DialContext(dialCtx, "tcp", c.cfg.Address)
	} else {
		conn, err = (&net.Dialer{}).DialContext(dialCtx, "tcp", c.cfg.Address)
	}
	if err != nil {
		return err
	}

	br := bufio.NewReader(conn)
	if err := conn.SetDeadline(callDeadline(dialCtx, c.cfg.Timeout)); err != nil {
		conn.Close()
		return err
	}
	if err := c.handshake(conn, br); err != nil {
		conn.Close()
		return err
	}
	// Per-command deadlines are set in roundTrip.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.br = br
	return nil
}

func (c *RedisClient) handshake(conn net.Conn, br *bufio.Reader) error {
	if c.cfg.Password != "" || c.cfg.Username != "" {
		auth := []string{"AUTH"}
		if c.cfg.Username != "" {
			auth = append(auth, c.cfg.Username)
		}
		auth = append(auth, c.cfg.Password)
		if err := expectOK(conn, br, auth); err != nil {
			return fmt.Errorf("redis: auth: %w", err)
		}
	}
	if c.cfg.DB > 0 {
		if err := expectOK(conn, br, []string{"SELECT", strconv.Itoa(c.cfg.DB)}); err != nil {
			return fmt.Errorf("redis: select %d: %w", c.cfg.DB, err)
		}
	}
	return nil
}

func (c *RedisClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.br = nil
}

func expectOK(conn net.Conn, br *bufio.Reader, args []string) error {
	if err := writeRESP(conn, args); err != nil {
		return err
	}
	reply, err := readRESP(br)
	if err != nil {
		return err
	}
	if s, ok := reply.(string); !ok || !strings.EqualFold(s, "OK") {
		return fmt.Errorf("unexpected reply %v", reply)
	}
	return nil
}

func applyPrefix(key string) string {
	if !strings.HasPrefix(key, redisKeyPrefix) {
		key = redisKeyPrefix + key
	}
	return collapseColons(key)
}

// collapseColons squashes accidental "::" runs so namespaced keys stay tidy.
func collapseColons(key string) string {
	if !strings.Contains(key, "::") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	var prev byte
	for i := 0; i < len(key); i++ {
		if key[i] == ':' && prev == ':' {
			continue
		}
		prev = key[i]
		b.WriteByte(key[i])
	}
	return b.String()
}

func callDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

func millis(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func writeRESP(conn net.Conn, args []string) error {
	buf := make([]byte, 0, 32+len(args)*16)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, '\r', '\n')
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, arg...)
		buf = append(buf, '\r', '\n')
	}
	_, err := conn.Write(buf)
	return err
}

func readRESP(br *bufio.Reader) (any, error) {
	kind, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := readRESPLine(br)
	if err != nil {
		return nil, err
	}

	switch kind {
	case '+':
		return line, nil
	case '-':
		return nil, fmt.Errorf("redis: %s", line)
	case ':':
		return strconv.ParseInt(line, 10, 64)
	case '$':
		size, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if size < 0 {
			return nil, nil
		}
		body := make([]byte, size+2)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, err
		}
		if body[size] != '\r' || body[size+1] != '\n' {
			return nil, errors.New("redis: bulk reply missing terminator")
		}
		return body[:size], nil
	case '*':
		count, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if count < 0 {
			return nil, nil
		}
		items := make([]any, count)
		for i := range items {
			if items[i], err = readRESP(br); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("redis: unknown reply type %q", kind)
	}
}

func readRESPLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
