package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/session"
)

// ErrUnauthorized is returned when the server refuses the subscription.
// It is never retried.
var ErrUnauthorized = errors.New("realtime subscription refused")

const (
	defaultReadTimeout  = 75 * time.Second
	defaultMaxReconnect = 15 * time.Minute
	closeWriteTimeout   = time.Second
	badgeStreamPathBase = "api/realtime/badges"
)

// Client subscribes to a user's badge stream over a websocket and
// reconnects with exponential backoff when the connection drops.
type Client struct {
	baseURL      *url.URL
	dialer       *websocket.Dialer
	logger       *slog.Logger
	readTimeout  time.Duration
	maxReconnect time.Duration
	newBackOff   func() backoff.BackOff
}

type ClientOption func(*Client)

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithBackOff sets the policy used between reconnect attempts.
func WithBackOff(fn func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = fn }
}

// WithMaxReconnectTime bounds how long a dropped subscription keeps
// trying to reconnect.
func WithMaxReconnectTime(d time.Duration) ClientOption {
	return func(c *Client) { c.maxReconnect = d }
}

func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.readTimeout = d }
}

// NewClient dials baseURL, an http or https API root. The jar supplies the
// session cookie on every handshake.
func NewClient(baseURL string, jar http.CookieJar, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Jar:              jar,
		},
		logger:       slog.Default(),
		readTimeout:  defaultReadTimeout,
		maxReconnect: defaultMaxReconnect,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe opens the stream for userID. The first dial happens before
// Subscribe returns so that a refused subscription surfaces as an error.
// After every reconnect handler receives a resync event, since inserts
// published while the stream was down are not replayed.
// handler runs on the subscription's goroutine and must not close the
// subscription it belongs to.
func (c *Client) Subscribe(ctx context.Context, userID string, handler func(dto.BadgeEvent)) (session.Subscription, error) {
	conn, err := c.dial(ctx, userID)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:  c,
		userID:  userID,
		handler: handler,
		ctx:     subCtx,
		cancel:  cancel,
		conn:    conn,
		done:    make(chan struct{}),
	}
	go s.run(conn)
	return s, nil
}

func (c *Client) streamURL(userID string) string {
	return c.baseURL.JoinPath(badgeStreamPathBase, userID).String()
}

func (c *Client) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL(userID), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial badge stream: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeWriteTimeout))
	})
	return conn, nil
}

func (c *Client) reconnect(ctx context.Context, userID string) (*websocket.Conn, error) {
	op := func() (*websocket.Conn, error) {
		conn, err := c.dial(ctx, userID)
		if errors.Is(err, ErrUnauthorized) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(c.maxReconnect),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("badge stream reconnect failed", "component", "realtime", "user_id", userID, "error", err, "retry_in", next)
		}),
	)
}

type subscription struct {
	client  *Client
	userID  string
	handler func(dto.BadgeEvent)
	ctx     context.Context
	cancel  context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

func (s *subscription) run(conn *websocket.Conn) {
	defer close(s.done)
	logger := s.client.logger
	for {
		s.read(conn)
		_ = conn.Close()
		if s.ctx.Err() != nil {
			return
		}

		logger.Warn("badge stream lost, reconnecting", "component", "realtime", "user_id", s.userID)
		next, err := s.client.reconnect(s.ctx, s.userID)
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Error("badge stream abandoned", "component", "realtime", "user_id", s.userID, "error", err)
			}
			return
		}
		if !s.swap(next) {
			_ = next.Close()
			return
		}
		conn = next
		logger.Info("badge stream restored", "component", "realtime", "user_id", s.userID)
		s.handler(dto.NewResyncEvent(s.userID))
	}
}

func (s *subscription) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.client.logger.Debug("badge stream read failed", "component", "realtime", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.client.readTimeout))

		var ev dto.BadgeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.client.logger.Warn("discarding undecodable badge event", "component", "realtime", "error", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			s.client.logger.Warn("discarding invalid badge event", "component", "realtime", "error", err)
			continue
		}
		s.handler(ev)
	}
}

// swap installs a reconnected conn unless the subscription was closed
// while dialing.
func (s *subscription) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
			_ = conn.Close()
		}
	})
	<-s.done
	return nil
}
