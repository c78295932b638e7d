package wsrpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tradeScope/internal/metrics"
)

// ErrHeartbeatLost ends a session whose previous ping went unanswered.
var ErrHeartbeatLost = errors.New("wsrpc: heartbeat lost")

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateDraining
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateBackoff:
		return "backoff"
	default:
		return "disconnected"
	}
}

const (
	DefaultPingInterval     = 20 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	frameBuffer             = 256
)

// Config configures a Client.
type Config struct {
	URL              string
	PingInterval     time.Duration
	BackoffFloor     time.Duration
	BackoffCap       time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Handler receives session callbacks. Both run on the client loop and must
// not block on network replies.
type Handler interface {
	// OnOpen runs once per connection after queued messages are flushed.
	OnOpen(ctx context.Context)
	// OnFrame runs for every inbound text frame in arrival order.
	OnFrame(ctx context.Context, data []byte)
}

// Client owns one WebSocket at a time and reconnects forever.
type Client struct {
	cfg       Config
	mux       *Mux
	handler   Handler
	logger    *zap.Logger
	metrics   *metrics.Metrics
	backoff   *Backoff
	dialer    *websocket.Dialer
	state     atomic.Int32
	reconnect chan string
}

func NewClient(cfg Config, mux *Mux, handler Handler, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Client{
		cfg:       cfg,
		mux:       mux,
		handler:   handler,
		logger:    logger,
		metrics:   m,
		backoff:   NewBackoff(cfg.BackoffFloor, cfg.BackoffCap),
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		reconnect: make(chan string, 1),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Reconnect asks the client to replace the current socket and reset the
// backoff. Requests made while one is already pending coalesce.
func (c *Client) Reconnect(reason string) {
	select {
	case c.reconnect <- reason:
	default:
	}
}

// Run connects and serves sessions until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setState(StateConnecting)

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("ws connect failed", zap.String("url", c.cfg.URL), zap.Error(err))
		} else {
			requested, err := c.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if requested {
				c.backoff.Reset()
			}
			c.logger.Warn("ws session ended", zap.Bool("requested", requested), zap.Error(err))
		}

		c.metrics.Reconnect()
		c.setState(StateBackoff)
		wait := c.backoff.Next()
		c.logger.Info("ws reconnect scheduled", zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case reason := <-c.reconnect:
			timer.Stop()
			c.backoff.Reset()
			c.logger.Info("ws reconnect requested during backoff", zap.String("reason", reason))
		case <-timer.C:
		}
	}
}

func (c *Client) drainReconnect() {
	select {
	case <-c.reconnect:
	default:
	}
}

// serve runs one session. requested reports whether it ended because of
// a Reconnect call.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) (requested bool, err error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer func() {
		c.setState(StateDraining)
		cancel()
		_ = conn.Close()
		c.mux.Detach()
	}()

	c.setState(StateOpen)
	c.backoff.Reset()
	c.logger.Info("ws open", zap.String("url", c.cfg.URL))

	var alive atomic.Bool
	alive.Store(true)
	conn.SetPongHandler(func(string) error {
		alive.Store(true)
		return nil
	})

	frames := make(chan []byte, frameBuffer)
	readErr := make(chan error, 1)
	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			alive.Store(true)
			if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
				continue
			}
			select {
			case frames <- data:
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	c.mux.Attach(&connWriter{conn: conn, timeout: c.cfg.WriteTimeout})
	// OnOpen subscribes with the current state, so requests made while
	// dialing are already honoured.
	c.drainReconnect()
	c.handler.OnOpen(sessionCtx)

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case reason := <-c.reconnect:
			c.logger.Info("ws reconnect requested", zap.String("reason", reason))
			return true, nil
		case err := <-readErr:
			c.drainFrames(sessionCtx, frames)
			return false, fmt.Errorf("read: %w", err)
		case data := <-frames:
			c.handler.OnFrame(sessionCtx, data)
		case <-ticker.C:
			if !alive.Swap(false) {
				return false, ErrHeartbeatLost
			}
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return false, fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// drainFrames handles frames that were read before the socket failed.
func (c *Client) drainFrames(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case data := <-frames:
			c.handler.OnFrame(ctx, data)
		default:
			return
		}
	}
}

type connWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *connWriter) WriteMessage(data []byte) error {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
