// Package realtime owns the single persistent websocket connection to the
// trading engine: authenticate, subscribe to named channels, detect half-open
// connections, reconnect with capped backoff. The push channel is an
// optimization; when it is down, cached values simply age past their windows
// and pull refetches recover.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ClientMessage is the client-to-server frame.
type ClientMessage struct {
	Type     string   `json:"type"` // subscribe|unsubscribe|auth|ping
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Token    string   `json:"token,omitempty"`
}

// Event is the server-to-client frame.
type Event struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// TokenSource produces the auth token for the current session. The token is
// an unsigned two-segment JWT; it identifies, it does not authenticate, and
// the engine must verify it independently.
type TokenSource func() (string, error)

type Options struct {
	URL          string
	Token        TokenSource
	PingInterval time.Duration
	PongTimeout  time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	Logger       *zap.Logger
	OnEvent      func(Event)
}

// Channel owns exactly one connection at a time. Run is idempotent against
// duplicate calls; only Close tears the channel down for good — the
// subscription count reaching zero keeps the connection warm.
type Channel struct {
	opts Options

	mu      sync.Mutex
	wanted  map[string]struct{}
	conn    *websocket.Conn
	running bool
	closed  bool
	cancel  context.CancelFunc

	state       atomic.Int32
	lastTraffic atomic.Int64
}

func New(opts Options) *Channel {
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout == 0 {
		opts.PongTimeout = 10 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 3 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &Channel{
		opts:   opts,
		wanted: map[string]struct{}{},
	}
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Subscribe adds a channel to the wanted set and, when connected, sends the
// subscribe frame. The set is replayed in full after every reconnect;
// server-side subscriptions are not assumed to survive one.
func (c *Channel) Subscribe(ctx context.Context, channel string) {
	c.mu.Lock()
	c.wanted[channel] = struct{}{}
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := writeJSON(ctx, conn, ClientMessage{Type: "subscribe", Channel: channel}); err != nil && c.opts.Logger != nil {
			c.opts.Logger.Warn("subscribe send failed", zap.String("channel", channel), zap.Error(err))
		}
	}
}

// Unsubscribe removes a channel from the wanted set. The connection stays up
// even when nothing is subscribed.
func (c *Channel) Unsubscribe(ctx context.Context, channel string) {
	c.mu.Lock()
	delete(c.wanted, channel)
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := writeJSON(ctx, conn, ClientMessage{Type: "unsubscribe", Channel: channel}); err != nil && c.opts.Logger != nil {
			c.opts.Logger.Warn("unsubscribe send failed", zap.String("channel", channel), zap.Error(err))
		}
	}
}

// Subscriptions returns the current wanted set.
func (c *Channel) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.wanted))
	for ch := range c.wanted {
		out = append(out, ch)
	}
	return out
}

// Close enters the terminal state. The connection is not reopened afterwards.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	c.state.Store(int32(StateClosed))
	if cancel != nil {
		cancel()
	}
}

// Run drives the connect/authenticate/subscribe/read loop until ctx is done
// or Close is called. A call while the loop is already running is a no-op.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	backoff := c.opts.BackoffMin
	for {
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
		c.setState(StateConnecting)
		conn, _, err := websocket.Dial(runCtx, c.opts.URL, nil)
		if err != nil {
			if c.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				c.opts.Logger.Warn("ws connect failed", zap.Error(err))
			}
			c.setState(StateDisconnected)
			if err := sleepWithJitter(runCtx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, c.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(2 << 20)
		c.lastTraffic.Store(time.Now().UnixNano())

		c.setState(StateAuthenticating)
		if err := c.authenticate(runCtx, conn); err != nil {
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("ws auth send failed", zap.Error(err))
			}
			_ = conn.Close(websocket.StatusInternalError, "auth failed")
			c.setState(StateDisconnected)
			if err := sleepWithJitter(runCtx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, c.opts.BackoffMax)
			continue
		}

		// Auth is fire-and-forget on this protocol: proceed to the
		// subscribed state and replay the full wanted set.
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateSubscribed)
		if err := c.replaySubscriptions(runCtx, conn); err != nil {
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("ws subscribe replay failed", zap.Error(err))
			}
			c.dropConn(conn, websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(runCtx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, c.opts.BackoffMax)
			continue
		}
		if c.opts.Logger != nil {
			c.opts.Logger.Info("ws subscribed", zap.Int("channels", len(c.Subscriptions())))
		}
		backoff = c.opts.BackoffMin

		err = c.consume(runCtx, conn)
		c.dropConn(conn, websocket.StatusNormalClosure, "reconnect")
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
		if c.opts.Logger != nil {
			c.opts.Logger.Warn("ws connection lost", zap.Error(err))
		}
		if err := sleepWithJitter(runCtx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, c.opts.BackoffMax)
	}
}

func (c *Channel) dropConn(conn *websocket.Conn, status websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close(status, reason)
	c.setState(StateDisconnected)
}

func (c *Channel) authenticate(ctx context.Context, conn *websocket.Conn) error {
	if c.opts.Token == nil {
		return nil
	}
	token, err := c.opts.Token()
	if err != nil {
		return err
	}
	return writeJSON(ctx, conn, ClientMessage{Type: "auth", Token: token})
}

func (c *Channel) replaySubscriptions(ctx context.Context, conn *websocket.Conn) error {
	channels := c.Subscriptions()
	if len(channels) == 0 {
		return nil
	}
	return writeJSON(ctx, conn, ClientMessage{Type: "subscribe", Channels: channels})
}

// consume reads events until the connection fails. A heartbeat goroutine
// sends ping frames and closes the connection when no traffic arrives within
// the liveness window, which unblocks the read loop.
func (c *Channel) consume(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeat(hbCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.lastTraffic.Store(time.Now().UnixNano())

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			// Malformed frames are a protocol error: log and drop, keep the
			// connection.
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("dropping malformed ws frame", zap.ByteString("frame", data))
			}
			continue
		}
		switch ev.Type {
		case "pong":
			continue
		case "ping":
			_ = writeJSON(ctx, conn, ClientMessage{Type: "ping"})
			continue
		case "error":
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("ws protocol error",
					zap.String("error", ev.Error),
					zap.String("message", ev.Message),
				)
			}
			continue
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

func (c *Channel) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, ClientMessage{Type: "ping"}); err != nil {
				_ = conn.Close(websocket.StatusPolicyViolation, "ping failed")
				return
			}
			age := time.Since(time.Unix(0, c.lastTraffic.Load()))
			if age > c.opts.PingInterval+c.opts.PongTimeout {
				if c.opts.Logger != nil {
					c.opts.Logger.Warn("ws liveness timeout", zap.Duration("silence", age))
				}
				_ = conn.Close(websocket.StatusPolicyViolation, "liveness timeout")
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	delay := base
	if half := int64(base / 2); half > 0 {
		delay += time.Duration(rand.Int63n(half))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
