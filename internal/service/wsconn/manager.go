// Package wsconn owns a single WebSocket connection: subscribe on open, heartbeat,
// silent-death detection and jittered reconnects.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	// ErrReconnectExhausted is reported once when the reconnect budget is spent.
	ErrReconnectExhausted = errors.New("wsconn: reconnect attempts exhausted")
	// ErrHeartbeatTimeout means nothing arrived for two heartbeat intervals.
	ErrHeartbeatTimeout = errors.New("wsconn: heartbeat timeout")
)

type State int

const (
	Idle State = iota
	Connecting
	Open
	Reconnecting
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Dialer opens the transport. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Message is one inbound frame. JSON is nil when the payload is not valid JSON.
type Message struct {
	Raw  []byte
	JSON any
}

type Config struct {
	URL string
	// SubscribeMessage is JSON-encoded and sent after every successful open.
	SubscribeMessage any
	// HeartbeatMessage is sent every interval; a ping frame is used when nil.
	HeartbeatMessage     any
	HeartbeatInterval    time.Duration
	ConnectTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	DisableReconnect     bool
}

type Option func(*Manager)

func WithDialer(d Dialer) Option { return func(m *Manager) { m.dialer = d } }

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l.Component("wsconn") }
}

// WithMessageHandler registers the single message callback.
func WithMessageHandler(fn func(Message)) Option { return func(m *Manager) { m.onMessage = fn } }

// WithErrorHandler receives terminal errors only.
func WithErrorHandler(fn func(error)) Option { return func(m *Manager) { m.onError = fn } }

// WithReconnectHook is called before every scheduled reconnect.
func WithReconnectHook(fn func(attempt int, delay time.Duration)) Option {
	return func(m *Manager) { m.onReconnect = fn }
}

// WithRand replaces the jitter source, which must return values in [0,1).
func WithRand(fn func() float64) Option { return func(m *Manager) { m.rand = fn } }

type Manager struct {
	cfg    Config
	dialer Dialer
	log    *logger.Logger
	rand   func() float64

	onMessage   func(Message)
	onError     func(error)
	onReconnect func(int, time.Duration)

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	gen         uint64
	cancel      context.CancelFunc
	timer       *time.Timer
	attempts    int
	lastMessage time.Time
	exhausted   bool

	writeMu sync.Mutex
}

func New(cfg Config, opts ...Option) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	m := &Manager{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    logger.NewNop(),
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts connecting in the background. It is a no-op while connecting or open.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == Connecting || m.state == Open {
		m.mu.Unlock()
		return
	}
	m.releaseLocked()
	m.exhausted = false
	m.attempts = 0
	gen, ctx := m.beginLocked()
	m.mu.Unlock()

	go m.dial(ctx, gen)
}

// Send writes v as JSON on the open connection.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == Open
	m.mu.Unlock()
	if !open || conn == nil {
		return fmt.Errorf("wsconn: send on %s connection", m.State())
	}
	return m.writeJSON(conn, v)
}

// Cleanup stops timers, detaches the connection and closes it with a normal-closure frame.
// Safe to call any number of times from any state.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	conn := m.conn
	m.releaseLocked()
	m.attempts = 0
	m.exhausted = false
	m.state = Closing
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}

	m.mu.Lock()
	if m.state == Closing {
		m.state = Idle
	}
	m.mu.Unlock()
}

// beginLocked invalidates previous goroutines and enters Connecting.
func (m *Manager) beginLocked() (uint64, context.Context) {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = Connecting
	return m.gen, ctx
}

// releaseLocked bumps the generation and drops timers, goroutines and the connection.
func (m *Manager) releaseLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, _, err := m.dialer.DialContext(dctx, m.cfg.URL, nil)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.fail(gen, fmt.Errorf("dial: %w", err))
		return
	}
	m.conn = conn
	m.state = Open
	m.attempts = 0
	m.lastMessage = time.Now()
	m.mu.Unlock()

	m.log.Debug("connected", logger.String("url", redact(m.cfg.URL)))

	conn.SetPongHandler(func(string) error {
		m.touch(gen)
		return nil
	})

	if m.cfg.SubscribeMessage != nil {
		if err := m.writeJSON(conn, m.cfg.SubscribeMessage); err != nil {
			m.fail(gen, fmt.Errorf("subscribe: %w", err))
			return
		}
	}

	go m.readLoop(gen, conn)
	go m.heartbeat(ctx, gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.closedByPeer(gen)
				return
			}
			m.fail(gen, fmt.Errorf("read: %w", err))
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.lastMessage = time.Now()
		handler := m.onMessage
		m.mu.Unlock()

		msg := Message{Raw: data}
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			msg.JSON = v
		}
		if handler != nil {
			m.deliver(handler, msg)
		}
	}
}

func (m *Manager) deliver(handler func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("message handler panicked", logger.Any("panic", r))
		}
	}()
	handler(msg)
}

func (m *Manager) heartbeat(ctx context.Context, gen uint64, conn *websocket.Conn) {
	interval := m.cfg.HeartbeatInterval
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		silent := time.Since(m.lastMessage)
		m.mu.Unlock()

		if silent > 2*interval {
			m.fail(gen, ErrHeartbeatTimeout)
			return
		}

		var err error
		if m.cfg.HeartbeatMessage != nil {
			err = m.writeJSON(conn, m.cfg.HeartbeatMessage)
		} else {
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
		}
		if err != nil {
			m.fail(gen, fmt.Errorf("heartbeat: %w", err))
			return
		}
	}
}

func (m *Manager) touch(gen uint64) {
	m.mu.Lock()
	if gen == m.gen {
		m.lastMessage = time.Now()
	}
	m.mu.Unlock()
}

// fail handles an error on generation gen: reconnect while the budget lasts, else give up once.
func (m *Manager) fail(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.releaseLocked()

	if m.cfg.DisableReconnect || m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = Closed
		report := !m.exhausted
		m.exhausted = true
		attempts := m.attempts
		m.mu.Unlock()

		closeQuietly(conn)
		m.log.Warn("connection given up",
			logger.String("url", redact(m.cfg.URL)),
			logger.Int("attempts", attempts),
			logger.Error(cause),
		)
		if report && m.onError != nil {
			m.onError(fmt.Errorf("%w: %v", ErrReconnectExhausted, cause))
		}
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.reconnectDelay(attempt)
	m.state = Reconnecting
	next := m.gen
	m.timer = time.AfterFunc(delay, func() { m.reconnect(next) })
	hook := m.onReconnect
	m.mu.Unlock()

	closeQuietly(conn)
	m.log.Info("reconnect scheduled",
		logger.Int("attempt", attempt),
		logger.Duration("delay_ms", delay),
		logger.Error(cause),
	)
	if hook != nil {
		hook(attempt, delay)
	}
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	next, ctx := m.beginLocked()
	m.mu.Unlock()

	m.dial(ctx, next)
}

func (m *Manager) closedByPeer(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.releaseLocked()
	m.state = Closed
	m.mu.Unlock()

	closeQuietly(conn)
	m.log.Info("connection closed by peer", logger.String("url", redact(m.cfg.URL)))
}

// reconnectDelay is base × jitter(0.8–1.1) × min(1.5^(attempt-1), 10).
func (m *Manager) reconnectDelay(attempt int) time.Duration {
	jitter := 0.8 + m.rand()*0.3
	factor := math.Min(math.Pow(1.5, float64(attempt-1)), 10)
	return time.Duration(float64(m.cfg.ReconnectBaseDelay) * jitter * factor)
}

func (m *Manager) writeJSON(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.ConnectTimeout))
	return conn.WriteJSON(v)
}

func closeQuietly(conn *websocket.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

// redact hides credentials carried in the query string.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	q := u.Query()
	for _, k := range []string{"token", "apikey", "api_key"} {
		if q.Has(k) {
			q.Set(k, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
