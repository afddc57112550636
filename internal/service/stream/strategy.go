package stream

import (
	"sync"
	"time"

	"MarketPulse/internal/service/wsconn"
)

// Mode names how an entry produces updates.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeRealtime  Mode = "realtime"
)

// strategy drives one entry. It is chosen once per entry and replaced only on downgrade.
type strategy interface {
	mode() Mode
	start()
	stop()
}

// simulatedStrategy ticks the simulator on a fixed interval.
type simulatedStrategy struct {
	interval time.Duration
	tick     func()
	once     sync.Once
	done     chan struct{}
}

func newSimulated(interval time.Duration, tick func()) *simulatedStrategy {
	return &simulatedStrategy{interval: interval, tick: tick, done: make(chan struct{})}
}

func (s *simulatedStrategy) mode() Mode { return ModeSimulated }

func (s *simulatedStrategy) start() {
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-t.C:
				s.tick()
			}
		}
	}()
}

func (s *simulatedStrategy) stop() {
	s.once.Do(func() { close(s.done) })
}

// Conn is the part of a connection manager the service drives.
type Conn interface {
	Connect()
	Cleanup()
}

// Handlers are the callbacks a ConnFactory must wire into the connection.
type Handlers struct {
	OnMessage   func(wsconn.Message)
	OnError     func(error)
	OnReconnect func(attempt int, delay time.Duration)
}

// ConnFactory builds a connection manager for one entry.
type ConnFactory func(cfg wsconn.Config, h Handlers) Conn

// NewManagerFactory returns the production factory backed by wsconn.Manager.
func NewManagerFactory(opts ...wsconn.Option) ConnFactory {
	return func(cfg wsconn.Config, h Handlers) Conn {
		all := append([]wsconn.Option{}, opts...)
		all = append(all,
			wsconn.WithMessageHandler(h.OnMessage),
			wsconn.WithErrorHandler(h.OnError),
			wsconn.WithReconnectHook(h.OnReconnect),
		)
		return wsconn.New(cfg, all...)
	}
}

// realtimeStrategy owns one provider connection.
type realtimeStrategy struct {
	conn Conn
	once sync.Once
}

func (r *realtimeStrategy) mode() Mode { return ModeRealtime }

func (r *realtimeStrategy) start() { r.conn.Connect() }

func (r *realtimeStrategy) stop() {
	r.once.Do(r.conn.Cleanup)
}
