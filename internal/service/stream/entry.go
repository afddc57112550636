package stream

import (
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/wsconn"
	"MarketPulse/pkg/logger"
)

// entry is one instrument key: its subscribers, latest value and update source.
type entry struct {
	svc      *Service
	key      string
	symbol   string
	category models.Category
	box      *mailbox

	mu       sync.Mutex
	provider models.ProviderID
	subs     map[uint64]Callback
	nextID   uint64
	last     *models.MarketData
	strat    strategy
	stopped  bool
}

func newEntry(s *Service, key, symbol string, category models.Category) *entry {
	return &entry{
		svc:      s,
		key:      key,
		symbol:   symbol,
		category: category,
		box:      newMailbox(),
		subs:     make(map[uint64]Callback),
	}
}

// add registers cb. A late joiner gets the latest value queued ahead of newer updates.
func (e *entry) add(cb Callback, replay bool) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs[id] = cb
	if replay && e.last != nil {
		md := e.last.Clone()
		e.box.push(func() { e.call(cb, md) })
	}
	return id
}

// remove reports whether the entry has no subscribers left.
func (e *entry) remove(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, id)
	return len(e.subs) == 0
}

// begin selects the strategy once and starts it with the dispatcher.
func (e *entry) begin() {
	go e.box.run()

	s := e.svc
	id, ep, live := s.plan(e.symbol, e.category)

	var st strategy
	if live {
		st = &realtimeStrategy{conn: s.newConn(wsconn.Config{
			URL:                  ep.URL,
			SubscribeMessage:     ep.Subscribe,
			HeartbeatMessage:     ep.Heartbeat,
			HeartbeatInterval:    s.cfg.HeartbeatInterval,
			ConnectTimeout:       s.cfg.ConnectTimeout,
			ReconnectBaseDelay:   s.cfg.ReconnectBaseDelay,
			MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
		}, Handlers{
			OnMessage: e.onMessage,
			OnError:   e.onTerminal,
			OnReconnect: func(int, time.Duration) {
				s.metrics.RecordReconnect(e.key)
			},
		})}
	} else {
		st = newSimulated(s.simulationInterval(e.symbol), e.tick)
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.provider = id
	e.strat = st
	e.mu.Unlock()

	st.start()
}

// end stops the strategy and the dispatcher. Safe to call more than once.
func (e *entry) end() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	st := e.strat
	e.mu.Unlock()

	if st != nil {
		st.stop()
	}
	e.box.close()
}

func (e *entry) currentMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strat == nil {
		return ModeSimulated
	}
	return e.strat.mode()
}

func (e *entry) info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	mode := ModeSimulated
	if e.strat != nil {
		mode = e.strat.mode()
	}
	return Info{Key: e.key, Provider: e.provider, Mode: mode, Subscribers: len(e.subs)}
}

// tick advances the simulated value.
func (e *entry) tick() {
	e.mu.Lock()
	prev := e.last
	e.mu.Unlock()

	var next models.MarketData
	if prev != nil {
		next = e.svc.sim.Update(*prev)
		// history keeps the same spacing as live updates
		if last, ok := prev.LastPoint(); ok && e.svc.now().Sub(last.Timestamp) < HistoryInterval {
			next.PriceHistory = prev.Clone().PriceHistory
		}
	} else {
		next = e.svc.sim.Generate(e.symbol, e.category, 0)
	}
	next.IsRealTime = false
	e.publish(next, string(models.ProviderMock))
}

// onMessage maps a provider frame onto the latest value.
func (e *entry) onMessage(msg wsconn.Message) {
	e.mu.Lock()
	id := e.provider
	prev := e.last
	e.mu.Unlock()

	mapper, ok := MapperFor(id)
	if !ok {
		return
	}
	d, ok := mapper(msg.JSON)
	if !ok {
		return
	}
	if prev == nil {
		e.svc.log.Debug("tick dropped, no base snapshot", logger.String("key", e.key))
		return
	}
	e.publish(Apply(*prev, d, e.svc.now()), string(id))
}

// onTerminal downgrades a dead real-time entry to simulation.
func (e *entry) onTerminal(err error) {
	e.mu.Lock()
	if e.stopped || e.strat == nil || e.strat.mode() != ModeRealtime {
		e.mu.Unlock()
		return
	}
	old := e.strat
	sim := newSimulated(e.svc.simulationInterval(e.symbol), e.tick)
	e.strat = sim
	e.provider = models.ProviderMock
	e.mu.Unlock()

	e.svc.metrics.RecordError("stream_downgrade")
	e.svc.log.Warn("stream downgraded to simulation",
		logger.String("key", e.key),
		logger.Bool("exhausted", errors.Is(err, wsconn.ErrReconnectExhausted)),
		logger.Error(err),
	)
	go old.stop()
	sim.start()
}

// publish records md as the latest value and queues it for the current subscribers.
func (e *entry) publish(md models.MarketData, source string) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	stored := md.Clone()
	e.last = &stored
	subs := make([]Callback, 0, len(e.subs))
	for _, cb := range e.subs {
		subs = append(subs, cb)
	}
	e.mu.Unlock()

	e.svc.metrics.RecordStreamMessage(source)
	e.box.push(func() {
		for _, cb := range subs {
			e.call(cb, md.Clone())
		}
	})
}

func (e *entry) call(cb Callback, md models.MarketData) {
	defer func() {
		if r := recover(); r != nil {
			e.svc.log.Error("subscriber panicked", logger.String("key", e.key), logger.Any("panic", r))
		}
	}()
	cb(md)
}

// mailbox runs queued tasks one at a time in FIFO order.
type mailbox struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (b *mailbox) push(fn func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.tasks = append(b.tasks, fn)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox) run() {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		tasks := b.tasks
		b.tasks = nil
		b.mu.Unlock()

		for _, fn := range tasks {
			select {
			case <-b.done:
				return
			default:
			}
			fn()
		}
		if len(tasks) > 0 {
			continue
		}

		select {
		case <-b.wake:
		case <-b.done:
			return
		}
	}
}

func (b *mailbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.tasks = nil
		close(b.done)
	}
}
