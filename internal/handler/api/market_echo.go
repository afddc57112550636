package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/stream"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// MarketService is what the HTTP surface needs from the orchestrator.
type MarketService interface {
	GetMarketData(ctx context.Context, symbol, category string, baseValue float64) models.MarketData
	GetMarketDataBatch(ctx context.Context, reqs []models.Request) map[string]*models.MarketData
	Subscribe(ctx context.Context, symbol, category string, cb stream.Callback) (models.MarketData, func())
}

// StreamStats reports live subscription entries.
type StreamStats interface {
	Streams() []stream.Info
}

const (
	wsSendBuffer   = 32
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// RateLimits are the per-client token buckets of each route. Zero rules disable limiting.
type RateLimits struct {
	Snapshot ratelimit.Rule
	Batch    ratelimit.Rule
	Stream   ratelimit.Rule
}

type HandlerOption func(*MarketEchoHandler)

// WithRateLimit limits requests per client IP.
func WithRateLimit(l *ratelimit.Limiter, limits RateLimits) HandlerOption {
	return func(h *MarketEchoHandler) {
		h.rl = l
		h.limits = limits
	}
}

// MarketEchoHandler serves snapshots, batches and the live update socket.
type MarketEchoHandler struct {
	logger   *xlogger.Logger
	market   MarketService
	stats    StreamStats
	upgrader websocket.Upgrader
	rl       *ratelimit.Limiter
	limits   RateLimits
}

func NewMarketEchoHandler(logger *xlogger.Logger, market MarketService, stats StreamStats, opts ...HandlerOption) *MarketEchoHandler {
	h := &MarketEchoHandler{
		logger: logger.Component("api"),
		market: market,
		stats:  stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// allow consumes one token of route for the caller.
func (h *MarketEchoHandler) allow(c echo.Context, route string, rule ratelimit.Rule) bool {
	if h.rl == nil || h.rl.Allow(c.RealIP()+":"+route, rule) {
		return true
	}
	h.logger.Warn("rate limited", xlogger.String("route", route), xlogger.String("remote", c.RealIP()))
	return false
}

func rateLimited(c echo.Context) error {
	return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsErrorf("rate limited"))
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/market/:category/:symbol", h.Snapshot)
	g.POST("/market/batch", h.Batch)
	g.GET("/stream", h.Stream)
	e.GET("/healthz", h.Health)
}

func (h *MarketEchoHandler) Snapshot(c echo.Context) error {
	if !h.allow(c, "snapshot", h.limits.Snapshot) {
		return rateLimited(c)
	}
	req := &models.SnapshotRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !models.NormalizeCategory(req.Category).IsKnown() {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown category %q", req.Category).
			WithParam("category", req.Category))
	}

	md := h.market.GetMarketData(c.Request().Context(), req.Symbol, req.Category, req.Base)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, md)
}

func (h *MarketEchoHandler) Batch(c echo.Context) error {
	if !h.allow(c, "batch", h.limits.Batch) {
		return rateLimited(c)
	}
	req := &models.BatchRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	reqs := make([]models.Request, len(req.Items))
	for i, it := range req.Items {
		reqs[i] = models.Request{Symbol: it.Symbol, Category: models.NormalizeCategory(it.Category)}
	}
	got := h.market.GetMarketDataBatch(c.Request().Context(), reqs)

	out := make([]xhttp.BatchResult, len(req.Items))
	for i, it := range req.Items {
		res := xhttp.BatchResult{Symbol: it.Symbol, Category: string(reqs[i].Category)}
		if md := got[models.Key(reqs[i].Category, it.Symbol)]; md != nil {
			res.Data = md
		} else {
			res.Error = "unavailable"
		}
		out[i] = res
	}
	return xhttp.SuccessResponse(c, out)
}

// Stream upgrades to a WebSocket that receives the current snapshot, then every update.
func (h *MarketEchoHandler) Stream(c echo.Context) error {
	if !h.allow(c, "stream", h.limits.Stream) {
		return rateLimited(c)
	}
	req := &models.StreamRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	send := make(chan models.MarketData, wsSendBuffer)
	var dropped atomic.Int64
	initial, unsubscribe := h.market.Subscribe(c.Request().Context(), req.Symbol, req.Category, func(md models.MarketData) {
		select {
		case send <- md:
		default:
			dropped.Add(1)
		}
	})
	defer unsubscribe()

	log := h.logger.With(xlogger.String("symbol", req.Symbol), xlogger.String("category", req.Category))
	log.Debug("stream client connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, initial); err != nil {
		return nil
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Debug("stream client disconnected", xlogger.Int64("dropped", dropped.Load()))
			return nil
		case md := <-send:
			if err := h.write(conn, md); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *MarketEchoHandler) write(conn *websocket.Conn, md models.MarketData) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(md)
}

type healthResponse struct {
	Status        string        `json:"status"`
	ActiveStreams int           `json:"activeStreams"`
	Streams       []stream.Info `json:"streams"`
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	streams := []stream.Info{}
	if h.stats != nil {
		streams = h.stats.Streams()
	}
	return xhttp.SuccessResponse(c, healthResponse{
		Status:        "ok",
		ActiveStreams: len(streams),
		Streams:       streams,
	})
}
