package di

import (
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/marketcache"
	"MarketPulse/internal/service/provider"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/registry"
	"MarketPulse/internal/service/requestclient"
	"MarketPulse/internal/service/simulator"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"
)

// ProvideLogger creates the root logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when metrics are disabled.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

// ProvideCacheStore builds the key/value tier under the market data cache.
// With Redis configured, a memory L1 sits in front of it.
func ProvideCacheStore(cfg *config.Config, log *logger.Logger) (cache.Service, error) {
	if cfg.Cache.Durable != "redis" {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
		cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	log.Info("redis cache connected",
		logger.String("host", cfg.Cache.Redis.Host),
		logger.Int("port", cfg.Cache.Redis.Port))
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredFillTTL(cfg.Cache.DefaultTTL),
	), nil
}

// ProvideMarketCache creates the market data cache.
func ProvideMarketCache(store cache.Service, cfg *config.Config, log *logger.Logger, m repository.Metrics) *marketcache.Cache {
	ttl := make(map[models.Category]time.Duration, len(cfg.Cache.TTL))
	for k, v := range cfg.Cache.TTL {
		ttl[models.NormalizeCategory(k)] = v
	}
	return marketcache.New(store, marketcache.Config{
		Prefix:        cfg.Cache.Prefix,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		TTL:           ttl,
		Grace:         cfg.Cache.Grace,
		SweepInterval: cfg.Cache.SweepInterval,
	}, marketcache.WithLogger(log), marketcache.WithMetrics(m))
}

// ProvideRegistry creates the provider chain registry.
func ProvideRegistry(cfg *config.Config) *registry.Registry {
	return registry.FromConfig(cfg.Providers.Chains, cfg.Providers.Instruments)
}

// ProvideSimulator creates the shared price simulator.
func ProvideSimulator(log *logger.Logger) *simulator.Simulator {
	return simulator.New(simulator.WithLogger(log))
}

// ProvideProviders builds every REST provider plus MOCK.
func ProvideProviders(cfg *config.Config, sim *simulator.Simulator) []repository.Provider {
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Request.Timeout))
	dev := cfg.IsDevelopment()
	endpoint := func(p config.Provider) provider.Endpoint {
		return provider.Endpoint{BaseURL: p.BaseURL, ProxyURL: p.ProxyURL, APIKey: p.APIKey, UseProxy: dev}
	}
	set := provider.NewSet(client, provider.Endpoints{
		Binance:    endpoint(cfg.Providers.Binance),
		CoinGecko:  endpoint(cfg.Providers.CoinGecko),
		Finnhub:    endpoint(cfg.Providers.Finnhub),
		TwelveData: endpoint(cfg.Providers.TwelveData),
	}, provider.NewMock(sim))

	out := make([]repository.Provider, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out
}

// ProvideRequestClient creates the retrying, failing-over quote client.
func ProvideRequestClient(
	reg *registry.Registry,
	providers []repository.Provider,
	sim *simulator.Simulator,
	cfg *config.Config,
	log *logger.Logger,
	m repository.Metrics,
) *requestclient.Client {
	return requestclient.New(reg, providers, sim, requestclient.Config{
		Timeout:        cfg.Request.Timeout,
		MaxRetries:     cfg.Request.MaxRetries,
		InitialBackoff: cfg.Request.InitialBackoff,
		MaxBackoff:     cfg.Request.MaxBackoff,
	}, requestclient.WithLogger(log), requestclient.WithMetrics(m))
}

// ProvideStreamService creates the subscription multiplexer.
func ProvideStreamService(
	cfg *config.Config,
	sim *simulator.Simulator,
	reg *registry.Registry,
	log *logger.Logger,
	m repository.Metrics,
) *stream.Service {
	s := cfg.Streaming
	return stream.New(stream.Config{
		ForceSimulation:       s.ForceSimulation,
		SimulationInterval:    s.SimulationInterval,
		FastTickInterval:      s.FastTickInterval,
		FastTickPrefixes:      s.FastTickPrefixes,
		NoWebSocketPrefixes:   s.NoWebSocketPrefixes,
		NoWebSocketCategories: s.NoWebSocketCategories,
		HeartbeatInterval:     s.HeartbeatInterval,
		ConnectTimeout:        s.ConnectTimeout,
		ReconnectBaseDelay:    s.ReconnectBaseDelay,
		MaxReconnectAttempts:  s.MaxReconnectAttempts,
	}, sim, reg, stream.Endpoints{
		BinanceURL:    cfg.Providers.Binance.WebSocketURL,
		TwelveDataURL: cfg.Providers.TwelveData.WebSocketURL,
		TwelveDataKey: cfg.Providers.TwelveData.APIKey,
		FinnhubURL:    cfg.Providers.Finnhub.WebSocketURL,
		FinnhubKey:    cfg.Providers.Finnhub.APIKey,
	}, stream.WithLogger(log), stream.WithMetrics(m))
}

// ProvideOrchestrator creates the market data use case.
func ProvideOrchestrator(
	cfg *config.Config,
	quotes *requestclient.Client,
	mc *marketcache.Cache,
	sim *simulator.Simulator,
	streams *stream.Service,
	log *logger.Logger,
	m repository.Metrics,
) *usecase.Orchestrator {
	simOnly := make([]models.Category, 0, len(cfg.Market.SimulationOnlyCategories))
	for _, c := range cfg.Market.SimulationOnlyCategories {
		simOnly = append(simOnly, models.NormalizeCategory(c))
	}
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		ForceMock:      cfg.Market.ForceMock,
		SimulationOnly: simOnly,
		BatchSize:      cfg.Market.BatchSize,
		BatchPause:     cfg.Market.BatchPause,
	}, quotes, mc, sim, streams,
		usecase.WithOrchestratorLogger(log),
		usecase.WithOrchestratorMetrics(m),
	)
}

// ProvideClickHouseClient connects to ClickHouse when it is the recorder backend, nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Recorder.Backend != usecase.BackendClickHouse {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideTickStorage creates the ClickHouse tick archive. The schema is applied by the recorder on start.
func ProvideTickStorage(client *pkgch.Client, cfg *config.Config) repository.Storage {
	if client == nil {
		return nil
	}
	db, table := cfg.ClickHouse.Database, cfg.ClickHouse.Table
	return internalrepo.NewClickHouseTickStorage(client.DB(), db+"."+table, pkgch.TickSchema(db, table))
}

// ProvideTickPublisher creates the Kafka tick publisher when Kafka is the recorder backend, nil otherwise.
func ProvideTickPublisher(cfg *config.Config) (repository.Publisher, error) {
	if cfg.Recorder.Backend != usecase.BackendKafka {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatchSize(k.Producer.BatchSize),
		pkgkafka.WithBatchBytes(k.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaTickPublisher(producer, k.Topic), nil
}

// ProvideTickRecorder creates the watchlist recorder.
func ProvideTickRecorder(
	cfg *config.Config,
	orch *usecase.Orchestrator,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TickRecorder {
	watch := make([]usecase.WatchItem, len(cfg.Recorder.Watchlist))
	for i, w := range cfg.Recorder.Watchlist {
		watch[i] = usecase.WatchItem{Symbol: w.Symbol, Category: w.Category}
	}
	return usecase.NewTickRecorder(orch, pub, store, m, log, usecase.TickRecorderConfig{
		Backend:       cfg.Recorder.Backend,
		Watchlist:     watch,
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		Buffer:        cfg.Recorder.Buffer,
	})
}

// ProvideMarketHandler creates the HTTP handler.
func ProvideMarketHandler(cfg *config.Config, log *logger.Logger, orch *usecase.Orchestrator, streams *stream.Service) *api.MarketEchoHandler {
	rule := func(r config.RateRule) ratelimit.Rule {
		return ratelimit.Rule{Capacity: r.Capacity, RefillPerSec: r.RefillPerSec}
	}
	rl := cfg.Server.RateLimit
	return api.NewMarketEchoHandler(log, orch, streams, api.WithRateLimit(ratelimit.New(), api.RateLimits{
		Snapshot: rule(rl.Snapshot),
		Batch:    rule(rl.Batch),
		Stream:   rule(rl.Stream),
	}))
}

// ProvideHTTPServer creates the Echo server with every handler registered.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.MarketEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, nil),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	recorder *usecase.TickRecorder,
	streams *stream.Service,
	mc *marketcache.Cache,
	store cache.Service,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, httpServer, recorder, streams, mc, store, chClient)
}
