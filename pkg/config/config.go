package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Logger      struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       struct {
			Snapshot RateRule `yaml:"snapshot"`
			Batch    RateRule `yaml:"batch"`
			Stream   RateRule `yaml:"stream"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market    Market    `yaml:"market"`
	Request   Request   `yaml:"request"`
	Providers Providers `yaml:"providers"`
	Cache     Cache     `yaml:"cache"`
	Streaming Streaming `yaml:"streaming"`
	Recorder  Recorder  `yaml:"recorder"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"market.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketpulse"`
		Table            string        `yaml:"table" default:"market_ticks"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Market holds orchestrator behaviour switches.
type Market struct {
	ForceMock                bool          `yaml:"force_mock"`
	SimulationOnlyCategories []string      `yaml:"simulation_only_categories" default:"[\"synthetic\",\"derivatives\",\"baskets\",\"stocks\"]"`
	BatchSize                int           `yaml:"batch_size" default:"5" validate:"gt=0"`
	BatchPause               time.Duration `yaml:"batch_pause" default:"250ms"`
}

// Request configures the retrying provider client.
type Request struct {
	Timeout        time.Duration `yaml:"timeout" default:"12s"`
	MaxRetries     int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	InitialBackoff time.Duration `yaml:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `yaml:"max_backoff" default:"8s"`
}

// Provider is the endpoint set of one upstream.
type Provider struct {
	BaseURL      string `yaml:"base_url"`
	ProxyURL     string `yaml:"proxy_url"`
	WebSocketURL string `yaml:"websocket_url"`
	APIKey       string `yaml:"api_key"`
}

type Providers struct {
	Binance    Provider `yaml:"binance"`
	CoinGecko  Provider `yaml:"coingecko"`
	Finnhub    Provider `yaml:"finnhub"`
	TwelveData Provider `yaml:"twelvedata"`
	// Chains maps a category to its ordered provider ids. MOCK is appended when missing.
	Chains map[string][]string `yaml:"chains"`
	// Instruments overrides the chain for individual symbols.
	Instruments map[string][]string `yaml:"instruments"`
}

type Cache struct {
	Durable       string                   `yaml:"durable" default:"memory" validate:"oneof=memory redis"`
	Prefix        string                   `yaml:"prefix" default:"market_data_"`
	DefaultTTL    time.Duration            `yaml:"default_ttl" default:"1m"`
	TTL           map[string]time.Duration `yaml:"ttl"`
	Grace         time.Duration            `yaml:"grace" default:"168h"`
	SweepInterval time.Duration            `yaml:"sweep_interval" default:"24h"`
	MemoryMaxSize int                      `yaml:"memory_max_size" default:"1000"`
	Redis         struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"marketpulse"`
	} `yaml:"redis"`
}

type Streaming struct {
	ForceSimulation       bool          `yaml:"force_simulation"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval" default:"30s"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout" default:"10s"`
	ReconnectBaseDelay    time.Duration `yaml:"reconnect_base_delay" default:"1s"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts" default:"10"`
	SimulationInterval    time.Duration `yaml:"simulation_interval" default:"2500ms"`
	FastTickInterval      time.Duration `yaml:"fast_tick_interval" default:"1s"`
	FastTickPrefixes      []string      `yaml:"fast_tick_prefixes" default:"[\"1HZ\"]"`
	NoWebSocketPrefixes   []string      `yaml:"no_websocket_prefixes" default:"[\"R_\",\"1HZ\",\"BOOM\",\"CRASH\",\"STPRNG\",\"WLD\",\"FRX\"]"`
	NoWebSocketCategories []string      `yaml:"no_websocket_categories" default:"[\"synthetic\",\"baskets\",\"derivatives\"]"`
}

// Recorder configures the tick recorder. Backend none disables it.
type Recorder struct {
	Backend       string          `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
	Watchlist     []WatchlistItem `yaml:"watchlist" validate:"dive"`
	BatchSize     int             `yaml:"batch_size" default:"50" validate:"gt=0"`
	FlushInterval time.Duration   `yaml:"flush_interval" default:"1s"`
	Buffer        int             `yaml:"buffer" default:"1024" validate:"gt=0"`
}

// RateRule is a per-client token bucket. Capacity 0 disables it.
type RateRule struct {
	Capacity     float64 `yaml:"capacity" validate:"gte=0"`
	RefillPerSec float64 `yaml:"refill_per_sec" validate:"gte=0"`
}

type WatchlistItem struct {
	Symbol   string `yaml:"symbol" validate:"required"`
	Category string `yaml:"category" validate:"required"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML on top and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Providers.Finnhub.APIKey = v
	}
	if v := getenv("TWELVEDATA_API_KEY"); v != "" {
		c.Providers.TwelveData.APIKey = v
	}
	if v, err := strconv.ParseBool(getenv("FORCE_MOCK")); err == nil {
		c.Market.ForceMock = v
	}
	if v, err := strconv.ParseBool(getenv("FORCE_SIMULATION")); err == nil {
		c.Streaming.ForceSimulation = v
	}
	if v := getenv("RECORDER_BACKEND"); v != "" {
		c.Recorder.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Host = host
		if p, err := strconv.Atoi(port); ok && err == nil {
			c.Cache.Redis.Port = p
		}
		c.Cache.Durable = "redis"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Recorder.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when recorder.backend is kafka")
	}
	if c.Request.MaxBackoff < c.Request.InitialBackoff {
		return fmt.Errorf("request.max_backoff (%s) must be >= request.initial_backoff (%s)",
			c.Request.MaxBackoff, c.Request.InitialBackoff)
	}
	for cat, ttl := range c.Cache.TTL {
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl.%s must be positive", cat)
		}
	}
	return nil
}

// IsDevelopment reports whether provider requests may be routed through proxy URLs.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}
