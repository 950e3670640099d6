package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SignalDesk/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
		// Collector flushes aggregated warn/error logs to kafka.topics.logs.
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Auth struct {
		IngressSecret  string  `yaml:"ingress_secret"`
		DecisionAPIKey string  `yaml:"decision_api_key"`
		DecisionRPS    float64 `yaml:"decision_rps" default:"5"`
		DecisionBurst  int     `yaml:"decision_burst" default:"10"`
	} `yaml:"auth"`
	Bus struct {
		RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`
		LogCapacity    int           `yaml:"log_capacity" default:"100"`
	} `yaml:"bus"`
	Technical struct {
		RSIPeriod        int     `yaml:"rsi_period" default:"14"`
		FastEMA          int     `yaml:"fast_ema" default:"12"`
		SlowEMA          int     `yaml:"slow_ema" default:"26"`
		VolumeWindow     int     `yaml:"volume_window" default:"20"`
		ApproveThreshold int     `yaml:"approve_threshold" default:"60"`
		RSIThreshold     float64 `yaml:"rsi_threshold" default:"70"`
		WickRatioMax     float64 `yaml:"wick_ratio_max" default:"1.0"`
		VolumeMultiplier float64 `yaml:"volume_multiplier" default:"1.2"`
	} `yaml:"technical"`
	Sentinel struct {
		VetoWindow       time.Duration `yaml:"veto_window" default:"2h"`
		NewsScanSize     int           `yaml:"news_scan_size" default:"10"`
		VolatilityWindow int           `yaml:"volatility_window" default:"20"`
		RejectBelow      int           `yaml:"reject_below" default:"-30"`
		NewsRefresh      time.Duration `yaml:"news_refresh" default:"15m"`
		CalendarRefresh  time.Duration `yaml:"calendar_refresh" default:"1h"`
		News             struct {
			URL     string `yaml:"url" default:"https://www.alphavantage.co/query"`
			APIKey  string `yaml:"api_key"`
			Tickers string `yaml:"tickers" default:"FOREX:EUR"`
			Limit   int    `yaml:"limit" default:"20"`
		} `yaml:"news"`
		CalendarFile string `yaml:"calendar_file"`
	} `yaml:"sentinel"`
	Consensus struct {
		ShadowMode      bool          `yaml:"shadow_mode" default:"true"`
		ShadowThreshold int           `yaml:"shadow_threshold" default:"85"`
		Floor           int           `yaml:"floor" default:"60"`
		VoteTimeout     time.Duration `yaml:"vote_timeout" default:"5s"`
		Voters          []Voter       `yaml:"voters"`
	} `yaml:"consensus"`
	Sniper struct {
		Enabled       bool `yaml:"enabled" default:"true"`
		MinConfidence int  `yaml:"min_confidence" default:"95"`
		EMAPeriod     int  `yaml:"ema_period" default:"20"`
		RSIPeriod     int  `yaml:"rsi_period" default:"14"`
	} `yaml:"sniper"`
	Lifecycle struct {
		TTL          time.Duration `yaml:"ttl" default:"3h"`
		TTLSweep     time.Duration `yaml:"ttl_sweep" default:"5m"`
		DriftSweep   time.Duration `yaml:"drift_sweep" default:"60s"`
		DriftPips    float64       `yaml:"drift_pips" default:"10"`
		StopLossPips float64       `yaml:"sl_pips" default:"20"`
		TP1Pips      float64       `yaml:"tp1_pips" default:"20"`
		TP2Pips      float64       `yaml:"tp2_pips" default:"40"`
		Timeframe    string        `yaml:"timeframe" default:"H1"`
		Version      string        `yaml:"version" default:"signaldesk-1"`
		PriceTTL     time.Duration `yaml:"price_ttl" default:"5m"`
	} `yaml:"lifecycle"`
	Scanner struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval" default:"1m"`
		Symbols   []string      `yaml:"symbols"`
		Window    int           `yaml:"window" default:"100"`
		MinWindow int           `yaml:"min_window" default:"30"`
		Timeframe string        `yaml:"timeframe" default:"5m"`
	} `yaml:"scanner"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		Migrate         bool          `yaml:"migrate" default:"true"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signaldesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Signals string `yaml:"signals" default:"signals"`
			Events  string `yaml:"events" default:"signal-events"`
			Ticks   string `yaml:"ticks" default:"ticks"`
			Logs    string `yaml:"logs" default:"signaldesk-logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts int           `yaml:"max_attempts" default:"5"`
			Linger      time.Duration `yaml:"linger" default:"10ms"`
			BatchSize   int           `yaml:"batch_size" default:"100"`
			Async       bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signaldesk"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"signaldesk"`
	} `yaml:"redis"`
	PriceFeed struct {
		Enabled        bool              `yaml:"enabled"`
		URL            string            `yaml:"url"`
		APIKey         string            `yaml:"api_key"`
		Symbols        map[string]string `yaml:"symbols"`
		ReconnectDelay time.Duration     `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration     `yaml:"ping_interval" default:"30s"`
		MaxRPS         int               `yaml:"max_rps" default:"50"`
		BufferSize     int               `yaml:"buffer_size" default:"2000"`
	} `yaml:"price_feed"`
}

// Voter configures one agent's seat in consensus.
type Voter struct {
	Agent  string  `yaml:"agent"`
	Weight float64 `yaml:"weight"`
	Veto   bool    `yaml:"veto"`
}

// DefaultVoters is the seating used when consensus.voters is empty.
func DefaultVoters() []Voter {
	return []Voter{
		{Agent: "technical", Weight: 0.6, Veto: true},
		{Agent: "sentinel", Weight: 0.4, Veto: true},
	}
}

// Parse decodes YAML over the defaults and validates.
func Parse(b []byte) (*Config, error) {
	return parse(b, nil)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads .env if present, then config from YAML overridden by
// environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, os.Getenv)
}

func parse(b []byte, getenv func(string) string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Consensus.Voters) == 0 {
		c.Consensus.Voters = DefaultVoters()
	}
	if getenv != nil {
		if err := c.applyEnv(getenv); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"ENVIRONMENT":      &c.Environment,
		"INGRESS_SECRET":   &c.Auth.IngressSecret,
		"DECISION_API_KEY": &c.Auth.DecisionAPIKey,
		"POSTGRES_DSN":     &c.Postgres.DSN,
		"REDIS_ADDR":       &c.Redis.Addr,
		"CLICKHOUSE_HOST":  &c.ClickHouse.Host,
		"NEWS_API_KEY":     &c.Sentinel.News.APIKey,
	}
	for name, dst := range str {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	if v := getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	c.Redis.DB = util.ParseIntDefault(getenv("REDIS_DB"), c.Redis.DB)
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Scanner.Symbols = util.SplitList(v)
	}
	if v := getenv("SHADOW_MODE"); v != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SHADOW_MODE: %w", err)
		}
		c.Consensus.ShadowMode = on
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	if c.Auth.IngressSecret == "" {
		return errors.New("auth.ingress_secret is required")
	}
	if c.Auth.DecisionAPIKey == "" {
		return errors.New("auth.decision_api_key is required")
	}
	if c.Auth.IngressSecret == c.Auth.DecisionAPIKey {
		return errors.New("auth.ingress_secret and auth.decision_api_key must differ")
	}
	durations := map[string]time.Duration{
		"lifecycle.ttl":         c.Lifecycle.TTL,
		"lifecycle.ttl_sweep":   c.Lifecycle.TTLSweep,
		"lifecycle.drift_sweep": c.Lifecycle.DriftSweep,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Consensus.ShadowThreshold < c.Consensus.Floor {
		return fmt.Errorf("consensus.shadow_threshold %d is below floor %d", c.Consensus.ShadowThreshold, c.Consensus.Floor)
	}
	for _, v := range c.Consensus.Voters {
		if v.Agent != "technical" && v.Agent != "sentinel" {
			return fmt.Errorf("consensus.voters: unknown agent %q", v.Agent)
		}
		if v.Weight < 0 {
			return fmt.Errorf("consensus.voters: negative weight for %s", v.Agent)
		}
	}
	if c.Scanner.Enabled && len(c.Scanner.Symbols) == 0 {
		return errors.New("scanner.symbols cannot be empty when the scanner is enabled")
	}
	if c.PriceFeed.Enabled && c.PriceFeed.URL == "" {
		return errors.New("price_feed.url is required when the price feed is enabled")
	}
	return nil
}
