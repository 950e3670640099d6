package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/agent/sentinel"
	"SignalDesk/internal/agent/technical"
	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	mid "SignalDesk/internal/middleware"
	internalrepo "SignalDesk/internal/repository"
	icache "SignalDesk/internal/service/cache"
	"SignalDesk/internal/service/calendar"
	"SignalDesk/internal/service/news"
	"SignalDesk/internal/service/pricefeed"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
	pkgcache "SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	pkgpg "SignalDesk/pkg/postgres"
	"SignalDesk/pkg/server"
)

const startupTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvidePostgresClient connects and migrates Postgres. It returns nil when
// no DSN is configured.
func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*pkgpg.Client, func(), error) {
	if cfg.Postgres.DSN == "" {
		l.Warn("postgres not configured, signals are kept in memory")
		return nil, func() {}, nil
	}
	client, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	if cfg.Postgres.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		if err := client.Migrate(ctx, pkgpg.Schema()); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideClickHouseClient connects to ClickHouse and creates the schema. It
// returns nil when no host is configured.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.ClickHouse.Host == "" {
		l.Warn("clickhouse not configured, decision journal and scanner disabled")
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideKafkaProducer creates a Kafka producer and, when enabled, routes
// aggregated warn/error logs through it. It returns nil without brokers.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		l.Warn("kafka not configured, signals and events are not published")
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideKafkaConsumer creates the ticks consumer. It returns nil without
// brokers.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l.With("kafka-consumer")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.OnFailure(func(topic string, _ []byte, _ error) {
		m.RecordError("kafka_" + topic)
	})
	return consumer, nil
}

// ProvideCache connects to Redis, falling back to an in-process cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (pkgcache.Service, func(), error) {
	if cfg.Redis.Addr == "" {
		mc := pkgcache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return rc, cleanup, nil
}

// ProvideSignalRepository uses Postgres when configured, memory otherwise.
func ProvideSignalRepository(pg *pkgpg.Client) repository.SignalRepository {
	if pg == nil {
		return internalrepo.NewMemorySignalRepository()
	}
	return internalrepo.NewPostgresSignalRepository(pg)
}

func ProvideWeightStore(pg *pkgpg.Client) repository.WeightStore {
	if pg == nil {
		return internalrepo.StaticWeightStore{}
	}
	return internalrepo.NewPostgresWeightStore(pg)
}

func ProvideDecisionJournal(ch *pkgch.Client) repository.DecisionJournal {
	if ch == nil {
		return internalrepo.NopDecisionJournal{}
	}
	return internalrepo.NewCHDecisionJournal(ch)
}

// ProvideCandleStore returns nil without ClickHouse.
func ProvideCandleStore(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHCandleStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch, l.With("candles"))
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.Events)
}

func ProvidePriceBook(cfg *config.Config, shared pkgcache.Service) *icache.PriceBook {
	return icache.NewPriceBook(cfg.Lifecycle.PriceTTL, shared)
}

func ProvideBus(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *bus.Bus {
	return bus.New(
		bus.WithRequestTimeout(cfg.Bus.RequestTimeout),
		bus.WithLogCapacity(cfg.Bus.LogCapacity),
		bus.WithMetrics(m),
		bus.WithLogger(l.With("bus")),
	)
}

// ProvideTechnicalAgent builds the technical agent and loads dynamic weights once.
func ProvideTechnicalAgent(cfg *config.Config, store repository.WeightStore, l *applogger.Logger) *technical.Agent {
	a := technical.New(technical.Config{
		RSIPeriod:        cfg.Technical.RSIPeriod,
		FastEMA:          cfg.Technical.FastEMA,
		SlowEMA:          cfg.Technical.SlowEMA,
		VolumeWindow:     cfg.Technical.VolumeWindow,
		ApproveThreshold: cfg.Technical.ApproveThreshold,
		Weights: technical.Weights{
			RSIThreshold:     cfg.Technical.RSIThreshold,
			WickRatioMax:     cfg.Technical.WickRatioMax,
			VolumeMultiplier: cfg.Technical.VolumeMultiplier,
		},
	}, technical.WithWeightStore(store), technical.WithLogger(l.With(technical.Name)))

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	a.LoadWeights(ctx)
	return a
}

func ProvideSentinelAgent(cfg *config.Config, newsCache *sentinel.NewsCache, cal *sentinel.Calendar) *sentinel.Agent {
	def := sentinel.DefaultConfig()
	return sentinel.New(sentinel.Config{
		VetoWindow:       cfg.Sentinel.VetoWindow,
		NewsScanSize:     cfg.Sentinel.NewsScanSize,
		VolatilityWindow: cfg.Sentinel.VolatilityWindow,
		RejectBelow:      cfg.Sentinel.RejectBelow,
		CriticalPenalty:  def.CriticalPenalty,
		KeywordStep:      def.KeywordStep,
	}, newsCache, cal)
}

// ProvideNewsSource creates the Alpha Vantage news feed.
func ProvideNewsSource(cfg *config.Config) service.NewsSource {
	client := xhttp.NewClient(
		xhttp.WithTimeout(15*time.Second),
		xhttp.WithRateLimit(1, 1),
		xhttp.WithRetryWindow(time.Minute),
	)
	return news.NewAlphaVantageSource(news.Config{
		URL:     cfg.Sentinel.News.URL,
		APIKey:  cfg.Sentinel.News.APIKey,
		Tickers: cfg.Sentinel.News.Tickers,
		Limit:   cfg.Sentinel.News.Limit,
	}, client)
}

// ProvideCalendarSource returns nil when no calendar file is configured.
func ProvideCalendarSource(cfg *config.Config) service.CalendarSource {
	if cfg.Sentinel.CalendarFile == "" {
		return nil
	}
	return calendar.NewFileSource(cfg.Sentinel.CalendarFile)
}

func ProvideRefresher(
	cfg *config.Config,
	src service.NewsSource,
	cal service.CalendarSource,
	newsCache *sentinel.NewsCache,
	calCache *sentinel.Calendar,
	l *applogger.Logger,
) *sentinel.Refresher {
	return sentinel.NewRefresher(src, cal, newsCache, calCache,
		cfg.Sentinel.NewsRefresh, cfg.Sentinel.CalendarRefresh, l.With("sentinel-refresher"))
}

// ProvideOrchestrator serves each configured agent on its bus channel and
// seats it as a voter.
func ProvideOrchestrator(
	cfg *config.Config,
	b *bus.Bus,
	tech *technical.Agent,
	sent *sentinel.Agent,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.Orchestrator, error) {
	seats := map[string]struct {
		agent   agent.Agent
		channel string
	}{
		technical.Name: {tech, bus.ChannelTechAnalysis},
		sentinel.Name:  {sent, bus.ChannelSentimentCheck},
	}
	voters := make([]usecase.Voter, 0, len(cfg.Consensus.Voters))
	served := make(map[string]bool)
	for _, v := range cfg.Consensus.Voters {
		seat, ok := seats[v.Agent]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", v.Agent)
		}
		if !served[v.Agent] {
			agent.Serve(b, seat.channel, seat.agent, m, l.With(v.Agent))
			served[v.Agent] = true
		}
		voters = append(voters, usecase.VoterFor(seat.agent, seat.channel, v.Weight, v.Veto))
	}
	return usecase.NewOrchestrator(b, voters, usecase.OrchestratorConfig{
		ShadowMode:      cfg.Consensus.ShadowMode,
		ShadowThreshold: cfg.Consensus.ShadowThreshold,
		Floor:           cfg.Consensus.Floor,
		VoteTimeout:     cfg.Consensus.VoteTimeout,
	}, m, l.With("orchestrator")), nil
}

func ProvideSniper(cfg *config.Config, m repository.Metrics) *usecase.SniperValidator {
	def := usecase.DefaultSniperConfig()
	return usecase.NewSniperValidator(usecase.SniperConfig{
		MinConfidence: cfg.Sniper.MinConfidence,
		EMAPeriod:     cfg.Sniper.EMAPeriod,
		RSIPeriod:     cfg.Sniper.RSIPeriod,
		RSIOverbought: def.RSIOverbought,
		RSIOversold:   def.RSIOversold,
	}, m)
}

func ProvideSignalPipeline(
	cfg *config.Config,
	orch *usecase.Orchestrator,
	sniper *usecase.SniperValidator,
	repo repository.SignalRepository,
	pub repository.EventPublisher,
	journal repository.DecisionJournal,
	l *applogger.Logger,
) *usecase.SignalPipeline {
	return usecase.NewSignalPipeline(orch, sniper, repo, pub, journal, usecase.PipelineConfig{
		SniperEnabled: cfg.Sniper.Enabled,
		StopLossPips:  cfg.Lifecycle.StopLossPips,
		TP1Pips:       cfg.Lifecycle.TP1Pips,
		TP2Pips:       cfg.Lifecycle.TP2Pips,
		Timeframe:     cfg.Lifecycle.Timeframe,
		Version:       cfg.Lifecycle.Version,
		SignalTTL:     cfg.Lifecycle.TTL,
	}, l.With("pipeline"))
}

func ProvideLifecycleManager(
	cfg *config.Config,
	repo repository.SignalRepository,
	pub repository.EventPublisher,
	book *icache.PriceBook,
	locker pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.LifecycleManager {
	return usecase.NewLifecycleManager(repo, pub, book, usecase.LifecycleConfig{
		TTL:        cfg.Lifecycle.TTL,
		DriftPips:  cfg.Lifecycle.DriftPips,
		TTLEvery:   cfg.Lifecycle.TTLSweep,
		DriftEvery: cfg.Lifecycle.DriftSweep,
	}, l.With("lifecycle"),
		usecase.WithLocker(locker),
		usecase.WithLifecycleMetrics(m),
	)
}

func ProvideSignalIngest(repo repository.SignalRepository, lc *usecase.LifecycleManager, l *applogger.Logger) *usecase.SignalIngest {
	return usecase.NewSignalIngest(repo, lc, l.With("ingest"))
}

func ProvidePriceMonitor(
	book *icache.PriceBook,
	repo repository.SignalRepository,
	lc *usecase.LifecycleManager,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PriceMonitor {
	return usecase.NewPriceMonitor(book, repo, lc, m, l.With("price-monitor"))
}

// ProvideTickThrottle puts rate limiting and retry in front of the price monitor.
func ProvideTickThrottle(cfg *config.Config, monitor *usecase.PriceMonitor, m repository.Metrics) *mid.TickThrottle {
	return mid.NewTickThrottle(monitor, m,
		mid.WithMaxRPS(cfg.PriceFeed.MaxRPS),
		mid.WithBufferSize(cfg.PriceFeed.BufferSize),
	)
}

func ProvideKafkaTicksHandler(cfg *config.Config, throttle *mid.TickThrottle, m repository.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topics.Ticks, throttle, m)
}

// ProvidePriceFeed returns nil unless the websocket feed is enabled.
func ProvidePriceFeed(cfg *config.Config, throttle *mid.TickThrottle, l *applogger.Logger) *pricefeed.Client {
	if !cfg.PriceFeed.Enabled {
		return nil
	}
	return pricefeed.New(pricefeed.Config{
		URL:            cfg.PriceFeed.URL,
		APIKey:         cfg.PriceFeed.APIKey,
		Symbols:        cfg.PriceFeed.Symbols,
		ReconnectDelay: cfg.PriceFeed.ReconnectDelay,
		PingInterval:   cfg.PriceFeed.PingInterval,
	}, throttle, l.With("pricefeed"))
}

// ProvideScanner returns nil unless enabled with a candle store.
func ProvideScanner(
	cfg *config.Config,
	candles *internalrepo.CHCandleStore,
	pipeline *usecase.SignalPipeline,
	l *applogger.Logger,
) *usecase.Scanner {
	if !cfg.Scanner.Enabled {
		return nil
	}
	if candles == nil {
		l.Warn("scanner enabled without clickhouse, not starting")
		return nil
	}
	return usecase.NewScanner(candles, pipeline, usecase.ScannerConfig{
		Symbols:   cfg.Scanner.Symbols,
		Interval:  cfg.Scanner.Interval,
		Window:    cfg.Scanner.Window,
		MinWindow: cfg.Scanner.MinWindow,
		Timeframe: repository.NormalizeTimeframe(cfg.Scanner.Timeframe),
	}, l.With("scanner"))
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Auth.DecisionRPS, cfg.Auth.DecisionBurst)
}

func ProvideIngressHandler(cfg *config.Config, ingest *usecase.SignalIngest, repo repository.SignalRepository, l *applogger.Logger) *api.IngressHandler {
	return api.NewIngressHandler(ingest, repo, cfg.Auth.IngressSecret, l.With("ingress"))
}

func ProvideDecisionHandler(
	cfg *config.Config,
	pipeline *usecase.SignalPipeline,
	b *bus.Bus,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *api.DecisionHandler {
	return api.NewDecisionHandler(pipeline, b, limiter, cfg.Auth.DecisionAPIKey, l.With("decision"))
}

func ProvideHTTPServer(cfg *config.Config, ingress *api.IngressHandler, decision *api.DecisionHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l.With("http"), []xhttp.Handler{ingress, decision},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	lc *usecase.LifecycleManager,
	refresher *sentinel.Refresher,
	throttle *mid.TickThrottle,
	scanner *usecase.Scanner,
	consumer *pkgkafka.Consumer,
	ticks *usecase.KafkaTicksHandler,
	feed *pricefeed.Client,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTP:      httpServer,
		Lifecycle: lc,
		Refresher: refresher,
		Throttle:  throttle,
		Scanner:   scanner,
		Consumer:  consumer,
		Ticks:     ticks,
		PriceFeed: feed,
	})
}
