package server

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"SignalDesk/internal/agent/sentinel"
	mid "SignalDesk/internal/middleware"
	"SignalDesk/internal/service/pricefeed"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
)

// Components are the long-running parts of the app. Optional ones are nil
// when their backend is not configured.
type Components struct {
	HTTP      *xhttp.Server
	Lifecycle *usecase.LifecycleManager
	Refresher *sentinel.Refresher
	Throttle  *mid.TickThrottle
	Scanner   *usecase.Scanner
	Consumer  *pkgkafka.Consumer
	Ticks     *usecase.KafkaTicksHandler
	PriceFeed *pricefeed.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
}

// New creates a new App. Infrastructure clients are closed by the cleanup
// returned from dependency injection, after Run returns.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			a.l.Debug("component stopped", applogger.String("component", name))
		}()
	}

	if a.c.Throttle != nil {
		a.c.Throttle.Start(ctx)
	}
	if a.c.Refresher != nil {
		spawn("refresher", a.c.Refresher.Run)
	}
	if a.c.Lifecycle != nil {
		spawn("lifecycle", a.c.Lifecycle.Run)
	}
	if a.c.Scanner != nil {
		spawn("scanner", a.c.Scanner.Run)
	}
	if a.c.PriceFeed != nil {
		spawn("pricefeed", a.c.PriceFeed.Run)
		a.l.Info("price feed started", applogger.String("url", a.cfg.PriceFeed.URL))
	}
	if a.c.Consumer != nil && a.c.Ticks != nil {
		a.c.Consumer.RegisterHandler(a.c.Ticks)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer start failed", applogger.Error(err))
		} else {
			a.l.Info("kafka consumer started", applogger.String("topic", a.c.Ticks.Topic()))
		}
	}

	var runErr error
	errCh := a.c.HTTP.Start()
	a.l.Info("signaldesk started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("shadow_mode", a.cfg.Consensus.ShadowMode),
	)
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			a.l.Error("http server failed", applogger.Error(err))
			runErr = err
		}
		stop()
	}

	return errors.Join(runErr, a.shutdown(&wg))
}

// shutdown gracefully stops all services.
func (a *App) shutdown(wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Throttle != nil {
		a.c.Throttle.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.l.Warn("components did not stop before shutdown timeout")
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
