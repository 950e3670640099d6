package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicators"
	applogger "SignalDesk/pkg/logger"
)

type ScannerConfig struct {
	Symbols   []string
	Interval  time.Duration
	Window    int
	MinWindow int
	Timeframe domrepo.Timeframe
	Timeout   time.Duration
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Interval:  time.Minute,
		Window:    100,
		MinWindow: 30,
		Timeframe: domrepo.TF5m,
		Timeout:   10 * time.Second,
	}
}

// Scanner polls candles for each symbol and runs them through the pipeline.
type Scanner struct {
	candles  domrepo.CandleStore
	pipeline *SignalPipeline
	cfg      ScannerConfig
	l        *applogger.Logger
}

func NewScanner(candles domrepo.CandleStore, pipeline *SignalPipeline, cfg ScannerConfig, l *applogger.Logger) *Scanner {
	def := DefaultScannerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = def.MinWindow
	}
	if cfg.MinWindow > cfg.Window {
		cfg.MinWindow = cfg.Window
	}
	if !domrepo.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Scanner{candles: candles, pipeline: pipeline, cfg: cfg, l: l}
}

// ErrInsufficientCandles is returned by ScanOnce when the window is too short.
var ErrInsufficientCandles = errors.New("scanner: not enough candles")

// ScanOnce evaluates the latest candle window of symbol.
func (s *Scanner) ScanOnce(ctx context.Context, symbol string) (*models.PipelineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	candles, err := s.candles.LatestCandles(ctx, symbol, s.cfg.Window, s.cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", symbol, err)
	}
	if len(candles) < s.cfg.MinWindow {
		return nil, fmt.Errorf("%w: %s has %d of %d", ErrInsufficientCandles, symbol, len(candles), s.cfg.MinWindow)
	}
	snap := models.SnapshotFromCandles(symbol, candles, trendDirection(candles))
	return s.pipeline.Evaluate(ctx, snap)
}

// trendDirection proposes LONG when the last close sits on or above EMA20.
func trendDirection(candles []models.Candle) models.Direction {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	if closes[len(closes)-1] >= indicators.EMA(closes, 20) {
		return models.Long
	}
	return models.Short
}

// Run starts one polling loop per symbol and blocks until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sym := range s.cfg.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			s.loop(ctx, sym)
		}(sym)
	}
	s.l.Info("scanner started",
		applogger.Strings("symbols", s.cfg.Symbols),
		applogger.Duration("interval", s.cfg.Interval),
		applogger.String("timeframe", string(s.cfg.Timeframe)),
	)
	wg.Wait()
}

func (s *Scanner) logScanError(symbol string, err error) {
	switch {
	case errors.Is(err, ErrInsufficientCandles):
		s.l.Debug("scan skipped", applogger.String("symbol", symbol), applogger.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		s.l.Warn("scan failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
}

func (s *Scanner) loop(ctx context.Context, symbol string) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := s.ScanOnce(ctx, symbol)
			if err != nil {
				s.logScanError(symbol, err)
				continue
			}
			if res.ShouldEmitSignal {
				s.l.Info("scan emitted signal",
					applogger.String("symbol", symbol),
					applogger.String("action", string(res.Action)),
					applogger.Int("confidence", res.Confidence),
				)
			}
		}
	}
}
