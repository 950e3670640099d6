package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicators"
	applogger "SignalDesk/pkg/logger"
)

type PipelineConfig struct {
	SniperEnabled bool
	StopLossPips  float64
	TP1Pips       float64
	TP2Pips       float64
	Timeframe     string
	Version       string
	SignalTTL     time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SniperEnabled: true,
		StopLossPips:  20,
		TP1Pips:       20,
		TP2Pips:       40,
		Timeframe:     "H1",
		Version:       "signaldesk-1",
		SignalTTL:     3 * time.Hour,
	}
}

// SignalPipeline runs one snapshot through consensus and the sniper gate and
// turns an executable outcome into a persisted, published Signal.
type SignalPipeline struct {
	orch      *Orchestrator
	sniper    *SniperValidator
	repo      repository.SignalRepository
	publisher repository.EventPublisher
	journal   repository.DecisionJournal
	cfg       PipelineConfig
	l         *applogger.Logger
	now       func() time.Time
}

func NewSignalPipeline(
	orch *Orchestrator,
	sniper *SniperValidator,
	repo repository.SignalRepository,
	publisher repository.EventPublisher,
	journal repository.DecisionJournal,
	cfg PipelineConfig,
	l *applogger.Logger,
) *SignalPipeline {
	def := DefaultPipelineConfig()
	if cfg.StopLossPips <= 0 {
		cfg.StopLossPips = def.StopLossPips
	}
	if cfg.TP1Pips <= 0 {
		cfg.TP1Pips = def.TP1Pips
	}
	if cfg.TP2Pips <= 0 {
		cfg.TP2Pips = def.TP2Pips
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = def.SignalTTL
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalPipeline{
		orch:      orch,
		sniper:    sniper,
		repo:      repo,
		publisher: publisher,
		journal:   journal,
		cfg:       cfg,
		l:         l,
		now:       time.Now,
	}
}

// Orchestrator exposes the consensus engine for admin endpoints.
func (p *SignalPipeline) Orchestrator() *Orchestrator { return p.orch }

// Evaluate runs a full decision pass. Every outcome is journaled; only an
// executable one produces a Signal.
func (p *SignalPipeline) Evaluate(ctx context.Context, snap models.MarketSnapshot) (*models.PipelineResult, error) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = p.now()
	}
	cons, err := p.orch.Decide(ctx, snap)
	if err != nil {
		return nil, err
	}

	res := &models.PipelineResult{
		Symbol:     snap.Symbol,
		Action:     cons.Action,
		Confidence: cons.Confidence,
		Votes:      cons.Votes,
		Consensus:  cons,
	}
	reasoning := []string{cons.Reasoning}
	emit := cons.ShouldEmit

	if p.cfg.SniperEnabled && p.sniper != nil && cons.Decision == models.Approve {
		d := p.sniper.Validate(snap, cons)
		res.Sniper = &d
		reasoning = append(reasoning, d.Reasoning)
		res.Action = d.Action
		res.SniperRejected = !d.Safe
		emit = emit && d.Safe
	}
	if !emit {
		res.Action = models.Neutral
	}
	res.ShouldEmitSignal = emit
	res.IsGhostSignal = cons.Ghost
	res.Reasoning = strings.Join(reasoning, " | ")

	if emit {
		sig, err := p.emit(ctx, snap, res)
		if err != nil {
			return nil, err
		}
		res.Signal = sig
	}

	if p.journal != nil {
		if err := p.journal.Record(ctx, res); err != nil {
			p.l.Warn("journal decision failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		}
	}
	return res, nil
}

func (p *SignalPipeline) emit(ctx context.Context, snap models.MarketSnapshot, res *models.PipelineResult) (*models.Signal, error) {
	sig := p.buildSignal(snap, res)
	if err := p.repo.Upsert(ctx, sig); err != nil {
		return nil, fmt.Errorf("save signal: %w", err)
	}
	p.l.Info("signal emitted",
		applogger.String("signal_id", sig.ID),
		applogger.String("symbol", sig.Symbol),
		applogger.String("direction", string(sig.Direction)),
		applogger.Float64("entry", sig.EntryPrice),
		applogger.Int("confidence", sig.Confidence),
	)
	if p.publisher == nil || sig.Flag(models.MetaBroadcasted) {
		return sig, nil
	}
	if err := p.publisher.PublishSignal(ctx, sig); err != nil {
		p.l.Error("publish signal failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
		return sig, nil
	}
	marks := map[string]interface{}{
		models.MetaBroadcasted:   true,
		models.MetaBroadcastTime: p.now().UTC().Format(time.RFC3339),
	}
	if err := p.repo.MergeMetadata(ctx, sig.ID, marks); err != nil {
		p.l.Warn("mark broadcast failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
	}
	for k, v := range marks {
		sig.Metadata[k] = v
	}
	return sig, nil
}

func (p *SignalPipeline) buildSignal(snap models.MarketSnapshot, res *models.PipelineResult) *models.Signal {
	now := p.now()
	entry := snap.CurrentPrice
	pip := indicators.PipSize(snap.Symbol)
	sign := 1.0
	if snap.Direction == models.Short {
		sign = -1
	}
	expiry := now.Add(p.cfg.SignalTTL)
	tp1 := entry + sign*p.cfg.TP1Pips*pip
	tp2 := entry + sign*p.cfg.TP2Pips*pip
	return &models.Signal{
		ID:            uuid.NewString(),
		Symbol:        snap.Symbol,
		Pair:          models.PairFromSymbol(snap.Symbol),
		Direction:     snap.Direction,
		Timeframe:     p.cfg.Timeframe,
		EntryPrice:    entry,
		StopLoss:      entry - sign*p.cfg.StopLossPips*pip,
		TakeProfit:    tp1,
		TP1:           tp1,
		TP2:           tp2,
		Confidence:    res.Confidence,
		Sentiment:     models.SentimentFor(snap.Direction, res.Confidence),
		Version:       p.cfg.Version,
		Status:        models.StatusWaiting,
		CreatedAt:     now,
		LastCheckedAt: now,
		ExpiryTime:    &expiry,
		Metadata: map[string]interface{}{
			models.MetaTP1Price: tp1,
			models.MetaTP2Price: tp2,
		},
	}
}
