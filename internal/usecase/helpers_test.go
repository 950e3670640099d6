package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/models"
)

type fixedAgent struct {
	name   string
	policy agent.ErrorPolicy
	scale  agent.Scale
	vote   models.AgentVote
	err    error
}

func (a *fixedAgent) Name() string              { return a.name }
func (a *fixedAgent) Policy() agent.ErrorPolicy { return a.policy }
func (a *fixedAgent) Scale() agent.Scale        { return a.scale }

func (a *fixedAgent) Analyze(context.Context, models.MarketSnapshot) (models.AgentVote, error) {
	return a.vote, a.err
}

func approving(name string, score int, scale agent.Scale, policy agent.ErrorPolicy) *fixedAgent {
	return &fixedAgent{
		name:   name,
		policy: policy,
		scale:  scale,
		vote:   models.AgentVote{Decision: models.Approve, Score: score},
	}
}

var (
	techScale     = agent.Scale{Min: 0, Max: 100}
	sentinelScale = agent.Scale{Min: -50, Max: 50}
)

// newTestOrchestrator serves tech and sent on the bus and wires an orchestrator
// with weights 0.6 and 0.4.
func newTestOrchestrator(t *testing.T, tech, sent agent.Agent, cfg OrchestratorConfig) (*Orchestrator, *bus.Bus) {
	t.Helper()
	b := bus.New()
	agent.Serve(b, bus.ChannelTechAnalysis, tech, nil, nil)
	agent.Serve(b, bus.ChannelSentimentCheck, sent, nil, nil)
	voters := []Voter{
		VoterFor(tech, bus.ChannelTechAnalysis, 0.6, true),
		VoterFor(sent, bus.ChannelSentimentCheck, 0.4, true),
	}
	return NewOrchestrator(b, voters, cfg, nil, nil), b
}

type memJournal struct {
	mu      sync.Mutex
	results []*models.PipelineResult
}

func (j *memJournal) Record(_ context.Context, r *models.PipelineResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

type memPublisher struct {
	mu      sync.Mutex
	signals []*models.Signal
	events  []models.Event
	fail    bool
}

func (p *memPublisher) PublishSignal(_ context.Context, s *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.signals = append(p.signals, s)
	return nil
}

func (p *memPublisher) PublishEvent(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type mapPrices map[string]float64

func (m mapPrices) LatestPrice(symbol string) (float64, bool) {
	p, ok := m[symbol]
	return p, ok
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func risingPrices(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
