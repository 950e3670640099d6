package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/usecase"
)

const (
	ingressSecret = "ingress-secret"
	decisionKey   = "decision-key"
)

type stubAgent struct {
	name  string
	scale agent.Scale
	vote  models.AgentVote
}

func (a *stubAgent) Name() string              { return a.name }
func (a *stubAgent) Policy() agent.ErrorPolicy { return agent.PolicyReject }
func (a *stubAgent) Scale() agent.Scale        { return a.scale }

func (a *stubAgent) Analyze(context.Context, models.MarketSnapshot) (models.AgentVote, error) {
	return a.vote, nil
}

type downRepo struct {
	*repository.MemorySignalRepository
}

func (downRepo) Health(context.Context) error { return errors.New("connection refused") }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newPipeline(t *testing.T, withVoters bool) (*usecase.SignalPipeline, *bus.Bus) {
	t.Helper()
	b := bus.New(bus.WithRequestTimeout(time.Second))
	var voters []usecase.Voter
	if withVoters {
		tech := &stubAgent{name: "technical", scale: agent.Scale{Min: 0, Max: 100},
			vote: models.AgentVote{Decision: models.Approve, Score: 90}}
		sent := &stubAgent{name: "sentinel", scale: agent.Scale{Min: -50, Max: 50},
			vote: models.AgentVote{Decision: models.Approve, Score: 40}}
		agent.Serve(b, bus.ChannelTechAnalysis, tech, nil, nil)
		agent.Serve(b, bus.ChannelSentimentCheck, sent, nil, nil)
		voters = []usecase.Voter{
			usecase.VoterFor(tech, bus.ChannelTechAnalysis, 0.6, true),
			usecase.VoterFor(sent, bus.ChannelSentimentCheck, 0.4, true),
		}
	}
	orch := usecase.NewOrchestrator(b, voters, usecase.DefaultOrchestratorConfig(), nil, nil)
	sniper := usecase.NewSniperValidator(usecase.DefaultSniperConfig(), nil)
	p := usecase.NewSignalPipeline(orch, sniper, repository.NewMemorySignalRepository(),
		repository.NopEventPublisher{}, repository.NopDecisionJournal{}, usecase.DefaultPipelineConfig(), nil)
	return p, b
}

func serve(t *testing.T, h interface{ RegisterRoutes(*echo.Echo) }, method, path, header, secret, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(header, secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

