package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"
)

// DecisionKeyHeader carries the shared secret of decision consumers. It must
// differ from the ingress secret.
const DecisionKeyHeader = "X-Client-Key"

// DecisionHandler serves on-demand decisions and orchestrator admin.
type DecisionHandler struct {
	pipeline *usecase.SignalPipeline
	bus      *bus.Bus
	limiter  *ratelimit.Limiter
	key      string
	l        *applogger.Logger
}

func NewDecisionHandler(pipeline *usecase.SignalPipeline, b *bus.Bus, limiter *ratelimit.Limiter, key string, l *applogger.Logger) *DecisionHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &DecisionHandler{pipeline: pipeline, bus: b, limiter: limiter, key: key, l: l}
}

func (h *DecisionHandler) RegisterRoutes(e *echo.Echo) {
	auth := middleware.SharedSecret(DecisionKeyHeader, h.key)
	e.POST("/get-signal", h.GetSignal, auth, h.throttle)
	e.GET("/stats", h.Stats, auth)
	e.POST("/admin/shadow-mode", h.ShadowMode, auth)
}

func (h *DecisionHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			h.l.Warn("decision request throttled", applogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

// GetSignal runs one full pipeline pass over the posted market data.
func (h *DecisionHandler) GetSignal(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.pipeline.Evaluate(c.Request().Context(), req.Snapshot())
	if err != nil {
		if errors.Is(err, usecase.ErrNoVoters) {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("no agents configured"))
		}
		h.l.Error("decision failed", applogger.String("symbol", req.Symbol), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, res)
}

type statsResponse struct {
	Orchestrator usecase.OrchestratorStats `json:"orchestrator"`
	Bus          bus.Stats                 `json:"bus"`
}

func (h *DecisionHandler) Stats(c echo.Context) error {
	res := statsResponse{Orchestrator: h.pipeline.Orchestrator().Stats()}
	if h.bus != nil {
		res.Bus = h.bus.Stats()
	}
	return xhttp.SuccessResponse(c, res)
}

// ShadowMode toggles the shadow gate and returns the resulting stats.
func (h *DecisionHandler) ShadowMode(c echo.Context) error {
	req := &models.ShadowModeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	orch := h.pipeline.Orchestrator()
	if req.Enabled {
		orch.EnableShadowMode()
	} else {
		orch.DisableShadowMode()
	}
	h.l.Warn("shadow mode changed",
		applogger.Bool("enabled", orch.ShadowMode()),
		applogger.Int("threshold", orch.Threshold()),
		applogger.String("remote", c.RealIP()),
	)
	return xhttp.SuccessResponse(c, orch.Stats())
}

var _ xhttp.Handler = (*DecisionHandler)(nil)
