package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"
)

// IngressSecretHeader carries the shared secret of signal producers.
const IngressSecretHeader = "X-Auth-Token"

const healthTimeout = 3 * time.Second

// IngressHandler accepts signals and status updates from external producers.
type IngressHandler struct {
	ingest *usecase.SignalIngest
	repo   domrepo.SignalRepository
	secret string
	l      *applogger.Logger
}

func NewIngressHandler(ingest *usecase.SignalIngest, repo domrepo.SignalRepository, secret string, l *applogger.Logger) *IngressHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &IngressHandler{ingest: ingest, repo: repo, secret: secret, l: l}
}

func (h *IngressHandler) RegisterRoutes(e *echo.Echo) {
	auth := middleware.SharedSecret(IngressSecretHeader, h.secret)
	e.POST("/signals", h.Create, auth)
	e.PATCH("/signals/status", h.UpdateStatus, auth)
	e.GET("/health", h.Health, auth)
}

// Create upserts a signal from the wire schema.
func (h *IngressHandler) Create(c echo.Context) error {
	req := &models.SignalPayload{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.ingest.Ingest(c.Request().Context(), *req)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidPayload) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.l.Error("ingest signal failed", applogger.String("signal_id", req.SignalID), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.CreatedResponse(c, sig)
}

// UpdateStatus applies a status change through the lifecycle manager.
func (h *IngressHandler) UpdateStatus(c echo.Context) error {
	req := &models.StatusUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	upd, err := h.ingest.UpdateStatus(c.Request().Context(), req.SignalID, models.Status(req.Status), req.CurrentPrice)
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, upd)
	case errors.Is(err, domrepo.ErrSignalNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal %s not found", req.SignalID))
	case errors.Is(err, usecase.ErrIllegalTransition):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	default:
		h.l.Error("status update failed", applogger.String("signal_id", req.SignalID), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

type healthStatus struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports liveness plus signal store connectivity.
func (h *IngressHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	res := healthStatus{Status: "healthy", Store: "connected", Timestamp: time.Now().UTC()}
	if err := h.repo.Health(ctx); err != nil {
		h.l.Warn("health check failed", applogger.Error(err))
		res.Status, res.Store = "unhealthy", "disconnected"
		return xhttp.UnavailableResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

var _ xhttp.Handler = (*IngressHandler)(nil)
