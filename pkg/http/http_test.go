package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type payload struct {
	SignalID string  `json:"signal_id" validate:"required"`
	Type     string  `json:"type" validate:"required,oneof=BUY SELL"`
	Price    float64 `json:"entry_price" validate:"required,gt=0"`
	Status   string  `json:"status" default:"WAITING"`
}

func bind(t *testing.T, body string) (*payload, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	p := &payload{}
	if verr := ReadAndValidateRequest(c, p); verr != nil {
		return p, verr.([]ValidationError)
	}
	return p, nil
}

func TestReadAndValidateRequest(t *testing.T) {
	p, errs := bind(t, `{"signal_id":"a","type":"BUY","entry_price":1.1}`)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if p.Status != "WAITING" {
		t.Fatalf("default not applied: %q", p.Status)
	}

	_, errs = bind(t, `{"type":"HOLD","entry_price":1.1}`)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if errs[0].Field != "signal_id" || errs[0].Code != "ERR_REQUIRED" {
		t.Fatalf("first error = %+v", errs[0])
	}
	if errs[1].Field != "type" || errs[1].Code != "ERR_ONEOF" {
		t.Fatalf("second error = %+v", errs[1])
	}
}

func TestDataResponseUsesStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := AppErrorResponse(c, NotFoundError("signal not found")); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Status != http.StatusNotFound || env.Message != "Not Found" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestAppErrorResponseUnknownError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = AppErrorResponse(c, errors.New("db down"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	for code, want := range map[int]bool{429: true, 500: true, 503: true, 400: false, 404: false} {
		if got := retryable(code); got != want {
			t.Fatalf("retryable(%d) = %v", code, got)
		}
	}
}
