package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "SignalDesk/pkg/logger"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	return e
}

func serve(e *echo.Echo, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSharedSecret(t *testing.T) {
	e := newEcho(SharedSecret("X-Auth-Token", "s3cret"))
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"prefix", "s3c", http.StatusUnauthorized},
		{"match", "s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := map[string]string{}
			if tc.header != "" {
				h["X-Auth-Token"] = tc.header
			}
			if rec := serve(e, "/ok", h); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSharedSecretEmptyRejectsAll(t *testing.T) {
	e := newEcho(SharedSecret("X-Auth-Token", ""))
	if rec := serve(e, "/ok", map[string]string{"X-Auth-Token": ""}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	e := newEcho(Recover(applogger.NewNop()), RequestLogging(applogger.NewNop()))
	if rec := serve(e, "/boom", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsPassThrough(t *testing.T) {
	e := newEcho(Metrics(prometheus.NewRegistry()))
	if rec := serve(e, "/ok", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := serve(e, "/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	e := newEcho(CORS(CORSConfig{AllowOrigins: []string{"https://desk.example"}, AllowMethods: []string{"GET"}}))
	rec := serve(e, "/ok", map[string]string{"Origin": "https://desk.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example" {
		t.Fatalf("allow origin = %q", got)
	}
	rec = serve(e, "/ok", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
