package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	servertiming "github.com/mitchellh/go-server-timing"
)

func TestServerTiming_EmitsHeader(t *testing.T) {
	e := echo.New()
	e.Use(ServerTiming())
	e.GET("/api/*", func(c echo.Context) error {
		timing := servertiming.FromContext(c.Request().Context())
		if timing == nil {
			t.Error("expected a Server-Timing header collector in the request context")
			return c.String(http.StatusOK, "ok")
		}
		m := timing.NewMetric("backend").Start()
		time.Sleep(time.Millisecond)
		m.Stop()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if h := rec.Header().Get("Server-Timing"); !strings.Contains(h, "backend") {
		t.Errorf("%s = %q, want a backend metric", "Server-Timing", h)
	}
}

func TestServerTiming_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/api/*", func(c echo.Context) error {
		if servertiming.FromContext(c.Request().Context()) != nil {
			t.Error("no collector expected without the middleware")
		}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if h := rec.Header().Get("Server-Timing"); h != "" {
		t.Errorf("%s = %q, want empty", "Server-Timing", h)
	}
}
