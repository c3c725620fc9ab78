package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"bff-proxy-go/internal/client"
	"bff-proxy-go/internal/config"
	"bff-proxy-go/internal/metrics"
	"bff-proxy-go/internal/service"
)

func newRoutedEcho(t *testing.T, cfg *config.Config, m *metrics.Metrics) *echo.Echo {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewProxyService(client.NewBackendClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	RegisterRoutes(e, cfg, NewProxyHandler(svc, cfg, logger), NewHealthHandler(cfg, "test"), m)
	return e
}

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	e := newRoutedEcho(t, testConfig(upstream.URL), nil)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /api/websites/", http.MethodGet, "/api/websites/", http.StatusOK},
		{"GET /api/websites/3", http.MethodGet, "/api/websites/3", http.StatusOK},
		{"POST /api/websites/", http.MethodPost, "/api/websites/", http.StatusOK},
		{"PUT /api/websites/3", http.MethodPut, "/api/websites/3", http.StatusOK},
		{"DELETE /api/websites/3", http.MethodDelete, "/api/websites/3", http.StatusOK},
		{"PATCH /api/websites/3 is not routed", http.MethodPatch, "/api/websites/3", http.StatusMethodNotAllowed},
		{"GET /unknown", http.MethodGet, "/unknown", http.StatusNotFound},
		{"GET /metrics disabled", http.MethodGet, "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MethodSubset(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Proxy.Methods = []string{"GET"}
	e := newRoutedEcho(t, cfg, nil)

	tests := []struct {
		method     string
		wantStatus int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/items/1", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_CustomPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Proxy.Prefix = "/bff"
	e := newRoutedEcho(t, cfg, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bff/users/me", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotPath != "/users/me/" {
		t.Errorf("backend path = %q, want %q", gotPath, "/users/me/")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("old prefix status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRegisterRoutes_MetricsEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	m := metrics.New(cfg.Proxy.Prefix, cfg.Metrics.Path)
	e := newRoutedEcho(t, cfg, m)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("proxy status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "bff_proxy_upstream_responses_total") {
		t.Error("metrics output should include bff_proxy_upstream_responses_total")
	}
}
