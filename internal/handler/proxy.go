package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"bff-proxy-go/internal/config"
	"bff-proxy-go/internal/model"
	"bff-proxy-go/internal/service"
)

// ProxyHandler forwards browser API requests to the backend.
type ProxyHandler struct {
	service    *service.ProxyService
	prefix     string
	cookieName string
	logger     *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:    svc,
		prefix:     cfg.Proxy.Prefix,
		cookieName: cfg.Proxy.CookieName,
		logger:     logger.With("component", "proxy_handler"),
	}
}

// Handle returns the handler for a proxy route registered under the given verb.
//
// A 2xx backend answer is relayed as JSON with status 200. A non-2xx answer
// becomes {"error": "<status text>"} with the backend's status. Any other
// failure is returned to Echo's error handler untouched.
func (h *ProxyHandler) Handle(route string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		pr := &model.ProxyRequest{
			Ctx:           req.Context(),
			Route:         route,
			Method:        req.Method,
			Path:          h.wildcardPath(c),
			Query:         req.URL.Query(),
			Header:        req.Header,
			Body:          req.Body,
			ContentLength: req.ContentLength,
			Token:         h.accessToken(c),
		}

		result, err := h.service.Forward(pr)
		if err != nil {
			var upErr *model.UpstreamError
			if errors.As(err, &upErr) {
				h.logger.Debug("backend error status",
					"status", upErr.StatusCode,
					"path", req.URL.Path,
				)
				return c.JSON(upErr.StatusCode, map[string]string{
					"error": upErr.StatusText,
				})
			}
			return err
		}

		return c.JSON(http.StatusOK, result)
	}
}

// wildcardPath returns the path after the proxy prefix, still percent-encoded,
// so escapes such as %25 and %2F reach the backend as sent.
func (h *ProxyHandler) wildcardPath(c echo.Context) string {
	if rest, ok := strings.CutPrefix(c.Request().URL.EscapedPath(), h.prefix+"/"); ok {
		return rest
	}
	return c.Param("*")
}

// accessToken returns the session cookie value, or "" when the cookie is absent.
func (h *ProxyHandler) accessToken(c echo.Context) string {
	cookie, err := c.Cookie(h.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
