package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"bff-proxy-go/internal/client"
	"bff-proxy-go/internal/service"
)

// secretPatterns match credentials that may appear in wrapped error messages.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[^\s",;]+`),
	regexp.MustCompile(`(?i)((?:access_?token|token)=)[^;&\s"]+`),
}

// ErrorHandler returns the Echo error handler for failures the proxy handler
// does not translate itself: transport faults, malformed bodies and
// framework errors. Responses use Echo's {"message": ...} shape, not the
// {"error": ...} envelope used for backend error statuses.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := classifyError(err)
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"err", sanitizeError(err),
				"status", code,
				"path", c.Request().URL.Path,
			)
		} else {
			logger.Debug("request rejected",
				"err", sanitizeError(err),
				"status", code,
				"path", c.Request().URL.Path,
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, map[string]string{"message": message})
		}
		if writeErr != nil {
			logger.Error("writing error response", "err", writeErr)
		}
	}
}

// classifyError maps an unhandled error to a status code and a client-safe message.
func classifyError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && msg != "" {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	if errors.Is(err, service.ErrInvalidJSONBody) || errors.Is(err, service.ErrInvalidMultipartBody) {
		return http.StatusBadRequest, "invalid request body"
	}

	if errors.Is(err, service.ErrMalformedResponse) || errors.Is(err, client.ErrUnsupportedEncoding) {
		return http.StatusBadGateway, "upstream returned an unreadable response"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}

	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "client disconnected"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "upstream host unreachable"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "upstream connection failed"
	}

	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// sanitizeError redacts bearer tokens and token cookie values from error messages.
func sanitizeError(err error) string {
	s := err.Error()
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}
