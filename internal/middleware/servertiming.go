package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTiming returns an Echo middleware that attaches a Server-Timing header
// collector to each request context. The backend client records its call
// duration into it, and the header is emitted with the response.
func ServerTiming() echo.MiddlewareFunc {
	return echo.WrapMiddleware(func(next http.Handler) http.Handler {
		return servertiming.Middleware(next, nil)
	})
}
