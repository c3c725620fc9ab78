// Package model defines shared types for the proxy.
package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents a browser request to be forwarded to the backend.
type ProxyRequest struct {
	Ctx context.Context
	// Route is the verb the proxy route was registered for.
	Route string
	// Method is the inbound request's own method.
	Method string
	// Path is the wildcard segment after the proxy prefix, still percent-encoded.
	Path          string
	Query         url.Values
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	// Token is the access token read from the session cookie, empty when absent.
	Token string
}

// ProxyResponse represents the backend response after decoding.
type ProxyResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// OK reports whether the backend answered with a 2xx status.
func (r *ProxyResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// UpstreamError is a non-2xx backend answer, relayed to the caller as {"error": StatusText}.
type UpstreamError struct {
	StatusCode int
	StatusText string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend responded %d %s", e.StatusCode, e.StatusText)
}
