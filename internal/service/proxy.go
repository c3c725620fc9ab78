// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"bff-proxy-go/internal/client"
	"bff-proxy-go/internal/config"
	"bff-proxy-go/internal/model"
)

// ErrMalformedResponse is returned when the backend answers 2xx with a body that is not JSON.
var ErrMalformedResponse = errors.New("backend returned malformed JSON")

// emptyObject is relayed when a DELETE or a 204 answer carries no body.
var emptyObject = json.RawMessage(`{}`)

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client  *client.BackendClient
	cfg     *config.Config
	logger  *slog.Logger
	baseURL string
}

// NewProxyService creates a ProxyService. The backend URL is checked again
// here so a misconfigured service fails at construction, never per request.
func NewProxyService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend base_url %q is not an absolute URL", cfg.Backend.BaseURL)
	}

	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		baseURL: cfg.Backend.BaseURL,
	}, nil
}

// Forward sends a ProxyRequest to the backend and returns the JSON document to
// relay with status 200.
//
// A non-2xx backend answer is returned as *model.UpstreamError. Transport
// failures and a malformed success body are returned as plain wrapped errors.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (json.RawMessage, error) {
	target := s.TargetURL(pr.Path, pr.Query)
	method := outboundMethod(pr)
	header := s.buildHeaders(pr)

	body, err := s.encodeBody(pr, header)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", method,
		"path", NormalizePath(pr.Path),
		"body", body.kind,
		"authenticated", pr.Token != "",
	)

	resp, err := s.client.DoStream(pr.Ctx, method, target, header, body.reader, body.contentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return nil, &model.UpstreamError{
			StatusCode: resp.StatusCode,
			StatusText: resp.StatusText,
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if pr.Route == http.MethodDelete || resp.StatusCode == http.StatusNoContent {
			return emptyObject, nil
		}
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedResponse
	}

	return raw, nil
}

// NormalizePath appends a trailing slash to the wildcard segment unless one is
// already present. Backend routing relies on directory-style paths, so
// resource IDs are forwarded as "items/5/" too.
func NormalizePath(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// TargetURL concatenates the backend base URL and the normalized path. The
// path is expected percent-encoded and is not escaped again.
// The query string is only carried over when proxy.forward_query is set.
func (s *ProxyService) TargetURL(path string, query url.Values) string {
	target := s.baseURL + "/" + NormalizePath(path)
	if s.cfg.Proxy.ForwardQuery && len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// outboundMethod resolves the verb sent to the backend. DELETE routes relay
// the inbound request's own method rather than the route's verb; callers may
// depend on that, so it is kept as is.
func outboundMethod(pr *model.ProxyRequest) string {
	if pr.Route == http.MethodDelete {
		return pr.Method
	}
	return pr.Route
}

// buildHeaders returns the outbound header collection for the route.
//
// GET and DELETE reuse the inbound headers. POST and PUT start from an empty
// collection carrying only Accept, so the Content-Type can be chosen for the
// re-encoded body. Authorization is set whenever a token is present.
func (s *ProxyService) buildHeaders(pr *model.ProxyRequest) http.Header {
	var header http.Header
	switch pr.Route {
	case http.MethodPost, http.MethodPut:
		header = make(http.Header)
		if accept := pr.Header.Get("Accept"); accept != "" {
			header.Set("Accept", accept)
		}
	default:
		header = pr.Header.Clone()
		if header == nil {
			header = make(http.Header)
		}
	}

	if pr.Token != "" {
		header.Set("Authorization", "Bearer "+pr.Token)
	}
	return header
}
