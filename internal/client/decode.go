package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedEncoding is returned for a Content-Encoding the proxy cannot decode.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// decodedBody reads from the decoder and closes both the decoder and the
// underlying response body.
type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// decodeBody unwraps Content-Encoding the transport left in place. The
// transport only decompresses gzip transparently when it chose the
// Accept-Encoding itself; GET and DELETE forward the browser's header, so the
// backend may answer with any encoding the browser advertised.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return resp.Body, nil
	}
	// Error answers are reported from the status line and never read, and a
	// bodiless answer (204, HEAD) carries nothing to decode.
	if !isSuccess(resp.StatusCode) || resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		return resp.Body, nil
	}

	var (
		r      io.Reader
		closer io.Closer
	)
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		r, closer = zr, zr
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		r, closer = zr, zr
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		r, closer = rc, rc
	case "br":
		r = brotli.NewReader(resp.Body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1

	closers := []io.Closer{resp.Body}
	if closer != nil {
		closers = append([]io.Closer{closer}, closers...)
	}
	return &decodedBody{Reader: r, closers: closers}, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code <= 299
}
