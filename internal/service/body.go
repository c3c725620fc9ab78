package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"

	"bff-proxy-go/internal/model"
)

var (
	// ErrInvalidJSONBody is returned when a JSON request body cannot be parsed.
	ErrInvalidJSONBody = errors.New("request body is not valid JSON")
	// ErrInvalidMultipartBody is returned when a multipart request body cannot be parsed.
	ErrInvalidMultipartBody = errors.New("request body is not a valid multipart form")
)

// Body encodings, as reported in debug logs.
const (
	bodyNone      = "none"
	bodyJSON      = "json"
	bodyMultipart = "multipart"
	bodyRaw       = "raw"
)

type outboundBody struct {
	kind          string
	reader        io.Reader
	contentLength int64
}

// encodeBody prepares the outbound body for the route and sets the matching
// Content-Type on header. Only POST and PUT carry a body.
func (s *ProxyService) encodeBody(pr *model.ProxyRequest, header http.Header) (*outboundBody, error) {
	if pr.Route != http.MethodPost && pr.Route != http.MethodPut {
		return &outboundBody{kind: bodyNone}, nil
	}

	contentType := pr.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		return encodeJSON(pr.Body, header)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		return encodeMultipart(pr.Body, contentType, s.cfg.Proxy.MultipartMaxMemory, header)
	default:
		return rawBody(pr), nil
	}
}

// encodeJSON parses the body and re-serializes it compactly.
func encodeJSON(body io.Reader, header http.Header) (*outboundBody, error) {
	if body == nil {
		body = http.NoBody
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONBody, err)
	}

	header.Set("Content-Type", "application/json")
	return &outboundBody{
		kind:          bodyJSON,
		reader:        &buf,
		contentLength: int64(buf.Len()),
	}, nil
}

// encodeMultipart parses the inbound form and streams it back out under a
// freshly generated boundary. The inbound Content-Type is never reused, as its
// boundary does not describe the re-encoded body.
func encodeMultipart(body io.Reader, contentType string, maxMemory int64, header http.Header) (*outboundBody, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMultipartBody, err)
	}
	boundary := params["boundary"]
	if boundary == "" || body == nil {
		return nil, fmt.Errorf("%w: missing boundary", ErrInvalidMultipartBody)
	}

	form, err := multipart.NewReader(body, boundary).ReadForm(maxMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMultipartBody, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	header.Set("Content-Type", mw.FormDataContentType())

	// The transport closes the pipe reader on failure, which unblocks this writer.
	go func() {
		defer func() { _ = form.RemoveAll() }()
		pw.CloseWithError(writeForm(mw, form))
	}()

	return &outboundBody{kind: bodyMultipart, reader: pr}, nil
}

// writeForm writes values then files, each in key order, and closes the writer.
// ReadForm groups parts by field name, so the inbound order across names is
// not recoverable; repeated values of one name keep their inbound order.
func writeForm(mw *multipart.Writer, form *multipart.Form) error {
	for _, key := range slices.Sorted(maps.Keys(form.Value)) {
		for _, v := range form.Value[key] {
			if err := mw.WriteField(key, v); err != nil {
				return fmt.Errorf("write form field %q: %w", key, err)
			}
		}
	}

	for _, key := range slices.Sorted(maps.Keys(form.File)) {
		for _, fh := range form.File[key] {
			if err := writeFile(mw, key, fh); err != nil {
				return err
			}
		}
	}

	return mw.Close()
}

func writeFile(mw *multipart.Writer, key string, fh *multipart.FileHeader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition(key, fh.Filename))
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form file %q: %w", key, err)
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open form file %q: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy form file %q: %w", key, err)
	}
	return nil
}

// rawBody forwards the inbound stream untouched and without a Content-Type.
func rawBody(pr *model.ProxyRequest) *outboundBody {
	if pr.Body == nil || pr.Body == http.NoBody {
		return &outboundBody{kind: bodyRaw, reader: http.NoBody}
	}
	return &outboundBody{
		kind:          bodyRaw,
		reader:        pr.Body,
		contentLength: pr.ContentLength,
	}
}
