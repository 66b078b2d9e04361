package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strings"
)

// ContentTypeJSON is the content type sent with every JSON body.
const ContentTypeJSON = "application/json"

// Request describes a single exchange with the API.
// It is immutable once built by NewRequest; accessors return copies.
type Request struct {
	method       string
	url          string
	query        url.Values
	body         Body
	authRequired bool
	headers      map[string]string
}

// RequestOption configures a Request under construction.
type RequestOption func(*Request)

// WithJSON sets a JSON-encoded body.
func WithJSON(v any) RequestOption {
	return func(r *Request) {
		r.body = JSONBody(v)
	}
}

// WithBody sets an already constructed body (JSON or multipart).
func WithBody(b Body) RequestOption {
	return func(r *Request) {
		r.body = b
	}
}

// WithAuth marks the request as requiring the bearer token.
func WithAuth() RequestOption {
	return func(r *Request) {
		r.authRequired = true
	}
}

// WithHeader adds an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[key] = value
	}
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		if r.query == nil {
			r.query = url.Values{}
		}
		r.query.Add(key, value)
	}
}

// NewRequest builds a request descriptor. Only GET, POST and PATCH are
// accepted; rawURL may be absolute or a path relative to the client's base URL.
func NewRequest(method, rawURL string, opts ...RequestOption) (Request, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPatch:
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	if rawURL == "" {
		return Request{}, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	r := Request{method: method, url: rawURL}
	for _, opt := range opts {
		opt(&r)
	}

	if method == http.MethodGet && r.body != nil {
		return Request{}, fmt.Errorf("GET request cannot carry a body")
	}

	return r, nil
}

// Method returns the HTTP method.
func (r Request) Method() string { return r.method }

// URL returns the URL or path as given to NewRequest.
func (r Request) URL() string { return r.url }

// Query returns a copy of the extra query parameters.
func (r Request) Query() url.Values {
	if r.query == nil {
		return nil
	}
	q := make(url.Values, len(r.query))
	for k, v := range r.query {
		q[k] = slices.Clone(v)
	}
	return q
}

// Body returns the request body, or nil.
func (r Request) Body() Body { return r.body }

// AuthRequired reports whether the bearer token is attached.
func (r Request) AuthRequired() bool { return r.authRequired }

// ExtraHeaders returns a copy of the caller supplied headers.
func (r Request) ExtraHeaders() map[string]string {
	return maps.Clone(r.headers)
}

// Body is a request payload. The package provides two encodings:
// JSONBody and Multipart.
type Body interface {
	// encode returns the payload and the content type to announce.
	encode() ([]byte, string, error)

	// IsMultipart reports whether the body is a binary form payload.
	IsMultipart() bool
}

type jsonBody struct {
	value any
}

// JSONBody wraps any JSON-serializable value.
func JSONBody(v any) Body {
	return jsonBody{value: v}
}

func (b jsonBody) encode() ([]byte, string, error) {
	data, err := json.Marshal(b.value)
	if err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return data, ContentTypeJSON, nil
}

func (b jsonBody) IsMultipart() bool { return false }

// FormFile is a file part of a multipart body.
type FormFile struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

type multipartBody struct {
	fields map[string]string
	files  []FormFile
}

// Multipart builds a multipart/form-data body from plain fields and files.
// Fields are written in sorted order so the encoding is deterministic.
func Multipart(fields map[string]string, files ...FormFile) Body {
	copied := make([]FormFile, len(files))
	for i, f := range files {
		f.Data = bytes.Clone(f.Data)
		copied[i] = f
	}
	return multipartBody{
		fields: maps.Clone(fields),
		files:  copied,
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (b multipartBody) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range slices.Sorted(maps.Keys(b.fields)) {
		if err := w.WriteField(name, b.fields[name]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for _, f := range b.files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(f.Data)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	// The writer owns the boundary, so the content type comes from it.
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (b multipartBody) IsMultipart() bool { return true }
