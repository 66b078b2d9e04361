package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Response is the classified result of a completed HTTP exchange.
// It is immutable; HTTP-level failures are represented here, never as errors.
type Response struct {
	status     int
	body       json.RawMessage
	headers    http.Header
	receivedAt time.Time
}

// NewResponse wraps a completed exchange. A zero receivedAt defaults to now.
func NewResponse(status int, body []byte, headers http.Header, receivedAt time.Time) (*Response, error) {
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	var raw json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		raw = bytes.Clone(body)
	}

	return &Response{
		status:     status,
		body:       raw,
		headers:    headers.Clone(),
		receivedAt: receivedAt,
	}, nil
}

// Status returns the HTTP status code.
func (r *Response) Status() int {
	if r == nil {
		return 0
	}
	return r.status
}

// Body returns a copy of the raw JSON body, nil when the body was empty.
func (r *Response) Body() json.RawMessage {
	if r == nil {
		return nil
	}
	return bytes.Clone(r.body)
}

// Header returns the first value of a response header.
func (r *Response) Header(key string) string {
	if r == nil {
		return ""
	}
	return r.headers.Get(key)
}

// Headers returns a copy of all response headers.
func (r *Response) Headers() http.Header {
	if r == nil {
		return nil
	}
	return r.headers.Clone()
}

// ReceivedAt returns when the response was received.
func (r *Response) ReceivedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.receivedAt
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r != nil && r.status >= http.StatusOK && r.status <= 299
}

// IsBadRequest reports a 400 status.
func (r *Response) IsBadRequest() bool {
	return r != nil && r.status == http.StatusBadRequest
}

// IsUnauthorized reports a 401 status.
func (r *Response) IsUnauthorized() bool {
	return r != nil && r.status == http.StatusUnauthorized
}

// IsServerError reports a 5xx status.
func (r *Response) IsServerError() bool {
	return r != nil && r.status >= http.StatusInternalServerError
}

// Class maps the status onto the error taxonomy.
func (r *Response) Class() ErrorClass {
	switch {
	case r == nil:
		return ErrorClassNetwork
	case r.IsSuccess():
		return ErrorClassNone
	case r.IsBadRequest():
		return ErrorClassClient
	case r.IsUnauthorized():
		return ErrorClassAuth
	case r.IsServerError():
		return ErrorClassServer
	default:
		return ErrorClassOther
	}
}

// Decode unmarshals the whole body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.body) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// DecodeData unmarshals the "data" member of the success envelope into v.
func (r *Response) DecodeData(v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := r.Decode(&env); err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: no data member", ErrEmptyBody)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// ErrorCode returns the server's machine readable "errors" member.
func (r *Response) ErrorCode() string {
	var env struct {
		Errors json.RawMessage `json:"errors"`
	}
	if r.Decode(&env) != nil {
		return ""
	}
	var code string
	if json.Unmarshal(env.Errors, &code) != nil {
		return ""
	}
	return code
}

// Message returns the server supplied "message" member verbatim.
// Validation errors that arrive as an object of field -> messages are
// flattened as "field: msg; field: msg" with fields in sorted order.
func (r *Response) Message() string {
	var env struct {
		Message json.RawMessage `json:"message"`
	}
	if r.Decode(&env) != nil || len(env.Message) == 0 {
		return ""
	}
	return flattenMessage(env.Message)
}

func flattenMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if m := flattenMessage(item); m != "" {
				parts = append(parts, m)
			}
		}
		return strings.Join(parts, " ")
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		parts := make([]string, 0, len(fields))
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			if m := flattenMessage(fields[key]); m != "" {
				parts = append(parts, key+": "+m)
			}
		}
		return strings.Join(parts, "; ")
	}

	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
