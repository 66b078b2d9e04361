package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrUnsupportedMethod is returned for methods other than GET, POST and PATCH.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrInvalidURL is returned when a request URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidStatus is returned when a status is not a valid HTTP status code.
	ErrInvalidStatus = errors.New("invalid http status")

	// ErrMalformedBody is wrapped by TransportError when a body is not JSON.
	ErrMalformedBody = errors.New("malformed response body")

	// ErrEmptyBody is returned when decoding a response without a body.
	ErrEmptyBody = errors.New("empty response body")
)

// ErrorClass represents a classification of a finished exchange.
type ErrorClass string

const (
	// ErrorClassNone marks a 2xx response.
	ErrorClassNone ErrorClass = "success"

	// ErrorClassClient represents 400 validation errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 authentication errors.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassOther represents the remaining non-2xx statuses (403, 404, 409...).
	ErrorClassOther ErrorClass = "other"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"
)

// TransportError is returned when no parseable response was obtained.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// GenericServerMessage is shown for 5xx responses instead of server text.
const GenericServerMessage = "The server failed to process the request. Please try again later."

// Outcome is the user facing interpretation of an exchange.
type Outcome struct {
	Class   ErrorClass
	Status  int
	Message string

	// RedirectToSignIn is set for 401; the caller redirects after a short delay.
	RedirectToSignIn bool
}

// OK reports a successful exchange.
func (o Outcome) OK() bool {
	return o.Class == ErrorClassNone
}

// Describe turns the result of Send into an Outcome. Nothing is ever
// marked for automatic retry.
func Describe(resp *Response, err error) Outcome {
	if err != nil {
		return Outcome{
			Class:   ErrorClassNetwork,
			Message: fmt.Sprintf("communication error: %v", err),
		}
	}

	out := Outcome{Class: resp.Class(), Status: resp.Status()}
	switch out.Class {
	case ErrorClassNone:
		out.Message = resp.Message()
	case ErrorClassClient:
		out.Message = resp.Message()
	case ErrorClassAuth:
		out.Message = resp.Message()
		out.RedirectToSignIn = true
	case ErrorClassServer:
		out.Message = GenericServerMessage
	default:
		out.Message = resp.Message()
	}

	if out.Message == "" && out.Class != ErrorClassNone {
		out.Message = http.StatusText(out.Status)
	}
	return out
}
