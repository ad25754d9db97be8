package gateway

import (
	"fmt"
	"net/http"
)

// Kind enumerates every request error the gateway can produce. The
// set is closed: the status mapping below is the single place a kind
// becomes an HTTP response, so a new kind without a mapping is caught
// immediately by the tests rather than silently serving 500.
type Kind int

const (
	KindUnknown Kind = iota
	KindChannelNotFound
	KindInvalidObjectName
	KindPresignFailure
	KindUnsupportedMethod
	KindAuthInvalid
)

// RequestError is the gateway's error variant, carrying just enough
// context for the response body and the request log.
type RequestError struct {
	Kind Kind

	// Name is the channel or object name the request was about.
	Name string

	// Method is set for KindUnsupportedMethod.
	Method string

	// Err is the underlying cause, forwarded to the logger but never
	// to the client.
	Err error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindChannelNotFound:
		return fmt.Sprintf("there is no such channel: %q", e.Name)
	case KindInvalidObjectName:
		return fmt.Sprintf("invalid object name: %q", e.Name)
	case KindPresignFailure:
		return fmt.Sprintf("failed to presign request for object %q", e.Name)
	case KindUnsupportedMethod:
		return fmt.Sprintf("unsupported HTTP method: %s", e.Method)
	case KindAuthInvalid:
		return "invalid token"
	default:
		return "unknown error"
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to its response status. Exhaustive over
// every Kind above.
func (e *RequestError) HTTPStatus() int {
	switch e.Kind {
	case KindChannelNotFound:
		return http.StatusNotFound
	case KindInvalidObjectName:
		return http.StatusBadRequest
	case KindPresignFailure:
		return http.StatusInternalServerError
	case KindUnsupportedMethod:
		return http.StatusMethodNotAllowed
	case KindAuthInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func channelNotFound(name string) *RequestError {
	return &RequestError{Kind: KindChannelNotFound, Name: name}
}

func invalidObjectName(name string) *RequestError {
	return &RequestError{Kind: KindInvalidObjectName, Name: name}
}

func presignFailure(key string, err error) *RequestError {
	return &RequestError{Kind: KindPresignFailure, Name: key, Err: err}
}

func unsupportedMethod(method string, err error) *RequestError {
	return &RequestError{Kind: KindUnsupportedMethod, Method: method, Err: err}
}
