package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrModelUnauthorized = errors.New("model not permitted")
	ErrConfiguration     = errors.New("server misconfigured")
	ErrGuestNotAllowed   = errors.New("sign in to use the assistant")
)

// proxyError keeps the caller-facing message separate from its kind.
type proxyError struct {
	kind error
	msg  string
}

func (e *proxyError) Error() string { return e.msg }
func (e *proxyError) Unwrap() error { return e.kind }

func newProxyError(kind error, format string, args ...interface{}) error {
	return &proxyError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// UpstreamError is a non-2xx answer from the AI provider.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider error (%d): %s", e.Status, e.Message)
}

// HTTPStatus is the status relayed to the client.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	return http.StatusBadGateway
}

// ProxyStatus maps an error from ChatProxy.Complete to a status code and the
// message for the {"error": ...} body.
func ProxyStatus(err error) (int, string) {
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return upstream.HTTPStatus(), upstream.Error()
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrGuestNotAllowed):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ErrModelUnauthorized):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, ErrConfiguration):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream provider timed out"
	}
	return http.StatusInternalServerError, "internal error"
}

func proxyOutcome(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrGuestNotAllowed):
		return "guest_rejected"
	case errors.Is(err, ErrModelUnauthorized):
		return "model_unauthorized"
	case errors.Is(err, ErrConfiguration):
		return "misconfigured"
	}
	return "internal_error"
}
