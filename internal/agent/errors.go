package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Kind classifies AI gateway failures
type Kind int

const (
	KindTransport Kind = iota + 1
	KindRateLimited
	KindUnauthenticated
	KindMalformedResponse
	KindRejected // the provider refused the request itself (4xx other than auth/quota)
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindMalformedResponse:
		return "malformed_response"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is the gateway's error type. Raw carries the provider text for
// malformed responses.
type Error struct {
	Kind     Kind
	Provider string
	Raw      string
	Err      error
}

func (e *Error) Error() string {
	prefix := "ai " + e.Kind.String()
	if e.Provider != "" {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.Provider)
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindRateLimited
}

// KindOf returns the error kind, or 0 for non-gateway errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether err is a retryable gateway error
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

func malformed(provider, raw string, err error) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: provider, Raw: raw, Err: err}
}

// kindFromStatus maps an HTTP status onto an error kind
func kindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthenticated
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code >= 500 || code == 0:
		return KindTransport
	default:
		return KindRejected
	}
}

// Classify wraps a provider error in *Error
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	kind := KindTransport

	var genaiErr genai.APIError
	var openaiErr *openai.APIError
	var openaiReqErr *openai.RequestError
	var netErr net.Error

	switch {
	case errors.As(err, &genaiErr):
		kind = kindFromStatus(genaiErr.Code)
	case errors.As(err, &openaiErr):
		kind = kindFromStatus(openaiErr.HTTPStatusCode)
	case errors.As(err, &openaiReqErr):
		kind = kindFromStatus(openaiReqErr.HTTPStatusCode)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTransport
	case errors.As(err, &netErr):
		kind = KindTransport
	}

	return &Error{Kind: kind, Provider: provider, Err: err}
}
