// Package advisor talks to a language-model provider to classify survey
// answer categories, propose short variable names, and draft variable
// labels. Everything it returns is treated as a best-effort suggestion:
// callers must survive partial, malformed, or absent replies.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Typed errors for common provider failure modes so callers can branch on
// the failure class instead of string-matching.

type AuthError struct{ Msg string }

func (e *AuthError) Error() string { return e.Msg }

type RateLimitError struct {
	Msg        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Msg, e.RetryAfter)
	}
	return e.Msg
}

type ModelNotFoundError struct {
	Model string
	Msg   string
}

func (e *ModelNotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("model not found: %s", e.Model)
}

type BadRequestError struct{ Msg string }

func (e *BadRequestError) Error() string { return e.Msg }

type QuotaExceededError struct{ Msg string }

func (e *QuotaExceededError) Error() string { return e.Msg }

type ServerError struct {
	Status int
	Msg    string
}

func (e *ServerError) Error() string { return fmt.Sprintf("server error (%d): %s", e.Status, e.Msg) }

type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("endpoint unreachable: %s: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// APIError is a raw provider error before classification.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "api error (status %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&sb, ", code %s", e.Code)
	}
	sb.WriteString(")")
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&sb, " [request id: %s]", e.RequestID)
	}
	return sb.String()
}

// IsUnavailable reports whether err means the capability itself is down for
// this session, as opposed to one malformed reply that is worth retrying on
// the next column.
func IsUnavailable(err error) bool {
	var (
		authErr *AuthError
		rlErr   *RateLimitError
		nfErr   *ModelNotFoundError
		qErr    *QuotaExceededError
		sErr    *ServerError
		unreach *UnreachableError
	)
	switch {
	case errors.As(err, &unreach),
		errors.As(err, &authErr),
		errors.As(err, &rlErr),
		errors.As(err, &nfErr),
		errors.As(err, &qErr),
		errors.As(err, &sErr):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	}
	return false
}
