package backends

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a backend failure. It decides whether the fallback executor
// advances to the next backend or aborts immediately.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindLimitExceeded
	KindAuthOrConfig
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindLimitExceeded:
		return "limit-exceeded"
	case KindAuthOrConfig:
		return "auth-or-config"
	default:
		return "other"
	}
}

// Advanceable reports whether the executor should try the next backend.
func (k Kind) Advanceable() bool {
	return k == KindNotFound || k == KindLimitExceeded
}

// APIError is a structured failure from a backend service. Clients populate
// the status code and, when the service provides one, the machine-readable
// error code.
type APIError struct {
	StatusCode int
	Code       string
	Backend    string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %s: %s (status %d, code %s)", e.Backend, e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("backend %s: %s (status %d)", e.Backend, e.Message, e.StatusCode)
}

var notFoundCodes = map[string]bool{
	"not_found":       true,
	"model_not_found": true,
	"unknown_model":   true,
}

var limitCodes = map[string]bool{
	"rate_limit_exceeded": true,
	"insufficient_quota":  true,
	"quota_exceeded":      true,
	"overloaded_error":    true,
}

var authCodes = map[string]bool{
	"invalid_api_key":      true,
	"authentication_error": true,
	"permission_denied":    true,
	"invalid_organization": true,
}

// Classify maps an error to its Kind. Status codes and structured error codes
// win; free-text matching is a last resort and only accepts narrow multi-token
// phrases. A bare "token" or "limit" substring is deliberately NOT enough to
// classify a failure as limit-exceeded: authentication errors frequently
// mention tokens, and misreading one as a capacity error would send the
// executor cycling through backends with a broken key.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404:
			return KindNotFound
		case 429:
			return KindLimitExceeded
		case 401, 403:
			return KindAuthOrConfig
		}
		code := strings.ToLower(apiErr.Code)
		switch {
		case notFoundCodes[code]:
			return KindNotFound
		case limitCodes[code]:
			return KindLimitExceeded
		case authCodes[code]:
			return KindAuthOrConfig
		}
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Kind {
	m := strings.ToLower(msg)

	switch {
	case strings.Contains(m, "quota") && strings.Contains(m, "exceeded"),
		strings.Contains(m, "rate limit"),
		strings.Contains(m, "too many requests"):
		return KindLimitExceeded

	case strings.Contains(m, "model") && strings.Contains(m, "not found"),
		strings.Contains(m, "no such model"):
		return KindNotFound

	case strings.Contains(m, "api key"),
		strings.Contains(m, "unauthorized"),
		strings.Contains(m, "authentication"),
		strings.Contains(m, "permission denied"):
		return KindAuthOrConfig
	}

	return KindOther
}
