package backends

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"not found", 404, KindNotFound},
		{"too many requests", 429, KindLimitExceeded},
		{"unauthorized", 401, KindAuthOrConfig},
		{"forbidden", 403, KindAuthOrConfig},
		{"server error", 500, KindOther},
		{"bad request", 400, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, Backend: "b", Message: "boom"}
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestClassifyErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{"model_not_found", KindNotFound},
		{"rate_limit_exceeded", KindLimitExceeded},
		{"insufficient_quota", KindLimitExceeded},
		{"invalid_api_key", KindAuthOrConfig},
		{"authentication_error", KindAuthOrConfig},
		{"something_else", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := &APIError{StatusCode: 500, Code: tt.code, Backend: "b", Message: "boom"}
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestClassifyStatusWinsOverMessage(t *testing.T) {
	// A 401 whose body happens to mention quota must still abort.
	err := &APIError{StatusCode: 401, Backend: "b", Message: "quota exceeded for this api key"}
	assert.Equal(t, KindAuthOrConfig, Classify(err))
}

func TestClassifyPhrases(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Kind
	}{
		{"quota exceeded", "monthly quota has been exceeded", KindLimitExceeded},
		{"rate limit", "rate limit reached, slow down", KindLimitExceeded},
		{"too many requests", "too many requests", KindLimitExceeded},
		{"model not found", "model gpt-x not found", KindNotFound},
		{"api key", "invalid api key provided", KindAuthOrConfig},
		{"authentication", "authentication failed", KindAuthOrConfig},
		{"unknown", "connection reset by peer", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

// Bare substrings like "token" or "limit" carry no signal on their own. An
// auth failure mentioning token limits must not be reclassified as capacity.
func TestClassifyRejectsBareSubstrings(t *testing.T) {
	for _, msg := range []string{
		"token invalid",
		"limit configuration missing",
		"max token count misconfigured",
		"request limit field required",
	} {
		assert.Equal(t, KindOther, Classify(errors.New(msg)), "msg=%q", msg)
	}
}

func TestClassifyWrappedAPIError(t *testing.T) {
	inner := &APIError{StatusCode: 429, Backend: "b", Message: "slow down"}
	wrapped := fmt.Errorf("generation call: %w", inner)
	assert.Equal(t, KindLimitExceeded, Classify(wrapped))
}

func TestAdvanceable(t *testing.T) {
	assert.True(t, KindNotFound.Advanceable())
	assert.True(t, KindLimitExceeded.Advanceable())
	assert.False(t, KindAuthOrConfig.Advanceable())
	assert.False(t, KindOther.Advanceable())
}
