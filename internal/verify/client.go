package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/tracing"
)

// Context carries the report metadata a verifier needs to judge plausibility.
type Context struct {
	Domain   string   `json:"domain"`
	Audience []string `json:"audience,omitempty"`
}

// Verifier confirms claims in a corpus are plausible and supported, excising
// or flagging what is not. It must not invent new unverifiable facts.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, corpus string, vctx Context) (string, error)
}

// HTTPVerifier calls one external verification backend.
type HTTPVerifier struct {
	name   string
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPVerifier(name, url string, timeout time.Duration, logger *zap.Logger) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPVerifier{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (v *HTTPVerifier) Name() string { return v.name }

func (v *HTTPVerifier) Verify(ctx context.Context, corpus string, vctx Context) (string, error) {
	payload := map[string]interface{}{
		"corpus":   corpus,
		"domain":   vctx.Domain,
		"audience": vctx.Audience,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("verification failed with status %d: %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Enhanced string `json:"enhanced"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	return parsed.Enhanced, nil
}
