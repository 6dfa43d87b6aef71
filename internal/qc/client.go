package qc

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

// ClaimVerdict is the validator's judgement of a single claim.
type ClaimVerdict struct {
	Claim        string `json:"claim"`
	Supported    bool   `json:"supported"`
	Fabricated   bool   `json:"fabricated"`
	Explanation  string `json:"explanation,omitempty"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// ValidationClient validates claim batches against a corpus and requests
// corrected rewrites. One batched request covers many claims; that batching
// is the key performance property of the fact checker.
type ValidationClient interface {
	ValidateBatch(ctx context.Context, claims []Claim, corpus string, qcx Context) ([]ClaimVerdict, error)
	Rewrite(ctx context.Context, report, corpus string, issues []Issue) (string, error)
}

// HTTPValidationClient talks to the validation service over JSON/HTTP.
type HTTPValidationClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPValidationClient(baseURL string, logger *zap.Logger) *HTTPValidationClient {
	return &HTTPValidationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 180 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPValidationClient) ValidateBatch(ctx context.Context, claims []Claim, corpus string, qcx Context) ([]ClaimVerdict, error) {
	payload := map[string]interface{}{
		"claims":   claims,
		"corpus":   corpus,
		"domain":   qcx.Domain,
		"audience": qcx.Audience,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/validate_claims", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("validation failed with status %d: %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Verdicts []ClaimVerdict `json:"verdicts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}
	if len(parsed.Verdicts) != len(claims) {
		return nil, fmt.Errorf("validation returned %d verdicts for %d claims", len(parsed.Verdicts), len(claims))
	}
	return parsed.Verdicts, nil
}

func (c *HTTPValidationClient) Rewrite(ctx context.Context, report, corpus string, issues []Issue) (string, error) {
	payload := map[string]interface{}{
		"report": report,
		"corpus": corpus,
		"issues": issues,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rewrite", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rewrite request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("rewrite failed with status %d: %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Corrected string `json:"corrected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode rewrite response: %w", err)
	}
	return parsed.Corrected, nil
}
