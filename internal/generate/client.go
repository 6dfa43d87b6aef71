package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/backends"
	"github.com/synthpanel/orchestrator/internal/tracing"
)

// PayloadShape selects the request body layout for a generation call. Some
// backends only accept the older prompt-string layout, so a failed stream
// open is retried once with the alternate shape before the chain advances.
type PayloadShape int

const (
	ShapeMessages PayloadShape = iota
	ShapeLegacyPrompt
)

func (s PayloadShape) String() string {
	if s == ShapeLegacyPrompt {
		return "legacy-prompt"
	}
	return "messages"
}

// Request is one generation request, backend-agnostic.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Client is the transport to the generation backends.
type Client interface {
	// Stream opens an incremental generation. Chunks are delivered to
	// onChunk as they arrive; the accumulated text is returned alongside any
	// terminal error, so a caller can keep partial output.
	Stream(ctx context.Context, backend string, req Request, shape PayloadShape, onChunk func(string)) (string, error)

	// Complete performs one blocking generation call.
	Complete(ctx context.Context, backend string, req Request) (string, error)
}

// HTTPClient implements Client against a JSON/SSE generation service.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, streamTimeout time.Duration, logger *zap.Logger) *HTTPClient {
	if streamTimeout <= 0 {
		streamTimeout = 5 * time.Minute
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: streamTimeout},
		logger:  logger,
	}
}

func (c *HTTPClient) buildBody(backend string, req Request, shape PayloadShape, stream bool) ([]byte, error) {
	payload := map[string]interface{}{
		"backend":     backend,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"stream":      stream,
	}
	switch shape {
	case ShapeLegacyPrompt:
		prompt := req.User
		if req.System != "" {
			prompt = req.System + "\n\n" + req.User
		}
		payload["prompt"] = prompt
	default:
		messages := []map[string]string{}
		if req.System != "" {
			messages = append(messages, map[string]string{"role": "system", "content": req.System})
		}
		messages = append(messages, map[string]string{"role": "user", "content": req.User})
		payload["messages"] = messages
	}
	return json.Marshal(payload)
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	tracing.InjectTraceparent(ctx, req)
	return c.client.Do(req)
}

// apiErrorFrom turns a non-2xx response into a structured error the
// classifier can work with.
func apiErrorFrom(resp *http.Response, backend string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)

	msg := parsed.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &backends.APIError{
		StatusCode: resp.StatusCode,
		Code:       parsed.Error.Code,
		Backend:    backend,
		Message:    msg,
	}
}

func (c *HTTPClient) Stream(ctx context.Context, backend string, req Request, shape PayloadShape, onChunk func(string)) (string, error) {
	body, err := c.buildBody(backend, req, shape, true)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/api/generate/stream", body)
	if err != nil {
		return "", fmt.Errorf("open stream on %s: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiErrorFrom(resp, backend)
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}

		var event struct {
			Delta string `json:"delta"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.logger.Debug("Skipping malformed stream event", zap.String("backend", backend))
			continue
		}
		if event.Error != "" {
			return accumulated.String(), fmt.Errorf("stream error from %s: %s", backend, event.Error)
		}
		if event.Delta != "" {
			accumulated.WriteString(event.Delta)
			if onChunk != nil {
				onChunk(event.Delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return accumulated.String(), fmt.Errorf("stream read from %s: %w", backend, err)
	}

	return accumulated.String(), nil
}

func (c *HTTPClient) Complete(ctx context.Context, backend string, req Request) (string, error) {
	body, err := c.buildBody(backend, req, ShapeMessages, false)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("generation call to %s: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiErrorFrom(resp, backend)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generation response from %s: %w", backend, err)
	}
	return parsed.Text, nil
}
