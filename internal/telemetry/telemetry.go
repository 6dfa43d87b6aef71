package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/metrics"
)

// Event is a fire-and-forget report about a notable pipeline occurrence.
type Event struct {
	Kind      string                 `json:"kind"`
	Operation string                 `json:"operation,omitempty"`
	Backend   string                 `json:"backend,omitempty"`
	Fallback  string                 `json:"fallback,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Event kinds emitted by the pipeline.
const (
	KindFallbackUsed   = "fallback_used"
	KindChainExhausted = "chain_exhausted"
	KindVerifierMerge  = "verifier_merge"
	KindQCFallback     = "qc_fallback"
)

// Reporter accepts events best-effort. Implementations must never let a
// reporting failure reach the caller.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// Emit dispatches an event without blocking the caller. A nil reporter is a
// no-op. Panics inside the reporter are swallowed.
func Emit(reporter Reporter, ev Event) {
	if reporter == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	go func() {
		defer func() { _ = recover() }()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reporter.Report(ctx, ev)
	}()
}

// LogReporter records events to the structured log and Prometheus.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, ev Event) {
	metrics.TelemetryEvents.WithLabelValues(ev.Kind).Inc()
	r.logger.Info("Telemetry event",
		zap.String("kind", ev.Kind),
		zap.String("operation", ev.Operation),
		zap.String("backend", ev.Backend),
		zap.String("fallback", ev.Fallback),
		zap.String("message", ev.Message),
	)
}

// HTTPReporter forwards events to an external sink. Errors are logged and
// dropped.
type HTTPReporter struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewHTTPReporter(endpoint string, logger *zap.Logger) *HTTPReporter {
	return &HTTPReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

func (r *HTTPReporter) Report(ctx context.Context, ev Event) {
	metrics.TelemetryEvents.WithLabelValues(ev.Kind).Inc()

	body, err := json.Marshal(ev)
	if err != nil {
		r.logger.Debug("Failed to marshal telemetry event", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		r.logger.Debug("Failed to build telemetry request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("Telemetry sink unreachable", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Debug("Telemetry sink rejected event", zap.Int("status", resp.StatusCode))
	}
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Event) {}
