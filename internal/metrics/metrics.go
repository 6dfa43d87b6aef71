package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend dispatch metrics
	BackendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_backend_attempts_total",
			Help: "Total number of backend attempts",
		},
		[]string{"backend", "operation", "status"},
	)

	BackendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_backend_fallbacks_total",
			Help: "Total number of successful fallbacks to a non-primary backend",
		},
		[]string{"from", "to"},
	)

	BackendChainExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthpanel_backend_chain_exhausted_total",
			Help: "Total number of executions where every backend in the chain failed",
		},
	)

	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthpanel_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the outbound rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// Research metrics
	ResearchBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_research_batches_total",
			Help: "Total number of research batches dispatched",
		},
		[]string{"status"},
	)

	ResearchBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthpanel_research_batch_duration_seconds",
			Help:    "Research batch dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Verification metrics
	VerifierResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_verifier_results_total",
			Help: "Total number of verifier completions",
		},
		[]string{"verifier", "status"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"operation"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"operation"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_cache_errors_total",
			Help: "Total number of swallowed cache errors",
		},
		[]string{"operation", "kind"},
	)

	// Generation metrics
	StreamChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthpanel_stream_chunks_total",
			Help: "Total number of chunks delivered to generation consumers",
		},
	)

	NonStreamFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthpanel_nonstream_fallbacks_total",
			Help: "Total number of generations that degraded to a non-streaming call",
		},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthpanel_generation_duration_seconds",
			Help:    "End-to-end generation duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"transport"},
	)

	// Quality control metrics
	ClaimsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthpanel_claims_extracted",
			Help:    "Number of claims extracted per report",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250},
		},
	)

	QCAccuracyScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthpanel_qc_accuracy_score",
			Help:    "Accuracy score (0-100) computed per quality control pass",
			Buckets: []float64{0, 50, 70, 85, 90, 95, 100},
		},
	)

	QCFallbackValidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthpanel_qc_fallback_validations_total",
			Help: "Total number of quality control passes served by the heuristic fallback validator",
		},
	)

	// Pipeline metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthpanel_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Telemetry metrics
	TelemetryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthpanel_telemetry_events_total",
			Help: "Total number of telemetry events emitted",
		},
		[]string{"kind"},
	)
)
