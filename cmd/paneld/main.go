package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/backends"
	"github.com/synthpanel/orchestrator/internal/cache"
	"github.com/synthpanel/orchestrator/internal/config"
	"github.com/synthpanel/orchestrator/internal/generate"
	"github.com/synthpanel/orchestrator/internal/health"
	_ "github.com/synthpanel/orchestrator/internal/metrics" // Import for side effects
	"github.com/synthpanel/orchestrator/internal/pipeline"
	"github.com/synthpanel/orchestrator/internal/qc"
	"github.com/synthpanel/orchestrator/internal/ratelimit"
	"github.com/synthpanel/orchestrator/internal/research"
	"github.com/synthpanel/orchestrator/internal/telemetry"
	"github.com/synthpanel/orchestrator/internal/tracing"
	"github.com/synthpanel/orchestrator/internal/verify"
)

func main() {
	var (
		domain     = flag.String("domain", "", "report domain (required)")
		audience   = flag.String("audience", "", "comma-separated audience roles")
		sizeBucket = flag.String("size", "", "audience size bucket")
		queries    = flag.String("queries", "", "comma-separated research queries")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if *domain == "" {
		logger.Fatal("Missing required -domain flag")
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		hm := health.NewManager(logger)
		hm.Register(health.HTTPChecker("generation", cfg.Generation.BaseURL+"/health"))
		hm.Register(health.HTTPChecker("research", cfg.Research.BaseURL+"/health"))
		hm.Register(health.HTTPChecker("verify_primary", cfg.Verify.PrimaryURL+"/health"))
		hm.RegisterRoutes(mux)

		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Admin server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Admin server failed", zap.Error(err))
			}
		}()
	}

	reporter := buildReporter(cfg, logger)
	store, closeStore := buildStore(cfg, logger)
	defer closeStore()

	chain := backends.Chain(cfg.Generation.Chain)
	rpm := ratelimit.EffectiveRPM(chain, cfg.Generation.RequestsPerMin)
	limiter := ratelimit.New(rpm, logger)
	dispatcher := backends.NewDispatcher(limiter, reporter, logger)

	researcher := research.NewAggregator(
		research.NewHTTPClient(cfg.Research.BaseURL, cfg.Research.APIKey, logger),
		cfg.Research, logger)

	enhancer := verify.NewMerger(
		verify.NewHTTPVerifier("primary", cfg.Verify.PrimaryURL, cfg.Verify.Timeout, logger),
		verify.NewHTTPVerifier("secondary", cfg.Verify.SecondaryURL, cfg.Verify.Timeout, logger),
		reporter, logger)

	generator := generate.NewGenerator(
		generate.NewHTTPClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, cfg.Generation.StreamTimeout, logger),
		dispatcher, limiter,
		cache.New(store, cfg.Cache.DefaultTTL, logger),
		logger)

	checker := qc.NewChecker(
		qc.NewHTTPValidationClient(cfg.Generation.BaseURL, logger),
		cfg.QC, reporter, logger)

	p := pipeline.New(researcher, enhancer, generator, checker, chain, cfg.Generation.MaxTokens, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopWatch, err := ratelimit.WatchOverrides(ctx, func() {
		limiter.SetRPM(ratelimit.EffectiveRPM(chain, cfg.Generation.RequestsPerMin))
	}, logger)
	if err != nil {
		logger.Warn("Rate limit hot reload unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	topic := pipeline.TopicContext{
		Domain:     *domain,
		Audience:   splitCSV(*audience),
		SizeBucket: *sizeBucket,
		Queries:    splitCSV(*queries),
	}

	start := time.Now()
	report, err := p.Run(ctx, topic, func(chunk string) {
		fmt.Print(chunk)
	})
	fmt.Println()
	if err != nil {
		logger.Fatal("Pipeline run failed", zap.Error(err))
	}

	logger.Info("Report complete",
		zap.String("report_id", report.ID),
		zap.String("transport", report.Transport),
		zap.Bool("partial", report.Partial),
		zap.Int("accuracy_score", report.QC.AccuracyScore),
		zap.Bool("qc_valid", report.QC.IsValid),
		zap.Duration("elapsed", time.Since(start)),
	)
	if report.QC.Corrections != "" {
		logger.Info("Corrected rewrite available", zap.Int("length", len(report.QC.Corrections)))
	}
}

func buildReporter(cfg *config.Config, logger *zap.Logger) telemetry.Reporter {
	if cfg.Telemetry.Endpoint != "" {
		return telemetry.NewHTTPReporter(cfg.Telemetry.Endpoint, logger)
	}
	return telemetry.NewLogReporter(logger)
}

// buildStore picks the cache substrate: redis when configured, then postgres,
// then process-local memory.
func buildStore(cfg *config.Config, logger *zap.Logger) (cache.Store, func()) {
	if cfg.Cache.RedisAddr != "" {
		store, err := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		if err == nil {
			logger.Info("Cache store: redis", zap.String("addr", cfg.Cache.RedisAddr))
			return store, func() { store.Close() }
		}
		logger.Warn("Redis unavailable, trying next store", zap.Error(err))
	}
	if cfg.Cache.PostgresDSN != "" {
		store, err := cache.NewPostgresStore(cfg.Cache.PostgresDSN)
		if err == nil {
			logger.Info("Cache store: postgres")
			return store, func() { store.Close() }
		}
		logger.Warn("Postgres unavailable, trying next store", zap.Error(err))
	}
	logger.Info("Cache store: in-memory")
	return cache.NewMemoryStore(), func() {}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
