package qc

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/config"
	"github.com/synthpanel/orchestrator/internal/metrics"
	"github.com/synthpanel/orchestrator/internal/telemetry"
)

// Checker runs the full quality-control pass: extract claims, validate them
// in sequential batches against the corpus, score, and optionally request a
// corrected rewrite.
type Checker struct {
	client   ValidationClient
	cfg      config.QCConfig
	reporter telemetry.Reporter
	logger   *zap.Logger
}

func NewChecker(client ValidationClient, cfg config.QCConfig, reporter telemetry.Reporter, logger *zap.Logger) *Checker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.OverlapThreshold <= 0 {
		cfg.OverlapThreshold = DefaultOverlapThreshold
	}
	if cfg.MinAccuracyScore <= 0 {
		cfg.MinAccuracyScore = 90
	}
	if cfg.CorrectionThreshold <= 0 {
		cfg.CorrectionThreshold = 85
	}
	return &Checker{client: client, cfg: cfg, reporter: reporter, logger: logger}
}

// PerformQualityControl always returns a Result, never an error. Full
// validation gets retried with exponential backoff; when every attempt fails
// the heuristic validator takes over so the pipeline still ships a scored
// report.
func (c *Checker) PerformQualityControl(ctx context.Context, report, corpus string, qcx Context) Result {
	claims := ExtractClaims(report)
	metrics.ClaimsExtracted.Observe(float64(len(claims)))

	if len(claims) == 0 {
		// No checkable claims is not a defect.
		return Result{IsValid: true, AccuracyScore: 100, TotalCount: 0}
	}

	var lastErr error
	delay := c.cfg.RetryBaseDelay
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		result, err := c.validate(ctx, claims, report, corpus, qcx)
		if err == nil {
			metrics.QCAccuracyScore.Observe(float64(result.AccuracyScore))
			return result
		}
		lastErr = err
		c.logger.Warn("Quality control attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.cfg.MaxRetries),
			zap.Error(err),
		)
		if attempt < c.cfg.MaxRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				attempt = c.cfg.MaxRetries // stop retrying, fall through to heuristic
			}
			delay *= 2
		}
	}

	metrics.QCFallbackValidations.Inc()
	telemetry.Emit(c.reporter, telemetry.Event{
		Kind:    telemetry.KindQCFallback,
		Message: "full validation unavailable, heuristic validator used",
	})
	c.logger.Warn("Quality control falling back to heuristic validation", zap.Error(lastErr))

	result := c.heuristicValidate(claims, corpus)
	metrics.QCAccuracyScore.Observe(float64(result.AccuracyScore))
	return result
}

// validate runs the batched full validation. Batches go out sequentially to
// respect upstream rate limits.
func (c *Checker) validate(ctx context.Context, claims []Claim, report, corpus string, qcx Context) (Result, error) {
	result := Result{}
	result.TotalCount = len(claims)

	for start := 0; start < len(claims); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(claims) {
			end = len(claims)
		}
		batch := claims[start:end]

		verdicts, err := c.client.ValidateBatch(ctx, batch, corpus, qcx)
		if err != nil {
			return Result{}, fmt.Errorf("validate batch %d-%d: %w", start, end, err)
		}

		for i, verdict := range verdicts {
			claim := batch[i]
			if verdict.Supported {
				result.VerifiedCount++
				continue
			}
			issue := Issue{
				Location:     claim.Location,
				OriginalText: claim.Text,
				Explanation:  verdict.Explanation,
				SuggestedFix: verdict.SuggestedFix,
			}
			if verdict.Fabricated {
				issue.Severity = SeverityError
				issue.Kind = IssueHallucination
			} else {
				issue.Severity = SeverityWarning
				issue.Kind = IssueUnverified
			}
			if issue.Explanation == "" {
				issue.Explanation = "claim not supported by the research corpus"
			}
			result.Issues = append(result.Issues, issue)
		}
	}

	result.AccuracyScore = accuracyScore(result.VerifiedCount, result.TotalCount)
	result.IsValid = result.ErrorCount() == 0 && result.AccuracyScore >= c.cfg.MinAccuracyScore

	if result.AccuracyScore < c.cfg.CorrectionThreshold && result.ErrorCount() > 0 {
		corrected, err := c.client.Rewrite(ctx, report, corpus, result.Issues)
		if err != nil {
			// Correction is best-effort; the scored result still stands.
			c.logger.Warn("Corrected rewrite failed", zap.Error(err))
		} else {
			result.Corrections = corrected
		}
	}

	c.logger.Info("Quality control complete",
		zap.Int("total_claims", result.TotalCount),
		zap.Int("verified", result.VerifiedCount),
		zap.Int("accuracy_score", result.AccuracyScore),
		zap.Bool("is_valid", result.IsValid),
	)

	return result, nil
}

func accuracyScore(verified, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(verified) / float64(total) * 100))
}
