package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/backends"
	"github.com/synthpanel/orchestrator/internal/generate"
	"github.com/synthpanel/orchestrator/internal/metrics"
	"github.com/synthpanel/orchestrator/internal/qc"
	"github.com/synthpanel/orchestrator/internal/tracing"
	"github.com/synthpanel/orchestrator/internal/verify"
)

// TopicContext describes one report request.
type TopicContext struct {
	Domain     string
	Audience   []string
	SizeBucket string
	Queries    []string
}

// Report is the pipeline's final product.
type Report struct {
	ID        string
	Text      string
	Transport string
	Partial   bool
	Corpus    string
	QC        qc.Result
}

// Researcher gathers corpus text for a set of queries.
type Researcher interface {
	Gather(ctx context.Context, queries []string) string
}

// Enhancer improves a corpus through verification.
type Enhancer interface {
	Merge(ctx context.Context, corpus string, vctx verify.Context) verify.MergeResult
}

// ReportGenerator produces the report text.
type ReportGenerator interface {
	Generate(ctx context.Context, chain backends.Chain, req generate.Request, cacheFields map[string]string, onChunk func(string)) (*generate.Result, error)
}

// QualityChecker scores the generated report against the corpus.
type QualityChecker interface {
	PerformQualityControl(ctx context.Context, report, corpus string, qcx qc.Context) qc.Result
}

// Pipeline runs the stages in order: research, verify, generate, quality
// control. Every stage except generation degrades gracefully; only a fully
// exhausted backend chain fails a run.
type Pipeline struct {
	researcher Researcher
	enhancer   Enhancer
	generator  ReportGenerator
	checker    QualityChecker
	chain      backends.Chain
	maxTokens  int
	logger     *zap.Logger
}

func New(researcher Researcher, enhancer Enhancer, generator ReportGenerator, checker QualityChecker, chain backends.Chain, maxTokens int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		researcher: researcher,
		enhancer:   enhancer,
		generator:  generator,
		checker:    checker,
		chain:      chain,
		maxTokens:  maxTokens,
		logger:     logger,
	}
}

// Run executes one full report run. onChunk receives incremental report text
// and may be nil.
func (p *Pipeline) Run(ctx context.Context, topic TopicContext, onChunk func(string)) (*Report, error) {
	if err := p.chain.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx, span := tracing.StartSpan(ctx, "pipeline.run")
	defer span.End()

	logger := p.logger.With(
		zap.String("run_id", runID),
		zap.String("domain", topic.Domain),
	)
	logger.Info("Pipeline run started", zap.Int("queries", len(topic.Queries)))

	corpus := p.timed(ctx, "research", func(ctx context.Context) string {
		return p.researcher.Gather(ctx, topic.Queries)
	})
	if corpus == "" {
		// Empty corpus is a degraded run, not a failure; generation proceeds
		// from the prompt alone and quality control will flag unsupported
		// claims.
		logger.Warn("Research produced no corpus")
	}

	vctx := verify.Context{Domain: topic.Domain, Audience: topic.Audience}
	corpus = p.timed(ctx, "verify", func(ctx context.Context) string {
		merged := p.enhancer.Merge(ctx, corpus, vctx)
		logger.Info("Corpus verification complete", zap.Strings("contributors", merged.Contributors))
		return merged.Corpus
	})

	genStart := time.Now()
	genCtx, genSpan := tracing.StartSpan(ctx, "pipeline.generate")
	result, err := p.generator.Generate(genCtx, p.chain, p.buildRequest(topic, corpus), cacheFields(topic), onChunk)
	genSpan.End()
	metrics.PipelineStageDuration.WithLabelValues("generate").Observe(time.Since(genStart).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		logger.Error("Report generation failed", zap.Error(err))
		return nil, fmt.Errorf("generate report: %w", err)
	}

	var qcResult qc.Result
	qcStart := time.Now()
	qcCtx, qcSpan := tracing.StartSpan(ctx, "pipeline.qc")
	qcResult = p.checker.PerformQualityControl(qcCtx, result.Text, corpus, qc.Context{
		Domain:   topic.Domain,
		Audience: topic.Audience,
	})
	qcSpan.End()
	metrics.PipelineStageDuration.WithLabelValues("qc").Observe(time.Since(qcStart).Seconds())

	status := "ok"
	if result.Partial {
		status = "partial"
	}
	metrics.PipelineRuns.WithLabelValues(status).Inc()
	logger.Info("Pipeline run complete",
		zap.String("transport", result.Transport),
		zap.Bool("partial", result.Partial),
		zap.Int("accuracy_score", qcResult.AccuracyScore),
		zap.Bool("qc_valid", qcResult.IsValid),
	)

	return &Report{
		ID:        runID,
		Text:      result.Text,
		Transport: result.Transport,
		Partial:   result.Partial,
		Corpus:    corpus,
		QC:        qcResult,
	}, nil
}

func (p *Pipeline) timed(ctx context.Context, stage string, fn func(context.Context) string) string {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "pipeline."+stage)
	defer span.End()
	out := fn(ctx)
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return out
}

func (p *Pipeline) buildRequest(topic TopicContext, corpus string) generate.Request {
	var sb strings.Builder
	sb.WriteString("Write a structured report for the ")
	sb.WriteString(topic.Domain)
	sb.WriteString(" domain")
	if len(topic.Audience) > 0 {
		sb.WriteString(", addressed to ")
		sb.WriteString(strings.Join(topic.Audience, ", "))
	}
	if topic.SizeBucket != "" {
		sb.WriteString(", sized for ")
		sb.WriteString(topic.SizeBucket)
	}
	sb.WriteString(".")
	if corpus != "" {
		sb.WriteString("\n\nGround every factual statement in the research below.\n\n")
		sb.WriteString(corpus)
	}

	return generate.Request{
		System:    "You are a precise analyst. Cite only facts present in the provided research.",
		User:      sb.String(),
		MaxTokens: p.maxTokens,
	}
}

// cacheFields picks the request attributes that determine report content.
// Queries are excluded on purpose; two runs over the same domain, audience
// and size bucket should share a cached report.
func cacheFields(topic TopicContext) map[string]string {
	fields := map[string]string{
		"domain": topic.Domain,
	}
	if len(topic.Audience) > 0 {
		fields["audience"] = strings.Join(topic.Audience, ",")
	}
	if topic.SizeBucket != "" {
		fields["size_bucket"] = topic.SizeBucket
	}
	return fields
}
