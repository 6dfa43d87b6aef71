package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/config"
	"github.com/synthpanel/orchestrator/internal/metrics"
)

// BatchSeparator joins surviving batch outputs. Downstream consumers can
// split on it to recover batch boundaries.
const BatchSeparator = "\n\n=====\n\n"

// Aggregator turns a list of query strings into batched, concurrent,
// time-boxed lookups and merges whatever succeeds. A failed or slow batch
// contributes nothing; it never aborts its siblings.
type Aggregator struct {
	client    Client
	logger    *zap.Logger
	batchSize int
	timeout   time.Duration
	opts      SearchOptions
}

func NewAggregator(client Client, cfg config.ResearchConfig, logger *zap.Logger) *Aggregator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > 10 {
		batchSize = 10
	}
	timeout := cfg.BatchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Aggregator{
		client:    client,
		logger:    logger,
		batchSize: batchSize,
		timeout:   timeout,
		opts:      SearchOptions{MaxResults: cfg.MaxResults, RecencyDays: cfg.RecencyDays},
	}
}

// Gather dispatches all batches concurrently and returns the joined corpus.
// An empty query list returns "" without a single network call; an empty
// corpus is a valid outcome, not an error.
func (a *Aggregator) Gather(ctx context.Context, queries []string) string {
	if len(queries) == 0 {
		return ""
	}

	batches := partition(queries, a.batchSize)
	outputs := make([]string, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, qs []string) {
			defer wg.Done()
			outputs[idx] = a.dispatchBatch(ctx, idx, qs)
		}(i, batch)
	}
	wg.Wait()

	surviving := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out != "" {
			surviving = append(surviving, out)
		}
	}

	a.logger.Info("Research aggregation complete",
		zap.Int("queries", len(queries)),
		zap.Int("batches", len(batches)),
		zap.Int("surviving", len(surviving)),
	)

	return strings.Join(surviving, BatchSeparator)
}

type batchOutcome struct {
	results []Result
	err     error
}

// dispatchBatch races one lookup against the batch timeout. A late response
// is simply discarded; the goroutine's buffered channel lets it finish and be
// collected.
func (a *Aggregator) dispatchBatch(ctx context.Context, idx int, queries []string) string {
	start := time.Now()

	ch := make(chan batchOutcome, 1)
	go func() {
		results, err := a.client.Search(ctx, queries, a.opts)
		ch <- batchOutcome{results: results, err: err}
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		metrics.ResearchBatchDuration.Observe(time.Since(start).Seconds())
		if out.err != nil {
			metrics.ResearchBatches.WithLabelValues("failure").Inc()
			a.logger.Warn("Research batch failed",
				zap.Int("batch", idx),
				zap.Int("queries", len(queries)),
				zap.Error(out.err),
			)
			return ""
		}
		metrics.ResearchBatches.WithLabelValues("success").Inc()
		return formatResults(out.results)

	case <-timer.C:
		metrics.ResearchBatches.WithLabelValues("timeout").Inc()
		a.logger.Warn("Research batch timed out",
			zap.Int("batch", idx),
			zap.Duration("timeout", a.timeout),
		)
		return ""

	case <-ctx.Done():
		metrics.ResearchBatches.WithLabelValues("cancelled").Inc()
		return ""
	}
}

func partition(queries []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(queries); start += size {
		end := start + size
		if end > len(queries) {
			end = len(queries)
		}
		batches = append(batches, queries[start:end])
	}
	return batches
}

func formatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		freshness := r.Date
		if freshness == "" {
			freshness = "undated"
		}
		sb.WriteString(fmt.Sprintf("### %s\nSource: %s\nPublished: %s\n%s", r.Title, r.URL, freshness, r.Snippet))
	}
	return sb.String()
}
