package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/backends"
	"github.com/synthpanel/orchestrator/internal/cache"
	"github.com/synthpanel/orchestrator/internal/metrics"
	"github.com/synthpanel/orchestrator/internal/ratelimit"
)

// Transport records how a result was produced.
const (
	TransportStream    = "stream"
	TransportNonStream = "nonstream"
	TransportCache     = "cache"
)

// ReplayChunkSize is the chunk size used when a non-streamed or cached result
// is re-chunked for the caller's incremental consumer.
const ReplayChunkSize = 400

// Result is a completed generation.
type Result struct {
	Text      string `json:"text"`
	Backend   string `json:"backend"`
	Transport string `json:"transport"`
	Partial   bool   `json:"partial"`
}

// Generator produces long-form text, preferring a streaming transport and
// degrading to a single blocking call re-chunked for replay when no backend
// can stream.
type Generator struct {
	client     Client
	dispatcher *backends.Dispatcher
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	logger     *zap.Logger
}

func NewGenerator(client Client, dispatcher *backends.Dispatcher, limiter *ratelimit.Limiter, c *cache.Cache, logger *zap.Logger) *Generator {
	return &Generator{client: client, dispatcher: dispatcher, limiter: limiter, cache: c, logger: logger}
}

// Generate walks the chain trying to stream; each backend gets a second
// attempt with the alternate payload shape before the chain advances, because
// a transport-shape mismatch and backend capacity are independent failure
// causes. If no backend streams, one blocking call goes through the fallback
// executor and the full response is synthetically re-chunked so onChunk still
// sees incremental delivery. Partial streamed text survives a terminal error.
//
// cacheFields are the semantically significant inputs; the cache is consulted
// before any network attempt and written only after a complete result.
func (g *Generator) Generate(ctx context.Context, chain backends.Chain, req Request, cacheFields map[string]string, onChunk func(string)) (*Result, error) {
	if err := chain.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	key := cache.Key("generate_report", cacheFields)

	var cached Result
	if g.cache.GetJSON(ctx, "generate_report", key, &cached) && cached.Text != "" {
		g.logger.Info("Generation served from cache", zap.String("backend", cached.Backend))
		replayChunks(cached.Text, onChunk)
		cached.Transport = TransportCache
		return &cached, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	deliver := func(chunk string) {
		metrics.StreamChunks.Inc()
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	result, abort := g.tryStreaming(ctx, chain, req, deliver)
	if result != nil {
		if !result.Partial {
			g.cache.SetJSON(ctx, "generate_report", key, result, 0)
		}
		metrics.GenerationDuration.WithLabelValues(result.Transport).Observe(time.Since(start).Seconds())
		return result, nil
	}
	if abort != nil {
		return nil, abort
	}

	// NONSTREAM_FALLBACK: one blocking call through the fallback executor,
	// then replay the full text in synthetic chunks. The limiter was already
	// charged for this logical generation, so the executor must not wait again.
	metrics.NonStreamFallbacks.Inc()
	g.logger.Warn("No backend could stream, falling back to blocking call")

	type completion struct {
		backend string
		text    string
	}
	out, err := backends.ExecuteNoWait(ctx, g.dispatcher, chain, "generate_nonstream",
		func(ctx context.Context, backend string) (completion, error) {
			text, err := g.client.Complete(ctx, backend, req)
			return completion{backend: backend, text: text}, err
		})
	if err != nil {
		return nil, err
	}

	replayChunks(out.text, deliver)
	result = &Result{Text: out.text, Backend: out.backend, Transport: TransportNonStream}
	if out.text != "" {
		g.cache.SetJSON(ctx, "generate_report", key, result, 0)
	}
	metrics.GenerationDuration.WithLabelValues(TransportNonStream).Observe(time.Since(start).Seconds())
	return result, nil
}

// tryStreaming returns a result when a stream produced text (possibly
// partial), or a non-nil abort error when a failure class forbids continuing
// to the non-streaming fallback. (nil, nil) means "advance to the fallback".
func (g *Generator) tryStreaming(ctx context.Context, chain backends.Chain, req Request, deliver func(string)) (*Result, error) {
	for _, backend := range chain {
		for _, shape := range []PayloadShape{ShapeMessages, ShapeLegacyPrompt} {
			text, err := g.client.Stream(ctx, backend, req, shape, deliver)
			if err == nil {
				if text == "" {
					// A stream that completes with zero bytes is a failure;
					// the blocking path gets a chance before giving up.
					g.logger.Warn("Stream completed empty",
						zap.String("backend", backend),
						zap.String("shape", shape.String()),
					)
					continue
				}
				return &Result{Text: text, Backend: backend, Transport: TransportStream}, nil
			}

			if text != "" {
				// Partial output beats no output.
				g.logger.Warn("Stream ended early, returning partial text",
					zap.String("backend", backend),
					zap.Int("accumulated", len(text)),
					zap.Error(err),
				)
				return &Result{Text: text, Backend: backend, Transport: TransportStream, Partial: true}, nil
			}

			kind := backends.Classify(err)
			g.logger.Warn("Stream attempt failed",
				zap.String("backend", backend),
				zap.String("shape", shape.String()),
				zap.String("classification", kind.String()),
				zap.Error(err),
			)
			if kind == backends.KindAuthOrConfig {
				// A broken key fails identically everywhere; surface it now.
				return nil, err
			}
		}
	}
	return nil, nil
}

// replayChunks feeds text to onChunk in fixed-size pieces, preserving the
// incremental-consumption contract for results that were not streamed. Short
// text arrives as a single chunk containing the full result.
func replayChunks(text string, onChunk func(string)) {
	if onChunk == nil || text == "" {
		return
	}
	runes := []rune(text)
	for i := 0; i < len(runes); i += ReplayChunkSize {
		end := i + ReplayChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		onChunk(string(runes[i:end]))
	}
}
