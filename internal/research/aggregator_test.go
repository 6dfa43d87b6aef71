package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/synthpanel/orchestrator/internal/config"
)

type fakeClient struct {
	mu      sync.Mutex
	batches [][]string
	handler func(batch int, queries []string) ([]Result, error)
}

func (f *fakeClient) Search(_ context.Context, queries []string, _ SearchOptions) ([]Result, error) {
	f.mu.Lock()
	f.batches = append(f.batches, queries)
	batch := len(f.batches) - 1
	f.mu.Unlock()
	return f.handler(batch, queries)
}

func testConfig() config.ResearchConfig {
	return config.ResearchConfig{BatchSize: 10, BatchTimeout: time.Second, MaxResults: 5}
}

func TestGatherEmptyInput(t *testing.T) {
	client := &fakeClient{handler: func(int, []string) ([]Result, error) {
		t.Fatal("no call expected for empty input")
		return nil, nil
	}}
	a := NewAggregator(client, testConfig(), zaptest.NewLogger(t))

	assert.Equal(t, "", a.Gather(context.Background(), nil))
}

func TestGatherBatchPartitioning(t *testing.T) {
	client := &fakeClient{handler: func(_ int, queries []string) ([]Result, error) {
		return []Result{{Title: "t", URL: "u", Snippet: queries[0]}}, nil
	}}
	a := NewAggregator(client, testConfig(), zaptest.NewLogger(t))

	queries := make([]string, 25)
	for i := range queries {
		queries[i] = fmt.Sprintf("query-%02d", i)
	}
	corpus := a.Gather(context.Background(), queries)
	require.NotEmpty(t, corpus)

	// 25 queries must split into exactly 3 batches of 10/10/5.
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.batches, 3)
	sizes := map[int]int{}
	for _, b := range client.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{10: 2, 5: 1}, sizes)
	assert.Len(t, strings.Split(corpus, BatchSeparator), 3)
}

func TestGatherDropsFailedBatchKeepsSiblings(t *testing.T) {
	queries := make([]string, 25)
	for i := range queries {
		queries[i] = fmt.Sprintf("query-%02d", i)
	}

	client := &fakeClient{handler: func(_ int, qs []string) ([]Result, error) {
		// Fail the batch that starts with query-10 (the second one).
		if qs[0] == "query-10" {
			return nil, errors.New("upstream hiccup")
		}
		return []Result{{Title: "t", URL: "u", Snippet: "lead:" + qs[0]}}, nil
	}}
	a := NewAggregator(client, testConfig(), zaptest.NewLogger(t))

	corpus := a.Gather(context.Background(), queries)

	assert.Contains(t, corpus, "lead:query-00")
	assert.Contains(t, corpus, "lead:query-20")
	assert.NotContains(t, corpus, "lead:query-10")
	assert.Len(t, strings.Split(corpus, BatchSeparator), 2)
}

func TestGatherTimedOutBatchDropped(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeout = 30 * time.Millisecond

	client := &fakeClient{handler: func(_ int, qs []string) ([]Result, error) {
		if qs[0] == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		return []Result{{Title: "t", URL: "u", Snippet: "lead:" + qs[0]}}, nil
	}}
	a := NewAggregator(client, cfg, zaptest.NewLogger(t))

	queries := append([]string{"slow"}, make([]string, 10)...)
	for i := 1; i < len(queries); i++ {
		queries[i] = fmt.Sprintf("fast-%d", i)
	}

	done := make(chan string, 1)
	go func() { done <- a.Gather(context.Background(), queries) }()

	select {
	case corpus := <-done:
		assert.NotContains(t, corpus, "lead:slow")
		assert.Contains(t, corpus, "lead:fast-10")
	case <-time.After(time.Second):
		t.Fatal("gather blocked on a timed-out batch")
	}
}

func TestGatherAllBatchesFail(t *testing.T) {
	client := &fakeClient{handler: func(int, []string) ([]Result, error) {
		return nil, errors.New("down")
	}}
	a := NewAggregator(client, testConfig(), zaptest.NewLogger(t))

	// Empty corpus is a valid state, not an error.
	assert.Equal(t, "", a.Gather(context.Background(), []string{"q1", "q2"}))
}

func TestFormatResults(t *testing.T) {
	out := formatResults([]Result{
		{Title: "Panel sizes", URL: "https://example.com/a", Snippet: "snip", Date: "2026-01-02"},
		{Title: "No date", URL: "https://example.com/b", Snippet: "snap"},
	})
	assert.Contains(t, out, "### Panel sizes")
	assert.Contains(t, out, "Published: 2026-01-02")
	assert.Contains(t, out, "Published: undated")
	assert.Contains(t, out, "Source: https://example.com/b")
}
