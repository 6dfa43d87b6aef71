package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWaitUnderBudgetDoesNotBlock(t *testing.T) {
	l := New(600, zaptest.NewLogger(t))

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitThrottlesOverBudget(t *testing.T) {
	// Budget of 60/min refills one token per second. Burst of 60 means the
	// bucket must first be drained before throttling shows up, so use a tiny
	// budget where the burst is small.
	l := New(1, zaptest.NewLogger(t))
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.Error(t, err, "second call within the same minute should have to wait")
}

func TestWaitDisabled(t *testing.T) {
	l := New(0, zaptest.NewLogger(t))
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestSetRPMAppliesToNextWait(t *testing.T) {
	l := New(1, zaptest.NewLogger(t))
	require.NoError(t, l.Wait(context.Background())) // drain the only token

	l.SetRPM(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.Wait(ctx), "lifted budget must stop throttling immediately")
}

func TestSetRPMTightensBudget(t *testing.T) {
	l := New(600, zaptest.NewLogger(t))
	l.SetRPM(1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx), "tightened budget must throttle the second call")
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backends.yaml")
	data := []byte(`
rate_limits:
  default_rpm: 40
  backend_overrides:
    opus-large: 10
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("BACKENDS_CONFIG_PATH", path)
	defaultPaths[0] = path
	Reload()
	t.Cleanup(Reload)

	assert.Equal(t, 10, RPMForBackend("opus-large"))
	assert.Equal(t, 40, RPMForBackend("sonnet-fast"))
	assert.Equal(t, 10, EffectiveRPM([]string{"sonnet-fast", "opus-large"}, 30))
	assert.Equal(t, 5, EffectiveRPM([]string{"sonnet-fast"}, 5))
}
