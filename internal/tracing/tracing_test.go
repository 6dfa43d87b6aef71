package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInjectTraceparent(t *testing.T) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	tracer = otel.Tracer("test")

	ctx, span := StartSpan(context.Background(), "outbound")
	defer span.End()

	header := W3CTraceparent(ctx)
	require.NotEmpty(t, header)
	assert.True(t, strings.HasPrefix(header, "00-"))
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`, header)

	req := httptest.NewRequest(http.MethodPost, "http://upstream/api", nil)
	InjectTraceparent(ctx, req)
	assert.Equal(t, header, req.Header.Get("traceparent"))
}

func TestInjectTraceparentWithoutSpan(t *testing.T) {
	assert.Empty(t, W3CTraceparent(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "http://upstream/api", nil)
	InjectTraceparent(context.Background(), req)
	assert.Empty(t, req.Header.Get("traceparent"), "no header without an active span")
}
