package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/productqa/internal/telemetry"
)

func TestMetrics_RecordInvocation(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := newMetrics(tel.Meter(instrumentationName), nil)
	ctx := context.Background()

	m.RecordInvocation(ctx, toolAskProduct, 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, toolAskProduct, 50*time.Millisecond, errRetrievalUnavailable)
	m.RecordInvocation(ctx, toolIngestStatus, time.Millisecond, nil)

	inv, ok := tel.CollectMetric(ctx, "productqa.mcp.tool.invocations_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), telemetry.Int64Sum(inv))
	assert.Equal(t, int64(2), telemetry.Int64Sum(inv, attribute.String("tool", toolAskProduct)))

	errs, ok := tel.CollectMetric(ctx, "productqa.mcp.tool.errors_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), telemetry.Int64Sum(errs, attribute.String("reason", "retrieval_unavailable")))

	_, ok = tel.CollectMetric(ctx, "productqa.mcp.tool.duration_seconds")
	assert.True(t, ok)
}

func TestMetrics_ActiveRequests(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := newMetrics(tel.Meter(instrumentationName), nil)
	ctx := context.Background()

	m.IncrementActive(ctx, toolAskProduct)
	m.IncrementActive(ctx, toolAskProduct)
	m.DecrementActive(ctx, toolAskProduct)

	active, ok := tel.CollectMetric(ctx, "productqa.mcp.tool.active_requests")
	require.True(t, ok)
	assert.Equal(t, int64(1), telemetry.Int64Sum(active))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errNoQuestion, "validation_error"},
		{errQuestionTooLong, "validation_error"},
		{errNotReady, "not_ready"},
		{errRetrievalUnavailable, "retrieval_unavailable"},
		{fmt.Errorf("wrapped: %w", errGenerationFailure), "generation_failure"},
		{errBusy, "busy"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err))
	}
}
