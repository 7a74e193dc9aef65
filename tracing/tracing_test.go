package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/config"
	"github.com/wyfcoding/valuation/xerrors"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return exporter
}

func TestSpanHelpers(t *testing.T) {
	exporter := installRecorder(t)

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := Start(context.Background(), "valuation.Price", attribute.String("valuation.method", "binomial"))
	Tag(ctx, "valuation.steps", 1260)
	Tag(ctx, "valuation.cached", true)
	Tag(ctx, "valuation.price", decimal.RequireFromString("4.627"))
	Tag(ctx, "valuation.style", finance.ExerciseAmerican)
	Fail(ctx, nil)
	assert.Len(t, TraceID(ctx), 32)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "valuation.Price", s.Name)
	assert.NotEqual(t, codes.Error, s.Status.Code)
	assert.Contains(t, s.Attributes, attribute.String("valuation.method", "binomial"))
	assert.Contains(t, s.Attributes, attribute.Int("valuation.steps", 1260))
	assert.Contains(t, s.Attributes, attribute.Bool("valuation.cached", true))
	assert.Contains(t, s.Attributes, attribute.String("valuation.price", "4.627"))
	assert.Contains(t, s.Attributes, attribute.String("valuation.style", "american"))
}

func TestFailRecordsErrorCode(t *testing.T) {
	exporter := installRecorder(t)

	ctx, span := Start(context.Background(), "valuation.Price")
	Fail(ctx, fmt.Errorf("rollback: %w", xerrors.ErrProbabilityOutOfRange.Clone()))
	span.End()

	ctx, span = Start(context.Background(), "valuation.Discount")
	Fail(ctx, errors.New("plain failure"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Len(t, spans[0].Events, 1)
	assert.Contains(t, spans[0].Attributes, attribute.Int("error.code", 422101))
	assert.Contains(t, spans[0].Attributes, attribute.String("error.type", "Numerical"))
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Empty(t, spans[1].Attributes)
}

func TestSampler(t *testing.T) {
	assert.True(t, strings.HasPrefix(Sampler(1).Description(), "ParentBased{root:AlwaysOnSampler"))
	assert.True(t, strings.HasPrefix(Sampler(0).Description(), "ParentBased{root:AlwaysOffSampler"))
	assert.True(t, strings.HasPrefix(Sampler(0.25).Description(), "ParentBased{root:TraceIDRatioBased{0.25}"))
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(config.TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerEnabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(config.TracingConfig{
		Enabled:      true,
		ServiceName:  "valuation",
		OTLPEndpoint: "127.0.0.1:4317",
		SampleRatio:  1,
	})
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
