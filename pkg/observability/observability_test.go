package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "stellar-pay", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Enabled)
}

func TestDisabledProvider(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())

	ctx, done := p.TrackOperation(context.Background(), "treasury.approve", attribute.Int("proposal_id", 1))
	require.NotNil(t, ctx)
	done(errors.New("boom"))

	p.RecordDisbursement(context.Background(), "USDC", 10)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	_, done := p.TrackOperation(context.Background(), "treasury.create")
	done(nil)
	p.RecordDisbursement(context.Background(), "USDC", 1)
	assert.False(t, p.Enabled())
}

func TestEnabledProvider(t *testing.T) {
	// gRPC exporters dial lazily, so construction succeeds without a collector.
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = true
	cfg.SampleRate = 0.5

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, done := p.TrackOperation(context.Background(), "treasury.execute")
	p.RecordDisbursement(context.Background(), "USDC", 300)
	done(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx) // flush fails without a collector
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), samplerFor(0.25).Description())
}

func TestTrackOperation_ProposalIDStaysOnSpan(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	p := &Provider{
		config: DefaultConfig(),
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
	}
	require.NoError(t, p.registerInstruments())

	for id := int64(1); id <= 3; id++ {
		_, done := p.TrackOperation(ctx, "treasury.approve", attribute.Int64("stellarpay.proposal_id", id))
		done(errors.New("boom"))
	}

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Contains(t, ended[0].Attributes(), attribute.Int64("stellarpay.proposal_id", 1))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	seen := 0
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					seen++
					assert.False(t, dp.Attributes.HasValue("stellarpay.proposal_id"), m.Name)
				}
				if m.Name == "stellarpay.operations.total" {
					require.Len(t, data.DataPoints, 1)
					assert.Equal(t, int64(3), data.DataPoints[0].Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					seen++
					assert.False(t, dp.Attributes.HasValue("stellarpay.proposal_id"), m.Name)
				}
			}
		}
	}
	assert.NotZero(t, seen)
}
