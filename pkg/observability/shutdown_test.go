package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestShutdownRunsStepsInReverse(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var order []string
	sm.Register("database", func(context.Context) error { order = append(order, "database"); return nil })
	sm.Register("tracing", func(context.Context) error { order = append(order, "tracing"); return nil })

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"tracing", "database"}, order)
}

func TestShutdownCollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, 0)
	boom := errors.New("boom")

	ran := false
	sm.Register("first", func(context.Context) error { ran = true; return nil })
	sm.Register("second", func(context.Context) error { return boom })

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
}

func TestRecoverPanic(t *testing.T) {
	var got any
	func() {
		defer RecoverPanic(NopLogger(), "test", func(r any) { got = r })
		panic("kaboom")
	}()
	assert.Equal(t, "kaboom", got)
}

func TestTracingHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := Tracer(tp).Start(context.Background(), "op")
	logger := UpdateLoggerWithTraceContext(ctx, NopLogger())
	assert.NotNil(t, logger)
	EndSpan(span, errors.New("failed"))

	_, ok := Tracer(tp).Start(context.Background(), "ok")
	EndSpan(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope().Name)
}

func TestProvidersShutdownNil(t *testing.T) {
	var p *OTelProviders
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitOTelDisabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NopLogger())
	assert.NoError(t, err)
	assert.Nil(t, providers)
}
