package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

// TestStartWorkSpan_Attributes verifies the span carries work identity and ends with OK
func TestStartWorkSpan_Attributes(t *testing.T) {
	recorder, tp := newRecorder()

	_, span := StartWorkSpan(context.Background(), Tracer(tp), WorkAttributes{
		WorkID:   "id-1",
		WorkName: "resize",
		Priority: "high",
		Queue:    "images",
		Pool:     "pool-a",
		Worker:   3,
	})
	EndSpan(span, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanExecute, ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "id-1", attrs["work.id"])
	assert.Equal(t, "resize", attrs["work.name"])
	assert.Equal(t, "high", attrs["work.priority"])
	assert.Equal(t, "images", attrs["queue.name"])
	assert.Equal(t, "pool-a", attrs["pool.id"])
	assert.Equal(t, "3", attrs["pool.worker"])
}

// TestEndSpan_Error verifies a failure is recorded as an error status with an event
func TestEndSpan_Error(t *testing.T) {
	recorder, tp := newRecorder()

	_, span := StartWorkSpan(context.Background(), Tracer(tp), WorkAttributes{WorkName: "w"})
	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.NotEmpty(t, ended[0].Events())
	_, hasQueue := attrMap(ended[0].Attributes())["queue.name"]
	assert.False(t, hasQueue)
}

func TestEndSpan_Nil(t *testing.T) {
	assert.NotPanics(t, func() {
		EndSpan(nil, errors.New("ignored"))
		var s *Span
		s.SetStatus(nil)
	})
}

// TestNewStdoutProvider verifies spans are written to the supplied writer
func TestNewStdoutProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewStdoutProvider("workqueue-test", "0.0.1", &buf)
	require.NoError(t, err)

	_, span := StartWorkSpan(context.Background(), Tracer(tp), WorkAttributes{WorkName: "stdout"})
	EndSpan(span, nil)
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), SpanExecute)
	assert.Contains(t, buf.String(), "workqueue-test")
}
