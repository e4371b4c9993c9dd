package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tinywideclouds/go-bulkpush-service/internal/platform/tracing"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

type stubGateway struct {
	outcomes []dispatch.TokenOutcome
	err      error
}

func (s stubGateway) SendMulticast(context.Context, *dispatch.Message, []string) ([]dispatch.TokenOutcome, error) {
	return s.outcomes, s.err
}

func (s stubGateway) SendToTopic(context.Context, *dispatch.Message, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "topic-id", nil
}

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGateway_SendMulticast(t *testing.T) {
	ctx := context.Background()

	t.Run("Records counts on success", func(t *testing.T) {
		recorder, tp := newRecorder()
		gw := tracing.NewGateway(stubGateway{outcomes: []dispatch.TokenOutcome{
			{Success: true}, {ErrorCode: dispatch.ErrorCodeInvalidToken}, {Success: true},
		}}, "fcm", tp)

		outcomes, err := gw.SendMulticast(ctx, &dispatch.Message{}, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Len(t, outcomes, 3)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "push.SendMulticast", spans[0].Name())
		a := attrs(spans[0].Attributes())
		assert.Equal(t, "fcm", a["push.provider"].AsString())
		assert.Equal(t, int64(3), a["push.tokens"].AsInt64())
		assert.Equal(t, int64(2), a["push.success"].AsInt64())
		assert.Equal(t, int64(1), a["push.failure"].AsInt64())
	})

	t.Run("Marks span as error on fault", func(t *testing.T) {
		recorder, tp := newRecorder()
		gw := tracing.NewGateway(stubGateway{err: errors.New("unavailable")}, "fcm", tp)

		_, err := gw.SendMulticast(ctx, &dispatch.Message{}, []string{"a"})
		require.Error(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "unavailable", spans[0].Status().Description)
	})
}

func TestGateway_SendToTopic(t *testing.T) {
	recorder, tp := newRecorder()
	gw := tracing.NewGateway(stubGateway{}, "fcm", tp)

	id, err := gw.SendToTopic(context.Background(), &dispatch.Message{}, "news")
	require.NoError(t, err)
	assert.Equal(t, "topic-id", id)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "news", attrs(spans[0].Attributes())["push.topic"].AsString())
}
