package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

func makeTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%04d", i)
	}
	return tokens
}

func TestBatcher_SendTokens(t *testing.T) {
	ctx := context.Background()
	msg := &dispatch.Message{Title: "t", Body: "b"}

	for _, tc := range []struct {
		name        string
		length      int
		batchSize   int
		concurrency int
		wantCalls   int
	}{
		{"single partial batch", 3, 500, 1, 1},
		{"exact multiple", 1000, 500, 1, 2},
		{"ceil division", 1001, 500, 1, 3},
		{"small batches in parallel", 23, 5, 4, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			batcher := NewBatcher(gw, tc.batchSize, tc.concurrency, nil, newTestLogger())
			tokens := makeTokens(tc.length)

			batches, err := batcher.SendTokens(ctx, msg, tokens)

			require.NoError(t, err)
			assert.Equal(t, tc.wantCalls, gw.callCount())
			require.Len(t, batches, tc.wantCalls)

			var flat []dispatch.TokenOutcome
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				assert.LessOrEqual(t, len(b.Tokens), tc.batchSize)
				flat = append(flat, b.Outcomes...)
			}
			require.Len(t, flat, tc.length)
			for i, o := range flat {
				assert.Equal(t, tokens[i], o.Token)
				assert.Equal(t, "msg-"+tokens[i], o.MessageID)
			}
		})
	}

	t.Run("Batch size above provider ceiling is clamped", func(t *testing.T) {
		gw := &fakeGateway{}
		batcher := NewBatcher(gw, 10_000, 1, nil, newTestLogger())
		_, err := batcher.SendTokens(ctx, msg, makeTokens(501))
		require.NoError(t, err)
		assert.Equal(t, 2, gw.callCount())
	})

	t.Run("Gateway fault aborts remaining batches", func(t *testing.T) {
		gw := &fakeGateway{failOnCall: 2, failWith: errors.New("connection reset")}
		batcher := NewBatcher(gw, 2, 1, nil, newTestLogger())

		batches, err := batcher.SendTokens(ctx, msg, makeTokens(7))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGatewayFault)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, 2, gw.callCount(), "no batch may start after the fault")
		require.Len(t, batches, 1)
		assert.Equal(t, []string{"tok-0000", "tok-0001"}, batches[0].Tokens)
	})

	t.Run("Misaligned outcome count is a fault", func(t *testing.T) {
		batcher := NewBatcher(shortGateway{}, 10, 1, nil, newTestLogger())
		_, err := batcher.SendTokens(ctx, msg, makeTokens(3))
		assert.ErrorIs(t, err, ErrGatewayFault)
	})
}

func TestBatcher_SendTopic(t *testing.T) {
	ctx := context.Background()
	msg := &dispatch.Message{Title: "t", Body: "b"}

	t.Run("One call", func(t *testing.T) {
		gw := &fakeGateway{}
		id, err := NewBatcher(gw, 500, 1, nil, newTestLogger()).SendTopic(ctx, msg, "news")
		require.NoError(t, err)
		assert.Equal(t, "topic-msg-1", id)
		assert.Equal(t, []string{"news"}, gw.topicCalls)
	})

	t.Run("Failure is a gateway fault", func(t *testing.T) {
		gw := &fakeGateway{topicErr: errors.New("quota")}
		_, err := NewBatcher(gw, 500, 1, nil, newTestLogger()).SendTopic(ctx, msg, "news")
		assert.ErrorIs(t, err, ErrGatewayFault)
	})
}

// shortGateway returns one outcome fewer than requested.
type shortGateway struct{}

func (shortGateway) SendMulticast(_ context.Context, _ *dispatch.Message, tokens []string) ([]dispatch.TokenOutcome, error) {
	return make([]dispatch.TokenOutcome, len(tokens)-1), nil
}

func (shortGateway) SendToTopic(context.Context, *dispatch.Message, string) (string, error) {
	return "", nil
}
