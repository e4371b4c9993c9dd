package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// BatchOutcome is the gateway result for one batch, aligned with Tokens.
type BatchOutcome struct {
	Index    int
	Tokens   []string
	Outcomes []dispatch.TokenOutcome
}

// Batcher partitions a token plan into gateway-sized batches.
type Batcher struct {
	gateway     dispatch.Gateway
	batchSize   int
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewBatcher(gateway dispatch.Gateway, batchSize, concurrency int, m *metrics.Metrics, logger *slog.Logger) *Batcher {
	if batchSize <= 0 || batchSize > MaxMulticastTokens {
		batchSize = MaxMulticastTokens
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{
		gateway:     gateway,
		batchSize:   batchSize,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.With("component", "BatchDispatcher"),
	}
}

// SendTokens issues one multicast per batch. The first failed call aborts
// the dispatch: batches not yet started are skipped, and the completed
// batches are returned in batch order together with the fault.
func (b *Batcher) SendTokens(ctx context.Context, msg *dispatch.Message, tokens []string) ([]BatchOutcome, error) {
	batches := chunk(tokens, b.batchSize)
	results := make([]*BatchOutcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return gatewayError(ctx, err, "batch %d not sent", i+1)
			}

			start := time.Now()
			outcomes, err := b.gateway.SendMulticast(gctx, msg, batch)
			b.metrics.ObserveGatewayCall(string(dispatch.ModeTokens), time.Since(start))
			if err != nil {
				b.logger.Error("Multicast batch failed", "batch", i+1, "size", len(batch), "err", err)
				return gatewayError(ctx, err, "multicast batch %d of %d failed", i+1, len(batches))
			}
			if len(outcomes) != len(batch) {
				return newError(KindGatewayFault, nil,
					"multicast batch %d returned %d outcomes for %d tokens", i+1, len(outcomes), len(batch))
			}

			for j := range outcomes {
				outcomes[j].Token = batch[j]
			}
			results[i] = &BatchOutcome{Index: i, Tokens: batch, Outcomes: outcomes}
			b.logger.Debug("Multicast batch sent", "batch", i+1, "size", len(batch))
			return nil
		})
	}
	err := g.Wait()

	completed := make([]BatchOutcome, 0, len(results))
	for _, r := range results {
		if r != nil {
			completed = append(completed, *r)
		}
	}
	return completed, err
}

// SendTopic issues exactly one topic send.
func (b *Batcher) SendTopic(ctx context.Context, msg *dispatch.Message, topic string) (string, error) {
	start := time.Now()
	messageID, err := b.gateway.SendToTopic(ctx, msg, topic)
	b.metrics.ObserveGatewayCall(string(dispatch.ModeTopic), time.Since(start))
	if err != nil {
		b.logger.Error("Topic send failed", "topic", topic, "err", err)
		return "", gatewayError(ctx, err, "topic %s send failed", topic)
	}
	return messageID, nil
}
