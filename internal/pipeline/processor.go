package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// Dispatcher is the engine operation the processor drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, callerID string, req *dispatch.SendRequest) (*dispatch.Result, error)
}

// NewProcessor runs one dispatch per queued message.
//
// Classified outcomes are acked: rejections will not succeed on redelivery,
// and a gateway fault may already have delivered some batches. Only an
// unclassified fault that happened before anything was sent (e.g. the
// directory being unavailable) is returned for redelivery.
func NewProcessor(dispatcher Dispatcher, logger *slog.Logger) messagepipeline.StreamProcessor[QueuedDispatch] {
	logger = logger.With("component", "QueuedDispatchProcessor")

	return func(ctx context.Context, original messagepipeline.Message, queued *QueuedDispatch) error {
		procLogger := logger.With("caller", queued.CallerID, "pubsub_msg_id", original.ID)

		result, err := dispatcher.Dispatch(ctx, queued.CallerID, &queued.Request)
		if err != nil {
			kind := engine.KindOf(err)
			if kind == "" && result == nil {
				procLogger.Error("Queued dispatch failed before sending; will retry", "err", err)
				return err
			}
			args := []any{"kind", kind, "err", err}
			if result != nil {
				args = append(args, "dispatch_id", result.DispatchID,
					"success", result.SuccessCount, "failure", result.FailureCount)
			}
			procLogger.Warn("Queued dispatch did not complete; dropping", args...)
			return nil
		}

		procLogger.Info("Queued dispatch complete",
			"dispatch_id", result.DispatchID,
			"mode", result.Mode,
			"recipients", result.TotalRecipients,
			"success", result.SuccessCount,
			"failure", result.FailureCount)
		return nil
	}
}
