// Package bulkpushservice assembles the HTTP surface, the queued-dispatch
// pipeline and the cleanup workers around one dispatch engine.
package bulkpushservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-bulkpush-service/bulkpushservice/config"
	"github.com/tinywideclouds/go-bulkpush-service/internal/api"
	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/internal/pipeline"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.QueuedDispatch]
	cleaner         *engine.Cleaner
	workerCtx       context.Context
	stopWorkers     context.CancelFunc
	mu              sync.Mutex
	workersDone     chan struct{}
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil, in which case only the
// HTTP endpoint accepts dispatches. cleaner may be nil when cleanup is
// disabled or synchronous.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	eng *engine.Engine,
	cleaner *engine.Cleaner,
	m *metrics.Metrics,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {
	if eng == nil {
		return nil, errors.New("bulk push service requires a dispatch engine")
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[pipeline.QueuedDispatch]
	if consumer != nil {
		processor := pipeline.NewProcessor(eng, logger)
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.QueuedDispatchTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API
	dispatchAPI := api.NewDispatchAPI(eng, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/push/send", dispatchAPI.SendPush)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		cleaner:         cleaner,
		workerCtx:       workerCtx,
		stopWorkers:     stopWorkers,
		logger:          logger,
	}, nil
}

// Start runs the pipeline and the cleanup workers, marks the service ready
// and blocks serving HTTP.
func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Queued dispatch pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}

	if w.cleaner != nil {
		done := make(chan struct{})
		w.mu.Lock()
		w.workersDone = done
		w.mu.Unlock()
		go func() {
			defer close(done)
			if err := w.cleaner.Run(w.workerCtx); err != nil {
				w.logger.Error("Cleanup workers exited with error", "err", err)
			}
		}()
	}

	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

// Shutdown stops intake first, then the cleanup workers, then the HTTP
// server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	w.stopWorkers()
	w.mu.Lock()
	done := w.workersDone
	w.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			w.logger.Warn("Cleanup workers did not stop before shutdown deadline")
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
