package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// CleanupTask asks the cleaner to prune a set of dead registration tokens.
type CleanupTask struct {
	DispatchID string
	Tokens     []string
}

// Cleaner removes permanently invalid tokens from the directory. Tasks are
// either run inline with Clean or queued with Enqueue and drained by the
// worker pool started by Run.
type Cleaner struct {
	store       dispatch.DirectoryStore
	lookupLimit int
	workers     int
	queue       chan CleanupTask
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewCleaner(
	store dispatch.DirectoryStore,
	lookupLimit int,
	queueSize int,
	workers int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Cleaner {
	if lookupLimit <= 0 {
		lookupLimit = DefaultOptions().CleanupLookupLimit
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &Cleaner{
		store:       store,
		lookupLimit: lookupLimit,
		workers:     workers,
		queue:       make(chan CleanupTask, queueSize),
		metrics:     m,
		logger:      logger.With("component", "TokenCleaner"),
	}
}

// Enqueue hands task to the worker pool without blocking. It reports false
// and drops the task when the queue is full.
func (c *Cleaner) Enqueue(task CleanupTask) bool {
	if len(task.Tokens) == 0 {
		return true
	}
	select {
	case c.queue <- task:
		return true
	default:
		c.metrics.IncCleanupDropped()
		c.logger.Warn("Cleanup queue full; dropping task",
			"dispatch_id", task.DispatchID, "tokens", len(task.Tokens))
		return false
	}
}

// Run drains the queue with the configured number of workers until ctx is
// cancelled.
func (c *Cleaner) Run(ctx context.Context) error {
	c.logger.Info("Cleanup workers starting", "workers", c.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case task := <-c.queue:
					if err := c.Clean(gctx, task); err != nil {
						c.logger.Warn("Cleanup task finished with errors",
							"worker", workerID, "dispatch_id", task.DispatchID, "err", err)
					}
				}
			}
		})
	}
	err := g.Wait()
	if pending := len(c.queue); pending > 0 {
		c.logger.Warn("Cleanup workers stopped with pending tasks", "pending", pending)
	}
	c.logger.Info("Cleanup workers stopped")
	return err
}

// Clean clears every user record holding one of the task's tokens. It
// keeps going past individual failures and returns them combined.
func (c *Cleaner) Clean(ctx context.Context, task CleanupTask) error {
	var result *multierror.Error
	cleared := 0

	for _, token := range task.Tokens {
		users, err := c.store.LookupByToken(ctx, token, c.lookupLimit)
		if err != nil {
			c.metrics.IncCleanupFailure()
			result = multierror.Append(result, fmt.Errorf("lookup of token holders failed: %w", err))
			continue
		}
		for _, u := range users {
			if err := c.store.ClearToken(ctx, u.ID); err != nil {
				c.metrics.IncCleanupFailure()
				result = multierror.Append(result, fmt.Errorf("clearing token of user %s failed: %w", u.ID, err))
				continue
			}
			cleared++
		}
	}

	c.metrics.AddTokensCleared(cleared)
	c.logger.Info("Invalid tokens cleaned",
		"dispatch_id", task.DispatchID, "tokens", len(task.Tokens), "users_cleared", cleared)
	return result.ErrorOrNil()
}
