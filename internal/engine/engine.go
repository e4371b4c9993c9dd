// Package engine implements bulk push dispatch: authorization, recipient
// planning, payload composition, batched sends, aggregation and cleanup of
// invalid tokens.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const sideEffectTimeout = 30 * time.Second

// Deps are the capabilities the engine consumes.
type Deps struct {
	Directory dispatch.DirectoryStore
	Roles     dispatch.RoleStore
	Gateway   dispatch.Gateway
	Audit     dispatch.AuditLog
	// Cleaner is required unless Options.CleanupMode is CleanupDisabled.
	Cleaner *Cleaner
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Engine struct {
	gate     *Gate
	planner  *PlanBuilder
	composer *Composer
	batcher  *Batcher
	audit    dispatch.AuditLog
	cleaner  *Cleaner
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newID    func() string
}

func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Directory == nil || deps.Roles == nil || deps.Gateway == nil || deps.Audit == nil {
		return nil, errors.New("engine requires directory, role store, gateway and audit log")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	opts = opts.withDefaults()
	if opts.CleanupMode != CleanupDisabled && deps.Cleaner == nil {
		return nil, fmt.Errorf("cleanup mode %q requires a cleaner", opts.CleanupMode)
	}

	resolver := NewResolver(deps.Directory, opts.LookupChunkSize, opts.LookupConcurrency)
	return &Engine{
		gate:     NewGate(deps.Directory, deps.Roles, deps.Logger),
		planner:  NewPlanBuilder(resolver),
		composer: NewComposer(opts.AndroidChannelID, opts.ClickAction, time.Now),
		batcher:  NewBatcher(deps.Gateway, opts.BatchSize, opts.BatchConcurrency, deps.Metrics, deps.Logger),
		audit:    deps.Audit,
		cleaner:  deps.Cleaner,
		opts:     opts,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "DispatchEngine"),
		newID:    uuid.NewString,
	}, nil
}

// Dispatch runs one bulk send for callerID.
//
// Rejections (InvalidRequest, CallerNotFound, PermissionDenied) return a
// nil result and happen before any recipient lookup or send. A GatewayFault
// or Timeout returns the partial result for the batches that completed
// together with the error. Per-token failures are reported in the result,
// not as an error.
func (e *Engine) Dispatch(ctx context.Context, callerID string, req *dispatch.SendRequest) (*dispatch.Result, error) {
	if err := req.Validate(); err != nil {
		e.metrics.IncDispatch("", string(KindInvalidRequest))
		return nil, newError(KindInvalidRequest, err, "request rejected")
	}

	if e.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.DispatchTimeout)
		defer cancel()
	}

	if err := e.gate.Authorize(ctx, callerID); err != nil {
		err = deadlineAware(ctx, err)
		e.metrics.IncDispatch("", outcomeOf(err))
		return nil, err
	}

	plan, err := e.planner.Build(ctx, req)
	if err != nil {
		err = deadlineAware(ctx, err)
		e.metrics.IncDispatch("", outcomeOf(err))
		return nil, err
	}

	dispatchID := e.newID()
	logger := e.logger.With("dispatch_id", dispatchID, "caller", callerID, "mode", plan.Mode)
	msg := e.composer.Compose(callerID, req.Notification, req.Data)

	var (
		result   *dispatch.Result
		dead     []string
		failures map[string]int
		sendErr  error
	)
	switch plan.Mode {
	case dispatch.ModeTopic:
		logger.Info("Sending to topic", "topic", plan.Topic)
		result = &dispatch.Result{Mode: dispatch.ModeTopic, Topic: plan.Topic, TotalRecipients: 1,
			MessageIDs: []string{}, FailedTokens: []dispatch.FailedToken{}}
		var messageID string
		messageID, sendErr = e.batcher.SendTopic(ctx, msg, plan.Topic)
		if sendErr == nil {
			result.SuccessCount = 1
			result.MessageIDs = append(result.MessageIDs, messageID)
		} else {
			result.FailureCount = 1
		}

	default:
		if len(plan.Tokens) == 0 {
			logger.Info("No valid tokens found; nothing to send")
		} else {
			logger.Info("Sending to tokens", "tokens", len(plan.Tokens))
		}
		var batches []BatchOutcome
		if len(plan.Tokens) > 0 {
			batches, sendErr = e.batcher.SendTokens(ctx, msg, plan.Tokens)
		}
		folded := aggregate(plan, batches, e.opts.FailureSampleSize)
		result, dead, failures = folded.result, folded.dead, folded.failures
	}

	result.DispatchID = dispatchID
	result.Success = sendErr == nil
	e.record(result, failures, sendErr)
	e.writeAudit(ctx, logger, callerID, req, plan, result, sendErr)
	e.scheduleCleanup(ctx, logger, CleanupTask{DispatchID: dispatchID, Tokens: dead})

	if sendErr != nil {
		logger.Error("Dispatch aborted", "success", result.SuccessCount, "failure", result.FailureCount, "err", sendErr)
		return result, sendErr
	}
	logger.Info("Dispatch complete",
		"recipients", result.TotalRecipients, "success", result.SuccessCount, "failure", result.FailureCount)
	return result, nil
}

// record counts failures from the full per-code tally; FailedTokens is only
// a sample.
func (e *Engine) record(result *dispatch.Result, failures map[string]int, sendErr error) {
	mode := string(result.Mode)
	e.metrics.IncDispatch(mode, outcomeOf(sendErr))
	e.metrics.AddDeliveries(mode, result.SuccessCount)
	for code, n := range failures {
		e.metrics.AddDeliveryFailures(code, n)
	}
}

// writeAudit appends the audit entry. Its failure does not change the
// dispatch outcome because the sends already happened.
func (e *Engine) writeAudit(
	ctx context.Context,
	logger *slog.Logger,
	callerID string,
	req *dispatch.SendRequest,
	plan Plan,
	result *dispatch.Result,
	sendErr error,
) {
	entry := dispatch.AuditEntry{
		DispatchID:      result.DispatchID,
		SentBy:          callerID,
		Title:           req.Notification.Title,
		Body:            req.Notification.Body,
		Mode:            plan.Mode,
		Topic:           plan.Topic,
		TotalRecipients: result.TotalRecipients,
		SuccessCount:    result.SuccessCount,
		FailureCount:    result.FailureCount,
		TargetUserIDs:   plan.UserIDs,
	}
	if sendErr != nil {
		entry.Fault = sendErr.Error()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := e.audit.Append(auditCtx, entry); err != nil {
		e.metrics.IncAuditFailure()
		logger.Error("Failed to write audit entry", "err", err)
	}
}

func (e *Engine) scheduleCleanup(ctx context.Context, logger *slog.Logger, task CleanupTask) {
	if len(task.Tokens) == 0 {
		return
	}
	switch e.opts.CleanupMode {
	case CleanupDisabled:
		logger.Debug("Cleanup disabled; keeping invalid tokens", "tokens", len(task.Tokens))
	case CleanupSync:
		cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		if err := e.cleaner.Clean(cleanCtx, task); err != nil {
			logger.Warn("Token cleanup finished with errors", "err", err)
		}
	default:
		logger.Info("Scheduling invalid token cleanup", "tokens", len(task.Tokens))
		e.cleaner.Enqueue(task)
	}
}

// deadlineAware reports store faults caused by an expired dispatch
// deadline as timeouts.
func deadlineAware(ctx context.Context, err error) error {
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, err, "dispatch deadline exceeded")
	}
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}
