// Package tracing decorates a push gateway with OpenTelemetry spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const instrumentationName = "github.com/tinywideclouds/go-bulkpush-service/internal/platform/tracing"

// Gateway wraps another dispatch.Gateway and records one span per call.
type Gateway struct {
	next   dispatch.Gateway
	name   string
	tracer trace.Tracer
}

// NewGateway wraps next. A nil provider uses the global tracer provider.
func NewGateway(next dispatch.Gateway, provider string, tp trace.TracerProvider) *Gateway {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Gateway{next: next, name: provider, tracer: tp.Tracer(instrumentationName)}
}

func (g *Gateway) SendMulticast(ctx context.Context, msg *dispatch.Message, tokens []string) ([]dispatch.TokenOutcome, error) {
	ctx, span := g.tracer.Start(ctx, "push.SendMulticast", trace.WithAttributes(
		attribute.String("push.provider", g.name),
		attribute.Int("push.tokens", len(tokens)),
	))
	defer span.End()

	outcomes, err := g.next.SendMulticast(ctx, msg, tokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	failures := 0
	for _, o := range outcomes {
		if !o.Success {
			failures++
		}
	}
	span.SetAttributes(
		attribute.Int("push.success", len(outcomes)-failures),
		attribute.Int("push.failure", failures),
	)
	return outcomes, nil
}

func (g *Gateway) SendToTopic(ctx context.Context, msg *dispatch.Message, topic string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "push.SendToTopic", trace.WithAttributes(
		attribute.String("push.provider", g.name),
		attribute.String("push.topic", topic),
	))
	defer span.End()

	id, err := g.next.SendToTopic(ctx, msg, topic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}
