// Package apns provides a push gateway that talks to the Apple Push
// Notification Service directly.
package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// ErrTopicUnsupported is returned for topic sends; APNs has no topic fan-out.
var ErrTopicUnsupported = errors.New("apns gateway does not support topic sends")

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Gateway struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.example.app)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	// Development routes pushes to the sandbox endpoint.
	Development bool
}

// NewGateway parses the P8 key immediately to fail fast on startup if
// credentials are bad.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Development {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return newGateway(client, cfg.BundleID, logger), nil
}

func newGateway(client APNSClient, topic string, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSGateway"),
	}
}

// SendMulticast pushes to each token in turn. The APNs HTTP/2 API is unary,
// so a "multicast" is one request per token over the shared connection.
func (g *Gateway) SendMulticast(ctx context.Context, msg *dispatch.Message, tokens []string) ([]dispatch.TokenOutcome, error) {
	body := buildPayload(msg)
	priority := apns2.PriorityLow
	if msg.Apple.Priority == "10" {
		priority = apns2.PriorityHigh
	}

	outcomes := make([]dispatch.TokenOutcome, len(tokens))
	for i, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("apns batch interrupted after %d of %d tokens: %w", i, len(tokens), err)
		}

		res, err := g.client.PushWithContext(ctx, &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       g.topic,
			Priority:    priority,
			Payload:     body,
		})
		if err != nil {
			g.logger.Warn("APNs transport failed; aborting batch", "sent", i, "tokens", len(tokens), "err", err)
			return nil, fmt.Errorf("apns push failed after %d of %d tokens: %w", i, len(tokens), err)
		}
		if res.Sent() {
			outcomes[i] = dispatch.TokenOutcome{Success: true, MessageID: res.ApnsID}
			continue
		}
		outcomes[i] = dispatch.TokenOutcome{
			ErrorCode: classify(res.Reason),
			Error:     fmt.Sprintf("apns rejected notification: %d %s", res.StatusCode, res.Reason),
		}
	}
	return outcomes, nil
}

func (g *Gateway) SendToTopic(context.Context, *dispatch.Message, string) (string, error) {
	return "", ErrTopicUnsupported
}

func buildPayload(msg *dispatch.Message) *payload.Payload {
	builder := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound(msg.Apple.Sound).
		Badge(msg.Apple.Badge)
	if msg.Apple.ContentAvailable {
		builder.ContentAvailable()
	}
	if msg.ImageURL != "" {
		builder.MutableContent().Custom("imageUrl", msg.ImageURL)
	}
	for k, v := range msg.Data {
		builder.Custom(k, v)
	}
	return builder
}

// classify maps APNs rejection reasons onto the token error codes. Only
// Unregistered and ExpiredToken drive cleanup. BadDeviceToken and
// DeviceTokenNotForTopic are also what a wrong bundle id or a
// sandbox/production mismatch produces for every token, so they keep their
// own code, as does TopicDisallowed.
func classify(reason string) string {
	switch reason {
	case apns2.ReasonUnregistered, apns2.ReasonExpiredToken:
		return dispatch.ErrorCodeTokenNotRegistered
	case "":
		return dispatch.ErrorCodeUnknown
	default:
		return "apns/" + reason
	}
}
