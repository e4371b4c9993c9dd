package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// Gateway implements dispatch.Gateway on Firebase Cloud Messaging.
type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

func (g *Gateway) SendMulticast(ctx context.Context, msg *dispatch.Message, tokens []string) ([]dispatch.TokenOutcome, error) {
	multicast := &messaging.MulticastMessage{
		Tokens:       tokens,
		Data:         msg.Data,
		Notification: notificationOf(msg),
		Android:      androidConfig(msg.Android),
		APNS:         apnsConfig(msg.Apple),
	}

	br, err := g.client.SendEachForMulticast(ctx, multicast)
	if err != nil {
		return nil, fmt.Errorf("fcm multicast failed: %w", err)
	}
	if len(br.Responses) != len(tokens) {
		return nil, fmt.Errorf("fcm multicast returned %d responses for %d tokens", len(br.Responses), len(tokens))
	}

	outcomes := make([]dispatch.TokenOutcome, len(br.Responses))
	for i, resp := range br.Responses {
		if resp.Success {
			outcomes[i] = dispatch.TokenOutcome{Success: true, MessageID: resp.MessageID}
			continue
		}
		outcomes[i] = dispatch.TokenOutcome{ErrorCode: classify(resp.Error), Error: errorText(resp.Error)}
	}
	g.logger.Debug("FCM multicast sent", "tokens", len(tokens), "success", br.SuccessCount, "failure", br.FailureCount)
	return outcomes, nil
}

func (g *Gateway) SendToTopic(ctx context.Context, msg *dispatch.Message, topic string) (string, error) {
	id, err := g.client.Send(ctx, &messaging.Message{
		Topic:        topic,
		Data:         msg.Data,
		Notification: notificationOf(msg),
		Android:      androidConfig(msg.Android),
		APNS:         apnsConfig(msg.Apple),
	})
	if err != nil {
		return "", fmt.Errorf("fcm topic send failed: %w", err)
	}
	return id, nil
}

func notificationOf(msg *dispatch.Message) *messaging.Notification {
	return &messaging.Notification{
		Title:    msg.Title,
		Body:     msg.Body,
		ImageURL: msg.ImageURL,
	}
}

func androidConfig(h dispatch.AndroidHints) *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: h.Priority,
		Notification: &messaging.AndroidNotification{
			ChannelID:   h.ChannelID,
			Sound:       h.Sound,
			ClickAction: h.ClickAction,
		},
	}
}

func apnsConfig(h dispatch.AppleHints) *messaging.APNSConfig {
	badge := h.Badge
	cfg := &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:            h.Sound,
				Badge:            &badge,
				ContentAvailable: h.ContentAvailable,
			},
		},
	}
	if h.Priority != "" {
		cfg.Headers = map[string]string{"apns-priority": h.Priority}
	}
	return cfg
}

// classify maps an SDK send error onto the token error codes the engine
// understands. Only the not-registered and invalid-token codes drive token
// cleanup. INVALID_ARGUMENT also covers payload errors (reserved data keys,
// oversized payloads, bad image urls), so it only counts as a bad token when
// the message names the registration token.
func classify(err error) string {
	switch {
	case err == nil:
		return dispatch.ErrorCodeUnknown
	case messaging.IsUnregistered(err):
		return dispatch.ErrorCodeTokenNotRegistered
	case messaging.IsInvalidArgument(err):
		if namesRegistrationToken(err) {
			return dispatch.ErrorCodeInvalidToken
		}
		return dispatch.ErrorCodeInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		return "messaging/mismatched-credential"
	case messaging.IsQuotaExceeded(err):
		return "messaging/message-rate-exceeded"
	case messaging.IsThirdPartyAuthError(err):
		return "messaging/third-party-auth-error"
	case messaging.IsUnavailable(err):
		return "messaging/server-unavailable"
	case messaging.IsInternal(err):
		return "messaging/internal-error"
	default:
		return dispatch.ErrorCodeUnknown
	}
}

func namesRegistrationToken(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "registration token")
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
