// Package pipeline adapts the queued-dispatch Pub/Sub stream to the
// dispatch engine.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// QueuedDispatch is the payload of a queued bulk dispatch. CallerID has
// already been authenticated by the publisher.
type QueuedDispatch struct {
	CallerID string               `json:"callerId"`
	Request  dispatch.SendRequest `json:"request"`
}

// QueuedDispatchTransformer unmarshals a raw message into a QueuedDispatch.
// Malformed payloads are skipped with an error so the StreamingService can
// nack them to the dead-letter topic. Request validation is left to the
// engine.
func QueuedDispatchTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*QueuedDispatch, bool, error) {
	var queued QueuedDispatch
	if err := json.Unmarshal(msg.Payload, &queued); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal queued dispatch from message %s: %w", msg.ID, err)
	}
	if strings.TrimSpace(queued.CallerID) == "" {
		return nil, true, fmt.Errorf("queued dispatch in message %s: %w", msg.ID, errors.New("callerId is required"))
	}
	return &queued, false, nil
}
