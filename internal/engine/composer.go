package engine

import (
	"maps"
	"time"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// Data keys the engine injects into every payload. They override any
// caller-supplied value with the same key.
const (
	DataKeyType   = "type"
	DataKeySentBy = "sentBy"
	DataKeySentAt = "sentAt"

	dataTypePush = "push_notification"
)

// Composer builds the single message shared by all batches of a dispatch.
type Composer struct {
	androidChannelID string
	clickAction      string
	now              func() time.Time
}

func NewComposer(androidChannelID, clickAction string, now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{androidChannelID: androidChannelID, clickAction: clickAction, now: now}
}

func (c *Composer) Compose(callerID string, n dispatch.Notification, data map[string]string) *dispatch.Message {
	merged := make(map[string]string, len(data)+3)
	maps.Copy(merged, data)
	merged[DataKeyType] = dataTypePush
	merged[DataKeySentBy] = callerID
	merged[DataKeySentAt] = c.now().UTC().Format(time.RFC3339)

	msg := &dispatch.Message{
		Title: n.Title,
		Body:  n.Body,
		Data:  merged,
		Android: dispatch.AndroidHints{
			Priority:    "high",
			ChannelID:   c.androidChannelID,
			Sound:       "default",
			ClickAction: c.clickAction,
		},
		Apple: dispatch.AppleHints{
			Sound:            "default",
			Badge:            1,
			ContentAvailable: true,
			Priority:         "10",
		},
	}
	if n.ImageURL != "" {
		msg.ImageURL = n.ImageURL
	}
	return msg
}
