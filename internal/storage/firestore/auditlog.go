package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const AuditCollection = "push_notifications_log"

// AuditLog appends one document per dispatch, keyed by dispatch id.
type AuditLog struct {
	entries *firestore.CollectionRef
}

func NewAuditLog(client *firestore.Client) *AuditLog {
	return &AuditLog{entries: client.Collection(AuditCollection)}
}

// Append creates the entry. Entries are never overwritten; a second append
// with the same dispatch id fails.
func (l *AuditLog) Append(ctx context.Context, entry dispatch.AuditEntry) error {
	if entry.DispatchID == "" {
		return fmt.Errorf("audit entry has no dispatch id")
	}
	if _, err := l.entries.Doc(entry.DispatchID).Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry %s: %w", entry.DispatchID, err)
	}
	return nil
}
