package dispatch

import (
	"context"
)

// DirectoryStore defines the contract for the user directory that holds
// each user's current device registration token.
type DirectoryStore interface {
	// GetUser loads a single user record. It returns (nil, nil) when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// LookupByIDs loads the records for a chunk of user ids. Missing users
	// are omitted; results follow the order of ids.
	LookupByIDs(ctx context.Context, userIDs []string) ([]UserRecord, error)

	// LookupByToken returns at most limit users currently holding token.
	LookupByToken(ctx context.Context, token string, limit int) ([]UserRecord, error)

	// ClearToken removes the registration token field from a user record.
	ClearToken(ctx context.Context, userID string) error
}

// RoleStore is read-only from the dispatcher's point of view.
type RoleStore interface {
	// GetRole returns (nil, nil) when the role does not exist.
	GetRole(ctx context.Context, roleID string) (*RoleRecord, error)
}

// Gateway defines the contract for a push provider (e.g. FCM) that can
// deliver one composed message to many tokens or to a topic.
type Gateway interface {
	// SendMulticast delivers msg to every token in one call. The returned
	// outcomes are aligned positionally with tokens. A non-nil error means
	// the call itself failed and no outcome is available.
	SendMulticast(ctx context.Context, msg *Message, tokens []string) ([]TokenOutcome, error)

	// SendToTopic delivers msg to a topic and returns the delivery receipt id.
	SendToTopic(ctx context.Context, msg *Message, topic string) (string, error)
}

// AuditLog is an append-only record of completed dispatches.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}
