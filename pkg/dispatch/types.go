// Package dispatch contains the public contracts and domain models for the
// bulk push dispatch service.
package dispatch

import "time"

// PermissionSendPush is the role permission that allows bulk dispatch.
const PermissionSendPush = "send_push_notifications"

// Gateway error classifications that mark a registration token as dead.
const (
	ErrorCodeTokenNotRegistered = "messaging/registration-token-not-registered"
	ErrorCodeInvalidToken       = "messaging/invalid-registration-token"

	// ErrorCodeInvalidArgument is a rejected payload. The token may be fine.
	ErrorCodeInvalidArgument = "messaging/invalid-argument"
	ErrorCodeUnknown         = "unknown"
)

// IsPermanentTokenError reports whether code means the token should be
// removed from the directory.
func IsPermanentTokenError(code string) bool {
	return code == ErrorCodeTokenNotRegistered || code == ErrorCodeInvalidToken
}

// Mode tags how a dispatch addresses its recipients.
type Mode string

const (
	ModeTokens Mode = "tokens"
	ModeTopic  Mode = "topic"
)

// UserRecord is the directory entry for one user. Token is empty when the
// user has no registration token or the stored value is malformed.
type UserRecord struct {
	ID          string
	Token       string
	RoleID      string
	IsSuperUser bool
}

// RoleRecord holds the permission names granted by a role.
type RoleRecord struct {
	ID          string   `json:"id"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the role grants permission.
func (r *RoleRecord) HasPermission(permission string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// AndroidHints carries the Android-specific delivery options.
type AndroidHints struct {
	Priority    string
	ChannelID   string
	Sound       string
	ClickAction string
}

// AppleHints carries the APNs-specific delivery options.
type AppleHints struct {
	Sound            string
	Badge            int
	ContentAvailable bool
	Priority         string
}

// Message is the composed, channel-agnostic payload shared by every batch
// of one dispatch.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
	Android  AndroidHints
	Apple    AppleHints
}

// TokenOutcome is the gateway's result for a single token.
type TokenOutcome struct {
	Token     string
	Success   bool
	MessageID string
	ErrorCode string
	Error     string
}

// FailedToken is the caller-facing view of a failed delivery.
type FailedToken struct {
	Token     string `json:"token"`
	ErrorCode string `json:"errorCode"`
	Error     string `json:"error"`
}

// Result is the aggregate outcome of one dispatch.
type Result struct {
	Success         bool          `json:"success"`
	DispatchID      string        `json:"dispatchId"`
	Mode            Mode          `json:"mode"`
	Topic           string        `json:"topic,omitempty"`
	SuccessCount    int           `json:"successCount"`
	FailureCount    int           `json:"failureCount"`
	TotalRecipients int           `json:"totalRecipients"`
	MessageIDs      []string      `json:"messageIds"`
	FailedTokens    []FailedToken `json:"failedTokens"`
}

// AuditEntry records who sent what to how many recipients. It is written
// once per dispatch and never updated.
type AuditEntry struct {
	DispatchID      string    `firestore:"dispatchId"`
	SentBy          string    `firestore:"sentBy"`
	SentAt          time.Time `firestore:"sentAt,serverTimestamp"`
	Title           string    `firestore:"title"`
	Body            string    `firestore:"body"`
	Mode            Mode      `firestore:"mode"`
	Topic           string    `firestore:"topic,omitempty"`
	TotalRecipients int       `firestore:"totalRecipients"`
	SuccessCount    int       `firestore:"successCount"`
	FailureCount    int       `firestore:"failureCount"`
	TargetUserIDs   []string  `firestore:"targetUserIds,omitempty"`
	Fault           string    `firestore:"fault,omitempty"`
}
