package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Notification is the user-visible part of a push.
type Notification struct {
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body" validate:"required"`
	ImageURL string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// SendRequest is the parsed body of a bulk dispatch request. Exactly one
// recipient source is used; see the engine for precedence.
//
// Tokens is left loosely typed because callers routinely send arrays that
// contain nulls or non-string values; those entries are dropped during
// planning instead of failing the whole request.
type SendRequest struct {
	Tokens       []any             `json:"tokens,omitempty"`
	UserIDs      []string          `json:"userIds,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// HasTokens reports whether an explicit token array was supplied.
func (r *SendRequest) HasTokens() bool { return len(r.Tokens) > 0 }

// HasTopic reports whether a usable topic name was supplied.
func (r *SendRequest) HasTopic() bool { return strings.TrimSpace(r.Topic) != "" }

// HasUserIDs reports whether user identifiers were supplied.
func (r *SendRequest) HasUserIDs() bool { return len(r.UserIDs) > 0 }

// Validate checks the notification envelope and that at least one
// recipient source is present. It performs no I/O.
func (r *SendRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if strings.TrimSpace(r.Notification.Title) == "" || strings.TrimSpace(r.Notification.Body) == "" {
		return errors.New("notification title and body are required")
	}
	if !r.HasTokens() && !r.HasTopic() && !r.HasUserIDs() {
		return errors.New("one of tokens, topic or userIds is required")
	}
	return nil
}
