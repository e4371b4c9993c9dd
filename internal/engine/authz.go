package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// Gate decides whether a caller may run a bulk dispatch.
type Gate struct {
	users  dispatch.DirectoryStore
	roles  dispatch.RoleStore
	logger *slog.Logger
}

func NewGate(users dispatch.DirectoryStore, roles dispatch.RoleStore, logger *slog.Logger) *Gate {
	return &Gate{
		users:  users,
		roles:  roles,
		logger: logger.With("component", "AuthorizationGate"),
	}
}

// Authorize grants superusers, and otherwise requires the caller's role to
// hold the send-push permission.
func (g *Gate) Authorize(ctx context.Context, callerID string) error {
	if callerID == "" {
		return newError(KindCallerNotFound, nil, "caller identity is empty")
	}

	caller, err := g.users.GetUser(ctx, callerID)
	if err != nil {
		return fmt.Errorf("failed to load caller %s: %w", callerID, err)
	}
	if caller == nil {
		return newError(KindCallerNotFound, nil, "caller %s has no user record", callerID)
	}
	if caller.IsSuperUser {
		g.logger.Debug("Caller granted as superuser", "caller", callerID)
		return nil
	}

	if caller.RoleID != "" {
		role, err := g.roles.GetRole(ctx, caller.RoleID)
		if err != nil {
			return fmt.Errorf("failed to load role %s: %w", caller.RoleID, err)
		}
		if role.HasPermission(dispatch.PermissionSendPush) {
			return nil
		}
	}

	g.logger.Warn("Caller lacks push permission", "caller", callerID, "role", caller.RoleID)
	return newError(KindPermissionDenied, nil, "caller %s may not send push notifications", callerID)
}
