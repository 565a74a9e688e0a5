// Package roles grants and revokes chat-server roles for verified holders.
package roles

import (
	"context"
	"log/slog"
)

// Grantor applies role changes for a user. Calls are at-least-once: a
// re-verification fires the grant again, and implementations must tolerate
// granting a role the user already holds.
type Grantor interface {
	Grant(ctx context.Context, userID, roleID string) error
	Revoke(ctx context.Context, userID, roleID string) error
}

// Noop is the grantor used when no role backend is configured. It logs the
// would-be change and succeeds.
type Noop struct {
	Logger *slog.Logger
}

func (n Noop) Grant(ctx context.Context, userID, roleID string) error {
	n.Logger.Info("role grant skipped, no grantor configured", "user_id", userID, "role_id", roleID)
	return nil
}

func (n Noop) Revoke(ctx context.Context, userID, roleID string) error {
	n.Logger.Info("role revoke skipped, no grantor configured", "user_id", userID, "role_id", roleID)
	return nil
}
