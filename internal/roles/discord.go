package roles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pendergraft/holdergate/internal/observability/metrics"
)

// DiscordGrantor applies role changes through the Discord REST API.
type DiscordGrantor struct {
	botToken   string
	guildID    string
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDiscordGrantor creates a grantor for one guild. apiBase is the Discord
// API root and is overridable for tests.
func NewDiscordGrantor(botToken, guildID, apiBase string, logger *slog.Logger) *DiscordGrantor {
	return &DiscordGrantor{
		botToken: botToken,
		guildID:  guildID,
		apiBase:  apiBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Grant adds the role to the guild member. Granting an already-held role is a
// no-op on Discord's side, which is what at-least-once delivery needs.
func (g *DiscordGrantor) Grant(ctx context.Context, userID, roleID string) error {
	return g.call(ctx, http.MethodPut, "grant", userID, roleID)
}

// Revoke removes the role from the guild member.
func (g *DiscordGrantor) Revoke(ctx context.Context, userID, roleID string) error {
	return g.call(ctx, http.MethodDelete, "revoke", userID, roleID)
}

func (g *DiscordGrantor) call(ctx context.Context, method, operation, userID, roleID string) error {
	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", g.apiBase, g.guildID, userID, roleID)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+g.botToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		metrics.RecordRoleCall(operation, "error")
		return fmt.Errorf("role %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordRoleCall(operation, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Error("role call rejected",
			"operation", operation,
			"user_id", userID,
			"role_id", roleID,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return fmt.Errorf("role %s: HTTP %d", operation, resp.StatusCode)
	}

	metrics.RecordRoleCall(operation, "ok")
	return nil
}
