// Package commands implements the compassctl operator commands.
package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/store"
)

// Deps opens the resources a command needs. Commands open them lazily so
// that, for example, resetting a seen set does not require a broker.
type Deps struct {
	OpenStore     func(ctx context.Context) (store.Store, error)
	OpenPublisher func(ctx context.Context) (queue.Publisher, func() error, error)
	Compass       config.Compass
	Logger        *zap.Logger
}

// NewRootCmd builds the compassctl command tree.
func NewRootCmd(deps Deps) *cobra.Command {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	root := &cobra.Command{
		Use:           "compassctl",
		Short:         "Operator tool for the Compass engine",
		Long:          "Run token refreshes and swipe replays by hand, and inspect or reset per-user state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRefreshTokensCmd(deps))
	root.AddCommand(newReplaySwipesCmd(deps))
	root.AddCommand(newSeenCmd(deps))
	root.AddCommand(newStatusCmd(deps))
	return root
}

// withStore opens the store, runs fn and closes it again.
func withStore(ctx context.Context, deps Deps, fn func(s store.Store) error) (err error) {
	s, err := deps.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close store: %w", closeErr)
		}
	}()
	return fn(s)
}

func parseUserFlag(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user %q: %w", raw, err)
	}
	return id, nil
}
