package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/workers"
)

func newReplaySwipesCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "replay-swipes",
		Short: "Re-publish learning jobs for swipes that were never learned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStore(ctx, deps, func(s store.Store) error {
				publisher, closePublisher, err := deps.OpenPublisher(ctx)
				if err != nil {
					return fmt.Errorf("failed to connect to queue: %w", err)
				}
				defer func() { _ = closePublisher() }()

				n, err := workers.NewSwipeReplayer(s, publisher, deps.Compass, deps.Logger).ReplayUnlearned(ctx)
				if err != nil {
					return fmt.Errorf("replay stopped after %d jobs: %w", n, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "republished: %d\n", n)
				return nil
			})
		},
	}
}
