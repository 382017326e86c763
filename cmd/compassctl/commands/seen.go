package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/compass/internal/store"
)

func newSeenCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Manage a user's seen candidates",
	}
	cmd.AddCommand(newSeenResetCmd(deps))
	return cmd
}

func newSeenResetCmd(deps Deps) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the seen set so candidates can be shown again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUserFlag(user)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), deps, func(s store.Store) error {
				removed, err := s.ResetSeen(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("failed to reset seen set: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d seen entries for %s\n", removed, userID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	return cmd
}
