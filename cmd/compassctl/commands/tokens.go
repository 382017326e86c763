package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/workers"
)

func newRefreshTokensCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tokens",
		Short: "Credit the daily token allowance now",
		Long: "Run one token refresh pass over active, discoverable users. The scheduled run in the " +
			"worker is not affected and may credit the same users again on its next tick.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), deps, func(s store.Store) error {
				refresher := workers.NewTokenRefresher(s, compass.NewTokenLedger(s), deps.Compass, deps.Logger)
				report, err := refresher.RefreshTokens(cmd.Context())
				if err != nil {
					return fmt.Errorf("token refresh failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "candidates: %d\ncredited: %d\nskipped: %d\nfailed: %d\n",
					report.Candidates, report.Credited, report.Skipped, report.Failed)
				return nil
			})
		},
	}
}
