package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store"
)

type userStatus struct {
	*compass.VectorStatus
	Seen            int `json:"seen"`
	PendingRequests int `json:"pendingRequests"`
	Swipes          int `json:"swipes"`
}

func newStatusCmd(deps Deps) *cobra.Command {
	var (
		user   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's vector, token and swipe state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUserFlag(user)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withStore(ctx, deps, func(s store.Store) error {
				embedder := compass.NewVectorizer(deps.Compass.VectorDimension)
				vs, err := compass.NewProfileService(s, embedder, deps.Compass, deps.Logger).Status(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to load status: %w", err)
				}
				seen, err := s.ListSeen(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to list seen: %w", err)
				}
				pending, err := s.ListPendingRequests(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to list pending requests: %w", err)
				}
				swipes, err := s.ListSwipes(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to list swipes: %w", err)
				}
				st := userStatus{VectorStatus: vs, Seen: len(seen), PendingRequests: len(pending), Swipes: len(swipes)}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				fmt.Fprintf(out, "user: %s\n", userID)
				fmt.Fprintf(out, "initialized: %t\n", st.Initialized)
				fmt.Fprintf(out, "vector length: %d\n", st.VectorLength)
				fmt.Fprintf(out, "tokens: %d\n", st.ConnectionTokens)
				fmt.Fprintf(out, "discoverable: %t\n", st.Discoverable)
				fmt.Fprintf(out, "swipes: %d\nseen: %d\npending requests: %d\n", st.Swipes, st.Seen, st.PendingRequests)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
