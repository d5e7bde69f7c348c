package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/metricsd/internal/web/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		orgIDs []int64
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token",
		Long:  "Issue a bearer token for a user and the organizations they belong to, signed with auth.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			token, err := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL).GenerateToken(userID, orgIDs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().Int64SliceVar(&orgIDs, "org", nil, "organization ids")
	cmd.MarkFlagRequired("user")
	return cmd
}
