package main

import (
	"github.com/spf13/cobra"

	"sitegate.io/internal/auth"
)

func newResolveCmd(c *cli) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "resolve ROLE",
		Short: "Print the permissions, data scope and cost visibility of a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[0])
			if err != nil {
				return err
			}
			perms, err := auth.Resolve(role, auth.AccessLevel(level))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"role":           perms.Role,
				"access_level":   perms.AccessLevel,
				"permissions":    perms.Actions(),
				"scope":          perms.Scope,
				"can_view_costs": perms.CanViewCosts,
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "access level (portal roles only)")
	return cmd
}
