package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/obs"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, verify and revoke portal session tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(c), newTokenVerifyCmd(c), newTokenRevokeCmd(c))
	return cmd
}

func newTokenIssueCmd(c *cli) *cobra.Command {
	var (
		portalName string
		id         auth.Identity
		role       string
		level      string
		projects   []string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a session token for a portal principal",
		Example: `  sitegatectl token issue --portal client --sub cli-1 --email owner@acme.example \
    --level approver --company cmp-acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.portal(portalName)
			if err != nil {
				return err
			}
			codec, err := c.codec(portalName)
			if err != nil {
				return err
			}
			id.Role = pc.Role()
			if role != "" {
				r, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				if r != id.Role {
					return fmt.Errorf("role %s cannot sign in to the %s portal", r, pc.Name)
				}
			}
			id.AccessLevel = auth.AccessLevel(strings.ToLower(strings.TrimSpace(level)))
			id.ProjectIDs = projects
			if _, err := auth.Resolve(id.Role, id.AccessLevel); err != nil {
				return err
			}

			token, sess, err := codec.Issue(id)
			if err != nil {
				return err
			}
			c.log.Info("token issued",
				obs.Portal(pc.Name),
				obs.PrincipalID(sess.SubjectID),
				obs.SessionID(sess.SessionID),
				zap.Time("expires_at", sess.ExpiresAt),
			)
			return printJSON(cmd.OutOrStdout(), map[string]any{"token": token, "session": sess})
		},
	}
	f := cmd.Flags()
	f.StringVar(&portalName, "portal", "client", "portal to sign for (client or subcontractor)")
	f.StringVar(&id.SubjectID, "sub", "", "subject id")
	f.StringVar(&id.Email, "email", "", "subject email")
	f.StringVar(&id.Name, "name", "", "display name")
	f.StringVar(&role, "role", "", "role; must match the portal when set")
	f.StringVar(&level, "level", string(auth.AccessViewOnly), "access level")
	f.StringVar(&id.CompanyID, "company", "", "company id (client principals)")
	f.StringSliceVar(&projects, "projects", nil, "assigned project ids (subcontractor principals)")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenVerifyCmd(c *cli) *cobra.Command {
	var portalName string
	cmd := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify a token against a portal and print its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := c.codec(portalName)
			if err != nil {
				return err
			}
			sess, err := codec.Verify(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			perms, err := auth.Resolve(sess.Role, sess.AccessLevel)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"session":        sess,
				"permissions":    perms.Actions(),
				"scope":          perms.Scope,
				"can_view_costs": perms.CanViewCosts,
			})
		},
	}
	cmd.Flags().StringVar(&portalName, "portal", "client", "portal the token was issued for")
	return cmd
}

func newTokenRevokeCmd(c *cli) *cobra.Command {
	var portalName string
	cmd := &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke the session behind a token and its refreshed siblings (needs Redis)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.revocations == nil {
				return errors.New("revocation needs a shared store: set SITEGATE_REDIS_ADDR")
			}
			codec, err := c.codec(portalName)
			if err != nil {
				return err
			}
			sess, err := codec.Verify(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			if err := codec.Revoke(cmd.Context(), sess); err != nil {
				return err
			}
			c.log.Info("session revoked", obs.Portal(portalName), obs.SessionID(sess.SessionID))
			return printJSON(cmd.OutOrStdout(), map[string]any{"revoked": sess.SessionID})
		},
	}
	cmd.Flags().StringVar(&portalName, "portal", "client", "portal the token was issued for")
	return cmd
}
