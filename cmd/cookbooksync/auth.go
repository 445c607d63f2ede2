package main

import (
	"context"
	"fmt"

	"cookbooksync/internal/app"
	"cookbooksync/internal/identity"
	"cookbooksync/internal/utils"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var anonymous bool

	cmd := &cobra.Command{
		Use:   "login <uid>",
		Short: "Sign in as a user and sync their data",
		Long: `Sign in as <uid>. Changing the signed-in user always triggers a sync,
regardless of the minimum interval, so the new user's data is pulled.

The API token is looked up in the system keyring, then in
COOKBOOKSYNC_API_TOKEN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				uid := args[0]
				if a.RemoteConfigured() {
					if _, err := a.Resolver().Resolve(uid); err != nil {
						utils.Warnf("%v", utils.ErrTokenNotFound(uid))
					}
				}

				if err := a.Session().SignIn(ctx, identity.User{UID: uid, IsAnonymous: anonymous}); err != nil {
					return err
				}
				a.Orchestrator().Wait()

				fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s\n", uid)
				if err := a.Orchestrator().LastErr(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "⚠ Initial sync had errors: %v\n", app.Explain(err))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "mark the session as anonymous")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; local data is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				uid := a.Session().UID()
				if uid == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := a.Session().SignOut(ctx); err != nil {
					return err
				}
				a.Orchestrator().Wait()
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed out %s\n", uid)
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				user := a.Session().CurrentUser()
				if handled, err := opts.emit(cmd.OutOrStdout(), user); handled {
					return err
				}
				if user == nil {
					return utils.ErrNotSignedIn()
				}
				suffix := ""
				if user.IsAnonymous {
					suffix = " (anonymous)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", user.UID, suffix)
				return nil
			})
		},
	}
}
