package main

import (
	"context"
	"fmt"
	"syscall"

	"cookbooksync/internal/app"
	"cookbooksync/internal/credentials"
	"cookbooksync/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the sync server API token",
		Long: `Securely manage the API token used to talk to the sync server.

The token is looked up in priority order:
  1. System keyring (most secure) - recommended
  2. COOKBOOKSYNC_API_TOKEN environment variable (good for CI/CD)

Keyring entries are scoped to the configured server host and the user id.
When the user id is omitted the signed-in user is used.

Examples:
  # Store the token in keyring (interactive prompt)
  cookbooksync credentials set alice --prompt

  # Check where the token comes from
  cookbooksync credentials get

  # Remove the token from keyring
  cookbooksync credentials delete alice`,
	}

	cmd.AddCommand(newCredentialsSetCmd(opts))
	cmd.AddCommand(newCredentialsGetCmd(opts))
	cmd.AddCommand(newCredentialsDeleteCmd(opts))
	return cmd
}

// resolveUID returns args[0], or the signed-in user when no uid is given.
// Without either it asks on stdin.
func resolveUID(a *app.App, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if uid := a.Session().UID(); uid != "" {
		return uid, nil
	}
	uid, err := utils.PromptLine("User id")
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", utils.WrapWithSuggestion(fmt.Errorf("user id is required"), "Pass a user id or sign in with 'cookbooksync login <uid>'")
	}
	return uid, nil
}

func newCredentialsSetCmd(opts *rootOptions) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "set [uid] [token]",
		Short: "Store the API token in system keyring",
		Long: `Store the API token of a user in the system keyring.

If --prompt is specified, the token is read interactively (recommended:
it keeps the token out of your shell history).`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				uid, err := resolveUID(a, args)
				if err != nil {
					return err
				}

				var token string
				switch {
				case prompt:
					fmt.Fprintf(cmd.OutOrStdout(), "Enter API token for %s: ", uid)
					raw, err := term.ReadPassword(int(syscall.Stdin))
					fmt.Fprintln(cmd.OutOrStdout())
					if err != nil {
						return fmt.Errorf("failed to read token: %w", err)
					}
					token = string(raw)
				case len(args) >= 2:
					token = args[1]
				default:
					return fmt.Errorf("token is required (use --prompt for interactive input)")
				}
				if token == "" {
					return fmt.Errorf("token cannot be empty")
				}

				host := a.Resolver().Host()
				if err := credentials.Set(host, uid, token); err != nil {
					if !credentials.IsAvailable() {
						return utils.ErrKeyringUnavailable(err)
					}
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "✓ Token stored for %s", uid)
				if host != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " on %s", host)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "Prompt for the token interactively (recommended)")
	return cmd
}

func newCredentialsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [uid]",
		Short: "Check where the API token comes from",
		Long: `Show which source provides the API token. The token itself is never
printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				uid, err := resolveUID(a, args)
				if err != nil {
					return err
				}

				creds, err := a.Resolver().Resolve(uid)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "✗ No token found for %s\n", uid)
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "✓ Token found for %s\n", uid)
				fmt.Fprintf(cmd.OutOrStdout(), "  Source: %s\n", creds.Source)
				if creds.Source == credentials.SourceEnv {
					fmt.Fprintln(cmd.OutOrStdout(), "\n⚠ Using environment variables")
					fmt.Fprintln(cmd.OutOrStdout(), "  Consider using keyring for better security:")
					fmt.Fprintf(cmd.OutOrStdout(), "    cookbooksync credentials set %s --prompt\n", uid)
				}
				return nil
			})
		},
	}
}

func newCredentialsDeleteCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete [uid]",
		Short: "Remove the API token from system keyring",
		Long: `Remove the stored token from the system keyring. A token exported in
COOKBOOKSYNC_API_TOKEN is not affected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				uid, err := resolveUID(a, args)
				if err != nil {
					return err
				}
				if !force && !utils.PromptYesNo(fmt.Sprintf("Delete the token of %s from keyring?", uid)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
				if err := credentials.Delete(a.Resolver().Host(), uid); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Token removed for %s\n", uid)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	return cmd
}
