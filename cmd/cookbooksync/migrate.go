package main

import (
	"context"
	"fmt"

	"cookbooksync/internal/app"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect the legacy data migration",
		Long: `Report the legacy keys found in the local store and whether the
one-time migration has completed. Every sync runs the migration first until
it has succeeded once; --reset makes the next sync run it again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if reset {
					if err := a.Migration().Reset(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "✓ Migration flag cleared")
				}

				done, err := a.Migration().Done(ctx)
				if err != nil {
					return err
				}
				report, err := a.Migration().Report(ctx)
				if err != nil {
					return err
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), map[string]any{"done": done, "keys": report}); handled {
					return err
				}

				state := "pending"
				if done {
					state = "done"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration: %s\n", state)
				for _, k := range report {
					switch {
					case !k.Present:
						fmt.Fprintf(cmd.OutOrStdout(), "  %-22s absent\n", k.Key)
					case !k.ValidJSON:
						fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %d bytes, not valid JSON\n", k.Key, k.Bytes)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %d bytes\n", k.Key, k.Bytes)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "clear the completion flag")
	return cmd
}
