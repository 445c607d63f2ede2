package main

import (
	"context"
	"fmt"
	"time"

	"cookbooksync/internal/app"
	"cookbooksync/internal/cli"
	"cookbooksync/internal/sync"
	"cookbooksync/internal/utils"

	"github.com/spf13/cobra"
)

func reasonNames() []string {
	names := make([]string, 0, len(sync.Reasons))
	for _, r := range sync.Reasons {
		names = append(names, string(r))
	}
	return names
}

// newSyncCmd creates the sync command
func newSyncCmd(opts *rootOptions) *cobra.Command {
	var force bool
	var reasonName string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local data with the sync server",
		Long: `Run one sync: the legacy migration check, then pull and push for
cookbooks, recipes and preferences, in that order.

A manual sync always runs. Other reasons honour the minimum interval
between runs unless --force is given.

Examples:
  cookbooksync sync
  cookbooksync sync --reason foreground
  cookbooksync sync --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, err := sync.ParseReason(reasonName)
			if err != nil {
				return utils.ErrInvalidFieldValue("reason", reasonName, reasonNames())
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Session().UID() == "" {
					return utils.ErrNotSignedIn()
				}
				out, err := a.Sync(ctx, reason, force)
				if err != nil {
					return err
				}
				if out == sync.OutcomeThrottled {
					// Nothing else keeps this process alive for the timer
					fmt.Fprintf(cmd.OutOrStdout(), "Sync throttled: last run was less than %s ago (use --force)\n", a.Config().MinInterval())
					return nil
				}

				status := a.Orchestrator().Status()
				if handled, err := opts.emit(cmd.OutOrStdout(), status); handled {
					return err
				}
				if status.LastError != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "⚠ Sync %s with errors: %v\n", out, app.Explain(a.Orchestrator().LastErr()))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Sync %s (%s)\n", out, reason)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the minimum interval between runs")
	cmd.Flags().StringVarP(&reasonName, "reason", "r", string(sync.ReasonManual), "trigger reason to record")
	_ = cmd.RegisterFlagCompletionFunc("reason", cli.ReasonCompletion(reasonNames()))

	return cmd
}

// newStatusCmd creates the status command
func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Display the signed-in user, the last sync time, the migration state
and per-entity counts of dirty, deleted and never synced records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Report(ctx)
				if err != nil {
					return err
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), report); handled {
					return err
				}
				cli.ShowReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

// newWatchCmd creates the watch command, a foreground loop syncing on a timer
func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing periodically until interrupted",
		Long: `Run a startup sync, then an interval sync on every tick until
interrupted. Runs requested too soon after the previous one are held until
the minimum interval has passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if interval <= 0 {
					interval = a.Config().WatchInterval()
				}
				if !a.RemoteConfigured() {
					return utils.ErrRemoteNotConfigured()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watching, syncing every %s (Ctrl+C to stop)\n", interval)
				return watchLoop(ctx, a, interval)
			})
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "time between syncs (default: sync.watch_interval_seconds)")
	return cmd
}

// watchLoop requests a startup run and then one interval run per tick
func watchLoop(ctx context.Context, a *app.App, interval time.Duration) error {
	request := func(reason sync.Reason) {
		out, err := a.Sync(ctx, reason, false)
		if err != nil {
			utils.Errorf("Sync (%s) failed: %v", reason, err)
			return
		}
		utils.Debugf("Sync (%s) %s", reason, out)
	}

	request(sync.ReasonStartup)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			request(sync.ReasonInterval)
		}
	}
}
