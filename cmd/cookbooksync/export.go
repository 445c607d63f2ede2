package main

import (
	"context"
	"encoding/json"
	"fmt"

	"cookbooksync/internal/app"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/sync"

	"github.com/spf13/cobra"
)

// exportData is the document set written by export
type exportData struct {
	Cookbooks   []entity.Cookbook   `json:"cookbooks" yaml:"cookbooks"`
	Recipes     []entity.Recipe     `json:"recipes" yaml:"recipes"`
	Preferences *entity.Preferences `json:"preferences" yaml:"preferences"`
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print every live document as JSON or YAML",
		Long: `Print all cookbooks, recipes and the preferences that are not deleted.

With --legacy the snapshots kept for older readers are printed instead,
exactly as stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if legacy {
					return exportLegacy(ctx, cmd, opts, a)
				}

				var data exportData
				var err error
				if data.Cookbooks, err = a.Cookbooks.List(ctx); err != nil {
					return err
				}
				if data.Recipes, err = a.Recipes.List(ctx); err != nil {
					return err
				}
				prefs, err := a.Preferences.List(ctx)
				if err != nil {
					return err
				}
				if len(prefs) > 0 {
					data.Preferences = &prefs[0]
				}

				if opts.output == "text" {
					opts.output = "json"
				}
				_, err = opts.emit(cmd.OutOrStdout(), data)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&legacy, "legacy", false, "print the legacy snapshots")
	return cmd
}

func exportLegacy(ctx context.Context, cmd *cobra.Command, opts *rootOptions, a *app.App) error {
	snapshots := make(map[string]json.RawMessage)
	for _, keys := range []sync.Keys{sync.CookbookKeys, sync.RecipeKeys, sync.PreferencesKeys} {
		raw, ok, err := a.Store().Get(ctx, keys.Legacy)
		if err != nil {
			return err
		}
		if !ok || !json.Valid([]byte(raw)) {
			raw = "null"
		}
		snapshots[keys.Legacy] = json.RawMessage(raw)
	}

	if opts.output == "yaml" {
		// yaml cannot print raw JSON, decode it first
		decoded := make(map[string]any, len(snapshots))
		for k, v := range snapshots {
			var anyVal any
			if err := json.Unmarshal(v, &anyVal); err != nil {
				return fmt.Errorf("legacy snapshot %s: %w", k, err)
			}
			decoded[k] = anyVal
		}
		_, err := opts.emit(cmd.OutOrStdout(), decoded)
		return err
	}

	saved := opts.output
	opts.output = "json"
	defer func() { opts.output = saved }()
	_, err := opts.emit(cmd.OutOrStdout(), snapshots)
	return err
}
