package main

import (
	"context"
	"fmt"
	"slices"

	"cookbooksync/internal/app"
	"cookbooksync/internal/cli"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/utils"

	"github.com/spf13/cobra"
)

var (
	themeModes   = []string{"light", "dark", "system"}
	measurements = []string{"metric", "imperial"}
)

func newPrefsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change user preferences",
	}
	cmd.AddCommand(newPrefsShowCmd(opts))
	cmd.AddCommand(newPrefsSetCmd(opts))
	return cmd
}

// currentPreferences returns the stored preferences, or the defaults
func currentPreferences(ctx context.Context, a *app.App) (entity.Preferences, error) {
	item, found, err := a.Preferences.Get(ctx, entity.PreferencesID)
	if err != nil {
		return entity.Preferences{}, err
	}
	if !found {
		return entity.DefaultPreferences(), nil
	}
	return item.Data, nil
}

func newPrefsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := currentPreferences(ctx, a)
				if err != nil {
					return err
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), p); handled {
					return err
				}
				cli.ShowPreferences(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func newPrefsSetCmd(opts *rootOptions) *cobra.Command {
	var theme, language, measurement, dietary, avoid, avoidOther string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Long: `Change the preferences given as flags; the others are kept.

Examples:
  cookbooksync prefs set --theme dark --language fr
  cookbooksync prefs set --dietary vegetarian,gluten-free`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := cmd.Flags().Changed
			if changed("theme") && !slices.Contains(themeModes, theme) {
				return utils.ErrInvalidFieldValue("theme", theme, themeModes)
			}
			if changed("measurement") && !slices.Contains(measurements, measurement) {
				return utils.ErrInvalidFieldValue("measurement", measurement, measurements)
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := currentPreferences(ctx, a)
				if err != nil {
					return err
				}
				if changed("theme") {
					p.ThemeMode = theme
				}
				if changed("language") {
					p.UserLanguage = language
				}
				if changed("measurement") {
					p.UserMeasurement = measurement
				}
				if changed("dietary") {
					p.UserDietary = utils.SplitList(dietary)
				}
				if changed("avoid") {
					p.UserAvoid = utils.SplitList(avoid)
				}
				if changed("avoid-other") {
					p.UserAvoidOther = avoidOther
				}
				p.UpdatedAt = 0

				ok, err := a.Preferences.UpsertLocal(ctx, p)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change")
					return nil
				}
				a.Mutated(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Preferences updated")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "light, dark or system")
	cmd.Flags().StringVar(&language, "language", "", "language code")
	cmd.Flags().StringVar(&measurement, "measurement", "", "metric or imperial")
	cmd.Flags().StringVar(&dietary, "dietary", "", "comma separated dietary choices")
	cmd.Flags().StringVar(&avoid, "avoid", "", "comma separated ingredients to avoid")
	cmd.Flags().StringVar(&avoidOther, "avoid-other", "", "free text about ingredients to avoid")
	return cmd
}
