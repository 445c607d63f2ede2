package main

import (
	"errors"
	"fmt"
	"os"

	"cookbooksync/internal/config"
	"cookbooksync/internal/utils"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigPathCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	return cmd
}

// configFile is the file --config points at, or the default location
func (o *rootOptions) configFile() (string, error) {
	if o.configPath != "" {
		return config.ResolvePath(o.configPath), nil
	}
	return config.GetConfigPath()
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the sample configuration",
		Args:  cobra.NoArgs,

		// Works even when the current file does not load
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },

		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configFile()
			if err != nil {
				return err
			}
			if err := config.WriteSample(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
			fmt.Fprintln(cmd.OutOrStdout(), "  1. Set remote.base_url to your sync server")
			fmt.Fprintln(cmd.OutOrStdout(), "  2. Store your token: cookbooksync credentials set <uid> --prompt")
			fmt.Fprintln(cmd.OutOrStdout(), "  3. Sign in: cookbooksync login <uid>")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,

		// Works even when the current file does not load
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },

		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, environment overrides included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, err := opts.configFile(); err == nil {
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%v\n\nShowing built-in defaults.\n\n", utils.ErrConfigFileNotFound(path))
				}
			}

			format := opts.output
			if format == "text" {
				opts.output = "yaml"
				defer func() { opts.output = format }()
			}
			_, err := opts.emit(cmd.OutOrStdout(), opts.cfg)
			return err
		},
	}
}
