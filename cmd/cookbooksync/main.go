package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cookbooksync/internal/app"
	"cookbooksync/internal/config"
	"cookbooksync/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags shared by every command
type rootOptions struct {
	configPath string
	verbose    bool
	output     string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cookbooksync",
		Short: "Offline-first sync for cookbooks, recipes and preferences",
		Long: `cookbooksync keeps a local copy of your cookbooks, recipes and preferences
and synchronizes it with the sync server.

Every change is written locally first and marked dirty. A sync pulls the
remote documents, resolves conflicts by last write wins, then pushes what
is still dirty.

Examples:
  cookbooksync login alice
  cookbooksync cookbook add "Desserts"
  cookbooksync sync
  cookbooksync status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = utils.GetLogger().Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file or directory (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(newSyncCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
	rootCmd.AddCommand(newWhoamiCmd(opts))
	rootCmd.AddCommand(newCookbookCmd(opts))
	rootCmd.AddCommand(newRecipeCmd(opts))
	rootCmd.AddCommand(newPrefsCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newCredentialsCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// load reads the configuration and sets up logging
func (o *rootOptions) load() error {
	switch o.output {
	case "text", "json", "yaml":
	default:
		return utils.ErrInvalidFieldValue("output", o.output, []string{"text", "json", "yaml"})
	}

	path := ""
	if o.configPath != "" {
		path = config.ResolvePath(o.configPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	o.cfg = cfg

	utils.SetVerboseMode(o.verbose || cfg.Log.Verbose)
	if cfg.Log.File != "" {
		if err := utils.GetLogger().SetLogFile(utils.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}); err != nil {
			utils.Warnf("Could not open log file: %v", err)
		}
	}
	return nil
}

// openApp builds the application on the configured local store
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	if o.cfg == nil {
		if err := o.load(); err != nil {
			return nil, err
		}
	}
	return app.NewApp(ctx, o.cfg)
}

// withApp runs fn against an opened application and closes it afterwards
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			utils.Warnf("Shutdown: %v", cerr)
		}
	}()
	return fn(ctx, a)
}

// emit prints data as JSON or YAML when requested. It returns false for
// text output, leaving the rendering to the caller.
func (o *rootOptions) emit(w io.Writer, data any) (bool, error) {
	switch o.output {
	case "json":
		return true, utils.OutputJSON(w, data)
	case "yaml":
		return true, utils.OutputYAML(w, data)
	default:
		return false, nil
	}
}

func main() {
	// A .env next to the binary or in the working dir may carry the token
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
