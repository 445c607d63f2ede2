package main

import (
	"context"
	"errors"
	"fmt"

	"cookbooksync/internal/app"
	"cookbooksync/internal/cli"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/sync"
	"cookbooksync/internal/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCookbookCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cookbook",
		Aliases: []string{"cookbooks", "cb"},
		Short:   "Manage cookbooks",
		Long: `Create, rename, delete and list cookbooks. Changes are stored locally
and pushed by the next sync; with sync.auto_sync enabled a sync is requested
right away.`,
	}

	cmd.AddCommand(newCookbookAddCmd(opts))
	cmd.AddCommand(newCookbookRenameCmd(opts))
	cmd.AddCommand(newCookbookRmCmd(opts))
	cmd.AddCommand(newCookbookLsCmd(opts))
	return cmd
}

func newCookbookAddCmd(opts *rootOptions) *cobra.Command {
	var id, image string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a cookbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, found, err := a.Cookbooks.Get(ctx, id); err != nil {
					return err
				} else if found {
					return fmt.Errorf("cookbook %s already exists", id)
				}

				if _, err := a.Cookbooks.UpsertLocal(ctx, entity.Cookbook{ID: id, Name: args[0], ImageURL: image}); err != nil {
					return err
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Created cookbook %q (%s)\n", args[0], id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "cookbook id (default: a new UUID)")
	cmd.Flags().StringVar(&image, "image", "", "cover image URL")
	return cmd
}

func newCookbookRenameCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a cookbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cb, err := liveCookbook(ctx, a, args[0])
				if err != nil {
					return err
				}
				cb.Name = args[1]
				cb.UpdatedAt = 0

				changed, err := a.Cookbooks.UpsertLocal(ctx, cb)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change")
					return nil
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed cookbook %s to %q\n", cb.ID, cb.Name)
				return nil
			})
		},
	}
	cmd.ValidArgsFunction = cli.CookbookCompletion(func() (*app.App, error) {
		return opts.openApp(context.Background())
	})
	return cmd
}

func newCookbookRmCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a cookbook",
		Long: `Soft-delete a cookbook. The deletion is synced to other devices; the
recipes filed in it are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cb, err := liveCookbook(ctx, a, args[0])
				if err != nil {
					return err
				}
				if !yes && !utils.PromptYesNo(fmt.Sprintf("Delete cookbook %q?", cb.Name)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
				if _, err := a.Cookbooks.DeleteLocal(ctx, cb.ID); err != nil {
					return notFound(err, "cookbooks", cb.ID)
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted cookbook %q\n", cb.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.ValidArgsFunction = cli.CookbookCompletion(func() (*app.App, error) {
		return opts.openApp(context.Background())
	})
	return cmd
}

func newCookbookLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cookbooks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cookbooks, err := a.Cookbooks.List(ctx)
				if err != nil {
					return err
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), cookbooks); handled {
					return err
				}
				recipes, err := a.Recipes.List(ctx)
				if err != nil {
					return err
				}
				cli.ShowCookbooks(cmd.OutOrStdout(), cookbooks, recipes)
				return nil
			})
		},
	}
}

// liveCookbook returns the cookbook id unless it is missing or deleted
func liveCookbook(ctx context.Context, a *app.App, id string) (entity.Cookbook, error) {
	item, found, err := a.Cookbooks.Get(ctx, id)
	if err != nil {
		return entity.Cookbook{}, err
	}
	if !found || item.Data.IsDeleted {
		return entity.Cookbook{}, utils.ErrEntityNotFound("cookbooks", id)
	}
	return item.Data, nil
}

// notFound maps the module's ErrNotFound to the user facing error
func notFound(err error, entityName, id string) error {
	if errors.Is(err, sync.ErrNotFound) {
		return utils.ErrEntityNotFound(entityName, id)
	}
	return err
}
