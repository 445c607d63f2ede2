package main

import (
	"context"
	"fmt"
	"strings"

	"cookbooksync/internal/app"
	"cookbooksync/internal/cli"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// recipeFlags are the editable recipe fields shared by add and edit
type recipeFlags struct {
	id          string
	image       string
	cookbooks   string
	difficulty  string
	minutes     int
	servings    int
	cost        string
	ingredients []string
	steps       []string
	tags        string
}

func (f *recipeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.image, "image", "", "image URL")
	cmd.Flags().StringVarP(&f.cookbooks, "cookbooks", "c", "", "comma separated cookbook ids")
	cmd.Flags().StringVarP(&f.difficulty, "difficulty", "d", "", "easy, medium or hard")
	cmd.Flags().IntVarP(&f.minutes, "minutes", "m", 0, "cooking time in minutes")
	cmd.Flags().IntVarP(&f.servings, "servings", "s", 0, "number of servings")
	cmd.Flags().StringVar(&f.cost, "cost", "", "cost, as a number or a label such as $$")
	cmd.Flags().StringArrayVarP(&f.ingredients, "ingredient", "i", nil, `ingredient as "name[;quantity[;unit]]", repeatable`)
	cmd.Flags().StringArrayVar(&f.steps, "step", nil, "preparation step, repeatable")
	cmd.Flags().StringVarP(&f.tags, "tags", "t", "", "comma separated tags")
}

// apply copies the flags the user set onto r
func (f *recipeFlags) apply(cmd *cobra.Command, r *entity.Recipe) error {
	changed := cmd.Flags().Changed

	if changed("image") {
		r.ImageURL = f.image
	}
	if changed("cookbooks") {
		r.CookbookIDs = utils.SplitList(f.cookbooks)
	}
	if changed("difficulty") {
		if err := utils.ValidateDifficulty(f.difficulty); err != nil {
			return err
		}
		r.Difficulty = strings.ToLower(strings.TrimSpace(f.difficulty))
	}
	if changed("minutes") {
		if err := utils.ValidateNonNegative("minutes", f.minutes); err != nil {
			return err
		}
		r.CookingTimeMinutes = &f.minutes
	}
	if changed("servings") {
		if err := utils.ValidateNonNegative("servings", f.servings); err != nil {
			return err
		}
		r.Servings = &f.servings
	}
	if changed("cost") {
		r.Cost = f.cost
	}
	if changed("ingredient") {
		r.Ingredients = parseIngredients(f.ingredients)
	}
	if changed("step") {
		r.Steps = f.steps
	}
	if changed("tags") {
		r.Tags = utils.SplitList(f.tags)
	}
	return nil
}

// parseIngredients reads "name;quantity;unit" values
func parseIngredients(values []string) []entity.Ingredient {
	out := make([]entity.Ingredient, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ";", 3)
		ing := entity.Ingredient{Name: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			ing.Quantity = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			ing.Unit = strings.TrimSpace(parts[2])
		}
		out = append(out, ing)
	}
	return out
}

func newRecipeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recipe",
		Aliases: []string{"recipes"},
		Short:   "Manage recipes",
	}

	cmd.AddCommand(newRecipeAddCmd(opts))
	cmd.AddCommand(newRecipeEditCmd(opts))
	cmd.AddCommand(newRecipeRmCmd(opts))
	cmd.AddCommand(newRecipeLsCmd(opts))
	cmd.AddCommand(newRecipeShowCmd(opts))
	return cmd
}

func newRecipeAddCmd(opts *rootOptions) *cobra.Command {
	flags := &recipeFlags{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a recipe",
		Long: `Create a recipe.

Examples:
  cookbooksync recipe add "Pancakes" -c <cookbook-id> -d easy -m 20 -s 4 \
    -i "flour;250;g" -i "milk;500;ml" --step "Mix" --step "Fry"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := entity.Recipe{ID: flags.id, Title: args[0]}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			if err := flags.apply(cmd, &r); err != nil {
				return err
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, found, err := a.Recipes.Get(ctx, r.ID); err != nil {
					return err
				} else if found {
					return fmt.Errorf("recipe %s already exists", r.ID)
				}
				if err := checkCookbooks(ctx, a, r.CookbookIDs); err != nil {
					return err
				}

				if _, err := a.Recipes.UpsertLocal(ctx, r); err != nil {
					return err
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Created recipe %q (%s)\n", r.Title, r.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "recipe id (default: a new UUID)")
	flags.register(cmd)
	return cmd
}

func newRecipeEditCmd(opts *rootOptions) *cobra.Command {
	flags := &recipeFlags{}
	var title string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a recipe",
		Long: `Change the fields given as flags; the others are kept.

Examples:
  cookbooksync recipe edit <id> --title "Fluffy pancakes" -s 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := liveRecipe(ctx, a, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					r.Title = title
				}
				if err := flags.apply(cmd, &r); err != nil {
					return err
				}
				if err := checkCookbooks(ctx, a, r.CookbookIDs); err != nil {
					return err
				}
				r.UpdatedAt = 0

				changed, err := a.Recipes.UpsertLocal(ctx, r)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change")
					return nil
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated recipe %q\n", r.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	flags.register(cmd)
	return cmd
}

func newRecipeRmCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a recipe",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := liveRecipe(ctx, a, args[0])
				if err != nil {
					return err
				}
				if !yes && !utils.PromptYesNo(fmt.Sprintf("Delete recipe %q?", r.Title)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
				if _, err := a.Recipes.DeleteLocal(ctx, r.ID); err != nil {
					return notFound(err, "recipes", r.ID)
				}
				a.Mutated(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted recipe %q\n", r.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newRecipeLsCmd(opts *rootOptions) *cobra.Command {
	var cookbookID string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List recipes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				recipes, err := a.Recipes.List(ctx)
				if err != nil {
					return err
				}
				if cookbookID != "" {
					recipes = filterByCookbook(recipes, cookbookID)
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), recipes); handled {
					return err
				}
				cookbooks, err := a.Cookbooks.List(ctx)
				if err != nil {
					return err
				}
				cli.ShowRecipes(cmd.OutOrStdout(), recipes, cookbooks)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&cookbookID, "cookbook", "c", "", "only recipes filed in this cookbook")
	_ = cmd.RegisterFlagCompletionFunc("cookbook", cli.CookbookCompletion(func() (*app.App, error) {
		return opts.openApp(context.Background())
	}))
	return cmd
}

func newRecipeShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one recipe with its sync state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				item, found, err := a.Recipes.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return utils.ErrEntityNotFound("recipes", args[0])
				}
				if handled, err := opts.emit(cmd.OutOrStdout(), item); handled {
					return err
				}
				return utils.OutputYAML(cmd.OutOrStdout(), item)
			})
		},
	}
}

func liveRecipe(ctx context.Context, a *app.App, id string) (entity.Recipe, error) {
	item, found, err := a.Recipes.Get(ctx, id)
	if err != nil {
		return entity.Recipe{}, err
	}
	if !found || item.Data.IsDeleted {
		return entity.Recipe{}, utils.ErrEntityNotFound("recipes", id)
	}
	return item.Data, nil
}

// checkCookbooks rejects references to cookbooks that do not exist locally
func checkCookbooks(ctx context.Context, a *app.App, ids []string) error {
	for _, id := range ids {
		if _, err := liveCookbook(ctx, a, id); err != nil {
			return err
		}
	}
	return nil
}

func filterByCookbook(recipes []entity.Recipe, cookbookID string) []entity.Recipe {
	out := make([]entity.Recipe, 0, len(recipes))
	for _, r := range recipes {
		for _, id := range r.CookbookIDs {
			if id == cookbookID {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
