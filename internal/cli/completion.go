package cli

import (
	"context"
	"strings"

	"cookbooksync/internal/app"

	"github.com/spf13/cobra"
)

// CookbookCompletion completes cookbook ids and names from the local store
func CookbookCompletion(open func() (*app.App, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		a, err := open()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer a.Close()

		cookbooks, err := a.Cookbooks.List(context.Background())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var completions []string
		for _, cb := range cookbooks {
			if strings.HasPrefix(strings.ToLower(cb.Name), strings.ToLower(toComplete)) || strings.HasPrefix(cb.ID, toComplete) {
				completions = append(completions, cb.ID+"\t"+cb.Name)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// ReasonCompletion completes sync reason names
func ReasonCompletion(reasons []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, r := range reasons {
			if strings.HasPrefix(r, strings.ToLower(toComplete)) {
				completions = append(completions, r)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}
