package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cookbooksync/internal/app"
	"cookbooksync/internal/entity"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return width
}

// boxWidth clamps the terminal width to something readable
func boxWidth() int {
	w := GetTerminalWidth() - 2
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func header(title string) string {
	text := "─ " + title + " "
	pad := boxWidth() - lipgloss.Width(text)
	if pad < 0 {
		pad = 0
	}
	return headerStyle.Render("┌" + text + strings.Repeat("─", pad) + "┐")
}

func footer() string {
	return headerStyle.Render("└" + strings.Repeat("─", boxWidth()) + "┘")
}

// ShowCookbooks prints cookbooks with the number of recipes filed in each
func ShowCookbooks(w io.Writer, cookbooks []entity.Cookbook, recipes []entity.Recipe) {
	counts := make(map[string]int)
	for _, r := range recipes {
		for _, id := range r.CookbookIDs {
			counts[id]++
		}
	}

	fmt.Fprintln(w, header("Cookbooks"))
	if len(cookbooks) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  (none)"))
	}
	for i, cb := range cookbooks {
		line := fmt.Sprintf("  %2d. %s", i+1, nameStyle.Render(fmt.Sprintf("%-30s", cb.Name)))
		if n := counts[cb.ID]; n > 0 {
			line += dimStyle.Render(fmt.Sprintf(" (%d %s)", n, plural(n, "recipe")))
		}
		fmt.Fprintln(w, line)
		fmt.Fprintln(w, dimStyle.Render("      "+cb.ID))
	}
	fmt.Fprintln(w, footer())
}

// ShowRecipes prints recipes, one per line, with their cookbook names
func ShowRecipes(w io.Writer, recipes []entity.Recipe, cookbooks []entity.Cookbook) {
	names := make(map[string]string, len(cookbooks))
	for _, cb := range cookbooks {
		names[cb.ID] = cb.Name
	}

	fmt.Fprintln(w, header("Recipes"))
	if len(recipes) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  (none)"))
	}
	for i, r := range recipes {
		fmt.Fprintf(w, "  %2d. %s", i+1, nameStyle.Render(r.Title))
		var details []string
		if r.Difficulty != "" {
			details = append(details, r.Difficulty)
		}
		if r.CookingTimeMinutes != nil {
			details = append(details, fmt.Sprintf("%d min", *r.CookingTimeMinutes))
		}
		if r.Servings != nil {
			details = append(details, fmt.Sprintf("serves %d", *r.Servings))
		}
		if len(details) > 0 {
			fmt.Fprint(w, dimStyle.Render(" ["+strings.Join(details, ", ")+"]"))
		}
		fmt.Fprintln(w)

		var in []string
		for _, id := range r.CookbookIDs {
			if name, ok := names[id]; ok {
				in = append(in, name)
			} else {
				in = append(in, id)
			}
		}
		sub := "      " + r.ID
		if len(in) > 0 {
			sub += " · " + strings.Join(in, ", ")
		}
		fmt.Fprintln(w, dimStyle.Render(sub))
	}
	fmt.Fprintln(w, footer())
}

// ShowPreferences prints the preferences singleton
func ShowPreferences(w io.Writer, p entity.Preferences) {
	fmt.Fprintln(w, header("Preferences"))
	row := func(k, v string) {
		if v == "" {
			v = dimStyle.Render("-")
		}
		fmt.Fprintf(w, "  %-14s %s\n", k, v)
	}
	row("theme", p.ThemeMode)
	row("language", p.UserLanguage)
	row("measurement", p.UserMeasurement)
	row("dietary", strings.Join(p.UserDietary, ", "))
	row("avoid", strings.Join(p.UserAvoid, ", "))
	row("avoid (other)", p.UserAvoidOther)
	fmt.Fprintln(w, footer())
}

// ShowReport prints the status report
func ShowReport(w io.Writer, r *app.Report) {
	fmt.Fprintln(w, header("Sync status"))

	if r.User != nil {
		fmt.Fprintf(w, "  User:      %s\n", okStyle.Render(r.User.UID))
	} else {
		fmt.Fprintf(w, "  User:      %s\n", warnStyle.Render("signed out"))
	}
	if r.Remote != "" {
		fmt.Fprintf(w, "  Remote:    %s\n", r.Remote)
	} else {
		fmt.Fprintf(w, "  Remote:    %s\n", warnStyle.Render("not configured"))
	}
	fmt.Fprintf(w, "  Store:     %s\n", r.Store)

	if r.Sync.LastSyncAt.IsZero() {
		fmt.Fprintf(w, "  Last sync: %s\n", dimStyle.Render("never"))
	} else {
		fmt.Fprintf(w, "  Last sync: %s (%s ago)\n",
			r.Sync.LastSyncAt.Format(time.RFC3339), time.Since(r.Sync.LastSyncAt).Round(time.Second))
	}
	if r.MigrationOK {
		fmt.Fprintf(w, "  Migration: %s\n", okStyle.Render("done"))
	} else {
		fmt.Fprintf(w, "  Migration: %s\n", warnStyle.Render("pending"))
	}
	if r.Sync.LastError != "" {
		fmt.Fprintf(w, "  Last error: %s\n", errStyle.Render(r.Sync.LastError))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-12s %6s %6s %8s %12s\n", "ENTITY", "TOTAL", "DIRTY", "DELETED", "NEVER SYNCED")
	for _, s := range r.Entities {
		dirty := fmt.Sprintf("%6d", s.Dirty)
		if s.Dirty > 0 {
			dirty = warnStyle.Render(dirty)
		}
		fmt.Fprintf(w, "  %-12s %6d %s %8d %12d\n", s.Entity, s.Total, dirty, s.Deleted, s.NeverSynced)
	}
	fmt.Fprintln(w, footer())
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
