package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/core"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [alias...]",
	Short: "Show how live aliases compare to their stored definitions",
	Long: `For every alias with a stored schema definition (or only the ones given),
show the index behind it, its document count, and whether a migration is
needed and of which kind.`,
	ValidArgsFunction: completeDefinitions,
	Run:               runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	bgCtx := context.Background()
	c := initFullContext()
	defer c.Close()

	aliases := args
	if len(aliases) == 0 {
		names, err := c.Store.ListDefinitions()
		if err != nil {
			exitError("failed to list definitions: %v", err)
		}
		aliases = names
	}
	if len(aliases) == 0 {
		fmt.Println("No schema definitions stored")
		return
	}

	m := c.newMigrator()
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for _, alias := range aliases {
		fmt.Printf("%s\n", alias)

		p, err := m.Preview(bgCtx, alias)
		switch {
		case errors.Is(err, core.ErrAliasNotFound):
			red.Println("    alias does not exist")
			cyan.Printf("    (use \"aliasmig create %s\" to create it)\n\n", alias)
			continue
		case err != nil:
			red.Printf("    %v\n\n", err)
			continue
		}

		count, err := c.Client.GetDocCount(bgCtx, p.Index)
		if err != nil {
			fmt.Printf("    index: %s\n", p.Index)
		} else {
			fmt.Printf("    index: %s (%d docs)\n", p.Index, count)
		}
		if last, _ := c.Store.GetValue(lastMigrationKey(alias)); last != "" && last != p.Index {
			yellow.Printf("    last migration created %s\n", last)
		}

		switch {
		case p.UpToDate():
			green.Println("    up to date")
		case p.Classification == models.Breaking:
			red.Printf("    breaking changes: %d (reindex required)\n", len(p.SettingsChanges)+len(p.MappingsChanges))
		default:
			yellow.Printf("    changes: %d (applied in place)\n", len(p.SettingsChanges)+len(p.MappingsChanges))
		}
		fmt.Println()
	}
}
