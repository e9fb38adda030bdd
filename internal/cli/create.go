package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <alias>",
	Short: "Create an alias and its first index from the stored definition",
	Long: `Create the index <alias>-<timestamp> from the alias's stored schema
definition and point the alias at it as the write index. Fails if the alias
already exists; use 'aliasmig migrate' to change an existing alias.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runCreate,
}

func runCreate(cmd *cobra.Command, args []string) {
	alias := args[0]
	c := initFullContext()
	defer c.Close()

	index, err := c.newMigrator().CreateAlias(context.Background(), alias)
	if err != nil {
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("Created %s ", index)
	fmt.Printf("behind alias %s\n", alias)
}
