package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <alias> <dir>",
	Short: "Index fixture documents from YAML files through an alias",
	Long: `Read every *.yml and *.yaml file in a directory (files starting with "_"
are skipped). Each file holds a list of documents; an "_id" key sets the
document id. Documents are bulk-indexed through the alias's write index.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeDefinitions,
	Run:               runSeed,
}

var seedBatchSize int

func init() {
	seedCmd.Flags().IntVar(&seedBatchSize, "batch-size", seed.DefaultBatchSize, "Documents per bulk request")
}

func runSeed(cmd *cobra.Command, args []string) {
	alias, dir := args[0], args[1]
	c := initFullContext()
	defer c.Close()

	docs, err := seed.ParseDir(dir)
	if err != nil {
		exitError("%v", err)
	}
	if len(docs) == 0 {
		fmt.Printf("No documents found in %s\n", dir)
		return
	}

	n, err := seed.Load(context.Background(), c.Client, alias, docs, seedBatchSize)
	if err != nil {
		c.Close()
		exitError("%v (after %d documents)", err, n)
	}
	color.New(color.FgGreen).Printf("Indexed %d documents ", n)
	fmt.Printf("into %s\n", alias)
}
