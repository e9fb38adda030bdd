package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/models"
	"github.com/kilupskalvis/aliasmig/internal/store"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage stored schema definitions",
}

var schemaImportCmd = &cobra.Command{
	Use:   "import <alias> <dir>",
	Short: "Store the definition in a directory as the new schema of an alias",
	Long: `Read _settings.json, _mapping.json and an optional transform.painless
from a directory, validate them, and store them as a new revision of the
alias's schema definition. Importing unchanged content is a no-op.`,
	Args: cobra.ExactArgs(2),
	Run:  runSchemaImport,
}

var schemaShowCmd = &cobra.Command{
	Use:               "show <alias> [revision]",
	Short:             "Print a stored schema definition",
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeDefinitions,
	Run:               runSchemaShow,
}

var schemaLogCmd = &cobra.Command{
	Use:               "log <alias>",
	Short:             "Show the revision history of a schema definition",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runSchemaLog,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List aliases with a stored schema definition",
	Args:  cobra.NoArgs,
	Run:   runSchemaList,
}

var (
	schemaMessage string
	logOneline    bool
	logLimit      int
)

func init() {
	schemaImportCmd.Flags().StringVarP(&schemaMessage, "message", "m", "", "Revision message")
	schemaLogCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each revision on a single line")
	schemaLogCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of revisions to show")

	schemaCmd.AddCommand(schemaImportCmd, schemaShowCmd, schemaLogCmd, schemaListCmd)
}

func runSchemaImport(cmd *cobra.Command, args []string) {
	alias, dir := args[0], args[1]
	c := initContext()
	defer c.Close()

	def, err := store.LoadDefinitionDir(dir)
	if err != nil {
		exitError("%v", err)
	}

	rev, created, err := c.Store.SaveDefinition(alias, def, schemaMessage)
	if err != nil {
		exitError("failed to save definition: %v", err)
	}

	if !created {
		fmt.Printf("Schema of %s unchanged (revision %d, %s)\n", alias, rev.ID, rev.ShortHash())
		return
	}
	color.New(color.FgGreen).Printf("Saved revision %d of %s ", rev.ID, alias)
	color.New(color.FgYellow).Printf("(%s)\n", rev.ShortHash())
	fmt.Printf("\nRun 'aliasmig plan %s' to see what a migration would change.\n", alias)
}

func runSchemaShow(cmd *cobra.Command, args []string) {
	alias := args[0]
	c := initContext()
	defer c.Close()

	var def *models.SchemaDefinition
	if len(args) == 2 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			exitError("invalid revision %q", args[1])
		}
		revs, err := c.Store.GetRevisions(alias)
		if err != nil {
			exitError("failed to read revisions: %v", err)
		}
		for _, r := range revs {
			if r.ID == id {
				def = &r.Definition
				break
			}
		}
		if def == nil {
			exitError("revision %d of %s not found", id, alias)
		}
	} else {
		var err error
		def, err = c.Store.GetDefinition(alias)
		if err != nil {
			exitError("failed to read definition: %v", err)
		}
		if def == nil {
			exitError("no schema definition stored for %s", alias)
		}
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println(string(data))
}

func runSchemaLog(cmd *cobra.Command, args []string) {
	alias := args[0]
	c := initContext()
	defer c.Close()

	revs, err := c.Store.GetRevisions(alias)
	if err != nil {
		exitError("failed to read revisions: %v", err)
	}
	if len(revs) == 0 {
		fmt.Printf("No revisions of %s yet\n", alias)
		return
	}
	if logLimit > 0 && len(revs) > logLimit {
		revs = revs[:logLimit]
	}

	lastIndex, _ := c.Store.GetValue(lastMigrationKey(alias))
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for i, rev := range revs {
		if logOneline {
			yellow.Printf("%s ", rev.ShortHash())
			if i == 0 {
				cyan.Print("(current) ")
			}
			fmt.Println(rev.Message)
			continue
		}

		yellow.Printf("revision %d %s", rev.ID, rev.Hash)
		if i == 0 {
			cyan.Print(" (current)")
		}
		fmt.Println()
		fmt.Printf("Date:   %s\n", rev.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006"))
		if rev.Definition.TransformScript != "" {
			fmt.Printf("Transform: yes\n")
		}
		if rev.Message != "" {
			fmt.Printf("\n    %s\n", rev.Message)
		}
		fmt.Println()
	}

	if lastIndex != "" {
		fmt.Printf("Last migration of %s created %s\n", alias, lastIndex)
	}
}

func runSchemaList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	names, err := c.Store.ListDefinitions()
	if err != nil {
		exitError("failed to list definitions: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No schema definitions stored")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
