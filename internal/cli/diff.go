package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/core"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

var diffCmd = &cobra.Command{
	Use:               "diff <alias>",
	Short:             "Show differences between the live index and the stored definition",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runDiff,
}

var planCmd = &cobra.Command{
	Use:   "plan <alias>",
	Short: "Show what a migration would do without changing anything",
	Long: `Classify the pending change as breaking or non-breaking, list the reasons a
reindex would be needed, and print the minimal settings and mappings patches
an in-place update would send.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runPlan,
}

var diffStat bool

func init() {
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "Show counts instead of the full diff")
}

func preview(alias string) *core.Preview {
	c := initFullContext()
	defer c.Close()

	p, err := c.newMigrator().Preview(context.Background(), alias)
	if err != nil {
		exitError("%v", err)
	}
	return p
}

func runDiff(cmd *cobra.Command, args []string) {
	p := preview(args[0])

	if p.UpToDate() {
		fmt.Println(core.NoChanges)
		return
	}

	if diffStat {
		printStat(color.Output, "settings", p.SettingsChanges)
		printStat(color.Output, "mappings", p.MappingsChanges)
		return
	}

	fmt.Printf("%s -> stored definition of %s\n\n", p.Index, p.Alias)
	if len(p.SettingsChanges) > 0 {
		fmt.Println("Settings:")
		printChanges(color.Output, p.SettingsChanges, "    ")
		fmt.Println()
	}
	if len(p.MappingsChanges) > 0 {
		fmt.Println("Mappings:")
		printChanges(color.Output, p.MappingsChanges, "    ")
	}
}

func runPlan(cmd *cobra.Command, args []string) {
	p := preview(args[0])

	if p.UpToDate() {
		fmt.Printf("%s is up to date with its definition\n", p.Alias)
		return
	}

	fmt.Printf("Alias:  %s\n", p.Alias)
	fmt.Printf("Index:  %s\n", p.Index)
	fmt.Print("Change: ")
	if p.Classification == models.Breaking {
		color.New(color.FgRed).Println(p.Classification)
		fmt.Println("\nA reindex into a new index is required:")
		for _, reason := range p.Reasons {
			fmt.Printf("    - %s\n", reason)
		}
		fmt.Println("\nThe alias stays readable and writable during the migration.")
	} else {
		color.New(color.FgGreen).Println(p.Classification)
		fmt.Println("\nThe index will be updated in place with:")
	}

	printPatch(color.Output, "PUT /"+p.Index+"/_settings", p.SettingsPatch)
	printPatch(color.Output, "PUT /"+p.Index+"/_mapping", p.MappingsPatch)

	fmt.Printf("\nRun 'aliasmig migrate %s' to apply.\n", p.Alias)
}

// printChanges writes changes with +++ / --- / ~~~ markers colored by kind
func printChanges(w io.Writer, changes []core.Change, indent string) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, ch := range changes {
		switch ch.Kind {
		case core.ChangeAdded:
			green.Fprintf(w, "%s+++ %s: %s\n", indent, ch.Path, ch.New)
		case core.ChangeRemoved:
			red.Fprintf(w, "%s--- %s: %s\n", indent, ch.Path, ch.Old)
		default:
			yellow.Fprintf(w, "%s~~~ %s: %s -> %s\n", indent, ch.Path, ch.Old, ch.New)
		}
	}
}

func printStat(w io.Writer, section string, changes []core.Change) {
	counts := map[core.ChangeKind]int{}
	for _, ch := range changes {
		counts[ch.Kind]++
	}
	fmt.Fprintf(w, " %s: %d added(+), %d modified(~), %d removed(-)\n", section,
		counts[core.ChangeAdded], counts[core.ChangeModified], counts[core.ChangeRemoved])
}

func printPatch(w io.Writer, request string, patch jsonv.Value) {
	if core.IsEmptyPatch(patch) {
		return
	}
	data, err := json.MarshalIndent(patch, "    ", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "\n  %s\n    %s\n", request, data)
}
