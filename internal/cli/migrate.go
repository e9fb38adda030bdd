package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/core"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <alias>",
	Short: "Bring an alias in line with its stored definition",
	Long: `Apply the stored schema definition to the index behind an alias.
Compatible changes are applied in place. Anything else, or an in-place update
the cluster rejects, runs a zero-downtime reindex into a new index; the alias
keeps serving reads and writes and is switched over once the new index has
caught up. Interrupting a reindex leaves the plan's indices in place.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runMigrate,
}

var verifyCmd = &cobra.Command{
	Use:               "verify <alias>",
	Short:             "Check that the live index matches the stored definition",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeDefinitions,
	Run:               runVerify,
}

func runMigrate(cmd *cobra.Command, args []string) {
	alias := args[0]
	ctx, cancel := signalContext()
	defer cancel()

	c := initFullContext()
	defer c.Close()

	result, err := c.newMigrator().Migrate(ctx, alias)
	if err != nil {
		var stepErr *core.StepError
		if errors.As(err, &stepErr) {
			printStepFailure(stepErr)
		}
		c.Close()
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	switch result.Outcome {
	case core.OutcomeUpToDate:
		fmt.Printf("%s is already up to date (%s)\n", alias, result.Index)
	case core.OutcomeInPlace:
		green.Printf("Updated %s in place ", result.Index)
		fmt.Printf("behind alias %s\n", alias)
	case core.OutcomeReindexed:
		green.Printf("Migrated %s to %s ", alias, result.Index)
		fmt.Printf("(from %s, migration %s)\n", result.Plan.CurrentIndex, result.Plan.ID)
		fmt.Printf("Log index: %s\n", result.Plan.MigrationLogIndex)
		if err := c.Store.SetValue(lastMigrationKey(alias), result.Index); err != nil {
			color.New(color.FgYellow).Printf("Warning: could not record migration: %v\n", err)
		}
	}
}

// printStepFailure lists the indices of a failed run so an operator can
// inspect or clean them up.
func printStepFailure(e *core.StepError) {
	red := color.New(color.FgRed)
	red.Printf("\nMigration %s failed at %s\n", e.Plan.ID, e.Step)
	switch {
	case e.RollbackErr != nil:
		red.Println("Rollback failed; see the log for manual recovery commands.")
	case e.RolledBack:
		fmt.Printf("Rolled back: alias %s points at %s again.\n", e.Plan.AliasName, e.Plan.CurrentIndex)
	}
	fmt.Println("Indices involved:")
	for _, name := range e.Plan.Indices() {
		fmt.Printf("    %s\n", name)
	}
	fmt.Println()
}

func runVerify(cmd *cobra.Command, args []string) {
	alias := args[0]
	ctx, cancel := signalContext()
	defer cancel()

	c := initFullContext()
	defer c.Close()

	err := c.newMigrator().Verify(ctx, alias)
	var verr *core.VerificationError
	switch {
	case errors.As(err, &verr):
		color.New(color.FgRed).Printf("%s (%s) does not match its definition:\n", alias, verr.Index)
		printChanges(color.Output, verr.Changes, "    ")
		c.Close()
		exitError("verification failed")
	case err != nil:
		c.Close()
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("%s matches its definition\n", alias)
}
