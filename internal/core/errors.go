package core

import (
	"errors"
	"fmt"

	"github.com/kilupskalvis/aliasmig/internal/models"
)

// Precondition errors. These are fatal and never trigger the reindex fallback.
var (
	ErrAliasNotFound  = errors.New("alias not found")
	ErrAliasAmbiguous = errors.New("alias resolves to more than one index")
	ErrAliasExists    = errors.New("alias already exists")
	ErrSchemaNotFound = errors.New("schema definition not found")
)

// ErrBreakingChange is returned by the in-place path when the classifier
// rejects the change.
var ErrBreakingChange = errors.New("breaking schema change")

// isPrecondition reports whether err belongs to the precondition class
func isPrecondition(err error) bool {
	return errors.Is(err, ErrAliasNotFound) ||
		errors.Is(err, ErrAliasAmbiguous) ||
		errors.Is(err, ErrSchemaNotFound)
}

// StepError reports a failed orchestrator step together with the plan
// state an operator needs for manual recovery.
type StepError struct {
	Step        string
	Plan        models.MigrationPlan
	Err         error
	RolledBack  bool
	RollbackErr error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("migration of alias %q failed at %s: %v", e.Plan.AliasName, e.Step, e.Err)
	switch {
	case e.RollbackErr != nil:
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	case e.RolledBack:
		msg += " (rolled back)"
	}
	return msg
}

// Unwrap returns the step's own error; a rollback failure never masks it.
func (e *StepError) Unwrap() error {
	return e.Err
}

// VerificationError reports drift between the stored definition and the
// live index after a migration.
type VerificationError struct {
	Alias   string
	Index   string
	Changes []Change
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("index %q behind alias %q does not match its definition:\n%s",
		e.Index, e.Alias, FormatChanges(e.Changes))
}

// Diff renders the drift in display form.
func (e *VerificationError) Diff() string {
	return FormatChanges(e.Changes)
}
