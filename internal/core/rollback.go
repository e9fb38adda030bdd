package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/aliasmig/internal/models"
)

// rollback undoes a failed bulk copy: writes stop, documents written to
// catchup-1 are copied back, the alias returns to the current index alone
// and the catchup and new indices are dropped. It runs at most once per
// migration. If it fails, the steps an operator must take are logged.
func (o *Orchestrator) rollback(ctx context.Context) error {
	if o.rollbacks > 0 {
		return nil
	}
	o.rollbacks++

	p := o.plan
	o.logger.Warn("rolling back migration", "migration", p.ID, "alias", p.AliasName, "index", p.CurrentIndex)
	if err := o.restoreCurrent(ctx); err != nil {
		o.logManualRecovery(err)
		return err
	}
	o.logger.Info("rollback completed", "migration", p.ID, "alias", p.AliasName, "index", p.CurrentIndex)
	return nil
}

func (o *Orchestrator) restoreCurrent(ctx context.Context) error {
	p := o.plan

	hasCatchup, err := o.client.IndexExists(ctx, p.Catchup1Index)
	if err != nil {
		return fmt.Errorf("check %s: %w", p.Catchup1Index, err)
	}

	// reads from both, writes to neither
	stop := []models.AliasAction{models.AddAlias(p.CurrentIndex, p.AliasName, false)}
	if hasCatchup {
		stop = append(stop, models.AddAlias(p.Catchup1Index, p.AliasName, false))
	}
	if err := updateAliases(ctx, o.client, stop...); err != nil {
		return fmt.Errorf("stop writes: %w", err)
	}

	if hasCatchup {
		count, err := o.client.GetDocCount(ctx, p.Catchup1Index)
		if err != nil {
			return fmt.Errorf("count documents in %s: %w", p.Catchup1Index, err)
		}
		if count > 0 {
			o.logger.Info("copying catchup documents back", "source", p.Catchup1Index, "dest", p.CurrentIndex, "documents", count)
			if _, err := o.reindex(ctx, p.Catchup1Index, p.CurrentIndex, ""); err != nil {
				return err
			}
		}
	}

	restore := []models.AliasAction{}
	if hasCatchup {
		members, err := o.client.GetAliasIndices(ctx, p.AliasName)
		if err != nil {
			return fmt.Errorf("get alias %s: %w", p.AliasName, err)
		}
		for _, m := range members {
			if m == p.Catchup1Index {
				restore = append(restore, models.RemoveAlias(p.Catchup1Index, p.AliasName))
			}
		}
	}
	restore = append(restore, models.AddAlias(p.CurrentIndex, p.AliasName, true))
	if err := updateAliases(ctx, o.client, restore...); err != nil {
		return fmt.Errorf("restore alias: %w", err)
	}

	for _, name := range []string{p.Catchup1Index, p.NewIndex} {
		if err := o.deleteIfExists(ctx, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

// manualRecoveryCommands are the requests that finish a rollback by hand
func manualRecoveryCommands(p *models.MigrationPlan) []string {
	return []string{
		fmt.Sprintf(`POST /_reindex {"source":{"index":%q},"dest":{"index":%q}}`, p.Catchup1Index, p.CurrentIndex),
		fmt.Sprintf(`POST /_aliases {"actions":[{"remove":{"index":%q,"alias":%q}},{"add":{"index":%q,"alias":%q,"is_write_index":true}}]}`,
			p.Catchup1Index, p.AliasName, p.CurrentIndex, p.AliasName),
		fmt.Sprintf("DELETE /%s", p.Catchup1Index),
		fmt.Sprintf("DELETE /%s", p.NewIndex),
	}
}

func (o *Orchestrator) logManualRecovery(cause error) {
	p := o.plan
	o.logger.Error("rollback failed, restore the alias by hand", "alias", p.AliasName, "error", cause)
	for i, cmd := range manualRecoveryCommands(p) {
		o.logger.Error(fmt.Sprintf("manual recovery %d: %s", i+1, cmd))
	}
}
