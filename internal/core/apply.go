package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// ApplyNonBreaking tries to bring the index behind alias up to date in
// place: diff, classify, patch settings and mappings, then verify. Any
// error means the caller should fall back to a reindex, unless it is a
// precondition error.
func (m *Migrator) ApplyNonBreaking(ctx context.Context, alias string) (*Result, error) {
	index, err := resolveAlias(ctx, m.client, alias)
	if err != nil {
		return nil, err
	}
	def, err := loadDefinition(m.schemas, alias)
	if err != nil {
		return nil, err
	}
	state, err := cluster.FetchLiveState(ctx, m.client, index)
	if err != nil {
		return nil, err
	}

	result := &Result{Alias: alias, Index: index, Outcome: OutcomeUpToDate}

	settingsChanges, mappingsChanges := compareDefinition(def, state)
	if len(settingsChanges) == 0 && len(mappingsChanges) == 0 {
		m.log.Info("index already matches its definition", "alias", alias, "index", index)
		return result, nil
	}

	live := models.SchemaDefinition{Settings: state.Settings, Mappings: state.Mappings}
	if reasons := m.opts.Rules.BreakingChanges(def, live); len(reasons) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBreakingChange, strings.Join(reasons, "; "))
	}

	settingsPatch := SettingsPatch(def.Settings, state.Settings)
	mappingsPatch := MappingsPatch(def.Mappings, state.Mappings)

	if !IsEmptyPatch(settingsPatch) {
		m.log.Info("updating settings in place", "index", index, "patch", settingsPatch)
		if err := m.client.UpdateSettings(ctx, index, settingsPatch); err != nil {
			return nil, fmt.Errorf("update settings of %s: %w", index, err)
		}
	}
	if !IsEmptyPatch(mappingsPatch) {
		m.log.Info("updating mappings in place", "index", index, "patch", mappingsPatch)
		if err := m.client.UpdateMappings(ctx, index, mappingsPatch); err != nil {
			return nil, fmt.Errorf("update mappings of %s: %w", index, err)
		}
	}

	if err := m.Verify(ctx, alias); err != nil {
		return nil, err
	}
	result.Outcome = OutcomeInPlace
	return result, nil
}
