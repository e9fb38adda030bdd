package core

import (
	"context"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// compareDefinition diffs a definition against a live index, both
// normalized. Live settings are projected onto the declared keys first so
// that cluster-managed settings never count as drift.
func compareDefinition(def models.SchemaDefinition, state *models.LiveIndexState) (settings, mappings []Change) {
	declared := NormalizeSettings(def.Settings)
	liveSettings := ProjectSettings(NormalizeSettings(state.Settings), declared)
	settings = prefixChanges("settings", DiffValues(liveSettings, declared))
	mappings = prefixChanges("mappings", DiffValues(NormalizeMappings(state.Mappings), NormalizeMappings(def.Mappings)))
	return settings, mappings
}

func prefixChanges(prefix string, changes []Change) []Change {
	for i := range changes {
		changes[i].Path = joinPath(prefix, changes[i].Path)
	}
	return changes
}

// verify checks that the index behind alias matches the stored definition.
func verify(ctx context.Context, client cluster.ClientInterface, schemas SchemaSource, log Logger, alias string) error {
	index, err := resolveAlias(ctx, client, alias)
	if err != nil {
		return err
	}
	def, err := loadDefinition(schemas, alias)
	if err != nil {
		return err
	}
	state, err := cluster.FetchLiveState(ctx, client, index)
	if err != nil {
		return err
	}

	settings, mappings := compareDefinition(def, state)
	if changes := append(settings, mappings...); len(changes) > 0 {
		log.Error("verification failed", "alias", alias, "index", index, "differences", len(changes))
		return &VerificationError{Alias: alias, Index: index, Changes: changes}
	}
	log.Info("verification passed", "alias", alias, "index", index)
	return nil
}

// Verify checks that the live index behind alias matches its stored
// definition. Drift is reported as a *VerificationError.
func (m *Migrator) Verify(ctx context.Context, alias string) error {
	return verify(ctx, m.client, m.schemas, m.log, alias)
}
