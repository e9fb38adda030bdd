package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// SchemaSource provides the desired definition for an alias (or index) name.
// Undefined settings or mappings come back as JSON null, an undefined script
// as "".
type SchemaSource interface {
	GetSettings(name string) (jsonv.Value, error)
	GetMappings(name string) (jsonv.Value, error)
	GetTransformScript(name string) (string, error)
}

// loadDefinition reads the stored definition for name as declared. Callers
// normalize copies for comparison; the declared form is what gets sent to
// the cluster. A name with neither settings nor mappings has no definition.
func loadDefinition(schemas SchemaSource, name string) (models.SchemaDefinition, error) {
	settings, err := schemas.GetSettings(name)
	if err != nil {
		return models.SchemaDefinition{}, fmt.Errorf("load settings for %q: %w", name, err)
	}
	mappings, err := schemas.GetMappings(name)
	if err != nil {
		return models.SchemaDefinition{}, fmt.Errorf("load mappings for %q: %w", name, err)
	}
	if settings.IsNull() && mappings.IsNull() {
		return models.SchemaDefinition{}, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	script, err := schemas.GetTransformScript(name)
	if err != nil {
		return models.SchemaDefinition{}, fmt.Errorf("load transform script for %q: %w", name, err)
	}

	return models.SchemaDefinition{
		Settings:        settings,
		Mappings:        mappings,
		TransformScript: script,
	}, nil
}

// resolveAlias returns the single index behind alias.
func resolveAlias(ctx context.Context, client cluster.ClientInterface, alias string) (string, error) {
	exists, err := client.AliasExists(ctx, alias)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}

	indices, err := client.GetAliasIndices(ctx, alias)
	if err != nil {
		return "", err
	}
	switch len(indices) {
	case 0:
		return "", fmt.Errorf("%w: %q points at no index", ErrAliasNotFound, alias)
	case 1:
		return indices[0], nil
	default:
		return "", fmt.Errorf("%w: %q -> %s", ErrAliasAmbiguous, alias, strings.Join(indices, ", "))
	}
}
