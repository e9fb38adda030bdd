package cluster

import (
	"context"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// ClientInterface defines the cluster operations the migration core relies on.
// This interface enables mocking for testing the core package.
type ClientInterface interface {
	// Index operations
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, settings, mappings jsonv.Value) error
	CloseIndex(ctx context.Context, name string) error
	DeleteIndex(ctx context.Context, name string) error
	GetSettings(ctx context.Context, name string) (jsonv.Value, error)
	GetMappings(ctx context.Context, name string) (jsonv.Value, error)
	GetDocCount(ctx context.Context, name string) (int, error)
	UpdateSettings(ctx context.Context, index string, patch jsonv.Value) error
	UpdateMappings(ctx context.Context, index string, patch jsonv.Value) error

	// Alias operations
	AliasExists(ctx context.Context, name string) (bool, error)
	GetAliasIndices(ctx context.Context, name string) ([]string, error)
	UpdateAliases(ctx context.Context, actions []models.AliasAction) (*models.AliasUpdateResult, error)

	// Document operations
	Reindex(ctx context.Context, source, dest, script string) (*models.ReindexResult, error)
	ReindexOneDocument(ctx context.Context, source, dest, script string) (*models.ReindexResult, error)
	GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
	BulkIndex(ctx context.Context, docs []models.Document, index string) error
}

// Verify that *Client implements ClientInterface at compile time
var _ ClientInterface = (*Client)(nil)
