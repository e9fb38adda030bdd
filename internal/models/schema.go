// Package models defines the data structures shared by the migration core,
// the cluster client and the schema store.
package models

import (
	"time"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
)

// SchemaDefinition is the desired state of an alias: index settings, the
// mapping, and an optional reindex transform script.
type SchemaDefinition struct {
	Settings        jsonv.Value `json:"settings"`
	Mappings        jsonv.Value `json:"mappings"`
	TransformScript string      `json:"transform_script,omitempty"`
}

// SchemaRevision is one stored version of a schema definition
type SchemaRevision struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Timestamp  time.Time        `json:"timestamp"`
	Hash       string           `json:"hash"`
	Message    string           `json:"message,omitempty"`
	Definition SchemaDefinition `json:"definition"`
}

// ShortHash returns the first 8 characters of the revision hash
func (r *SchemaRevision) ShortHash() string {
	if len(r.Hash) > 8 {
		return r.Hash[:8]
	}
	return r.Hash
}

// Classification is the verdict of comparing a proposed schema to a live one.
type Classification string

const (
	Breaking    Classification = "BREAKING"
	NonBreaking Classification = "NON_BREAKING"
)
