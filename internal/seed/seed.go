// Package seed loads fixture documents from YAML files and bulk-indexes them
// through an alias, so a migration can be rehearsed against realistic data.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// DefaultBatchSize is the number of documents sent per bulk request.
const DefaultBatchSize = 500

// ParseDir parses every *.yml and *.yaml file in dir, in name order.
// Files starting with "_" are skipped.
func ParseDir(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") {
			continue
		}
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var docs []models.Document
	for _, name := range names {
		fileDocs, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// ParseFile parses a YAML file holding a list of documents. An "_id" key is
// taken as the document id and removed from the body.
func ParseFile(path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}

	docs := make([]models.Document, 0, len(raw))
	for _, body := range raw {
		doc := models.Document{Body: body}
		if id, ok := body["_id"]; ok {
			doc.ID = fmt.Sprintf("%v", id)
			delete(body, "_id")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Load writes docs to target in batches and returns the number written.
func Load(ctx context.Context, client cluster.ClientInterface, target string, docs []models.Document, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	written := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		if err := client.BulkIndex(ctx, docs[start:end], target); err != nil {
			return written, fmt.Errorf("bulk indexing into %s: %w", target, err)
		}
		written = end
	}
	return written, nil
}
