package core

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// memSchemas is an in-memory SchemaSource
type memSchemas map[string]models.SchemaDefinition

func (m memSchemas) GetSettings(name string) (jsonv.Value, error) {
	return m[name].Settings, nil
}

func (m memSchemas) GetMappings(name string) (jsonv.Value, error) {
	return m[name].Mappings, nil
}

func (m memSchemas) GetTransformScript(name string) (string, error) {
	return m[name].TransformScript, nil
}

// recordLogger keeps every entry as "LEVEL msg k=v ..."
type recordLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordLogger) add(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+formatEntry(msg, kv))
}

func (l *recordLogger) Info(msg string, kv ...interface{})  { l.add("INFO", msg, kv) }
func (l *recordLogger) Warn(msg string, kv ...interface{})  { l.add("WARN", msg, kv) }
func (l *recordLogger) Error(msg string, kv ...interface{}) { l.add("ERROR", msg, kv) }

func (l *recordLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

const (
	testAlias = "products"
	testIndex = "products-20240101"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// names a migration started at testNow uses
var (
	newIndex      = "products-20240301120000"
	catchup1Index = newIndex + "-catchup-1"
	catchup2Index = newIndex + "-catchup-2"
	throwaway     = newIndex + "-throwaway"
	logIndex      = newIndex + "-migration-log"
)

func mustJSON(s string) jsonv.Value {
	return jsonv.MustParse(s)
}

func testOptions() Options {
	return Options{
		PollInterval:   time.Millisecond,
		ReindexTimeout: time.Second,
		Rules:          DefaultRules(),
		Now:            func() time.Time { return testNow },
	}
}

// newTestCluster returns a cluster with alias products -> products-20240101
// holding three documents under mapping {id: keyword}.
func newTestCluster(t *testing.T) *cluster.MockClient {
	t.Helper()
	mock := cluster.NewMockClient()
	mock.AddIndex(testIndex,
		mustJSON(`{"number_of_shards": 1, "number_of_replicas": 1}`),
		mustJSON(`{"properties": {"id": {"type": "keyword"}}}`),
		testDocs(3)...,
	)
	mock.AddAlias(testAlias, testIndex, true)
	return mock
}

func testDocs(n int) []models.Document {
	docs := make([]models.Document, 0, n)
	for i := 1; i <= n; i++ {
		docs = append(docs, models.Document{
			ID:   fmt.Sprintf("%d", i),
			Body: map[string]interface{}{"id": fmt.Sprintf("sku-%d", i)},
		})
	}
	return docs
}

func definition(settings, mappings string) models.SchemaDefinition {
	return models.SchemaDefinition{Settings: mustJSON(settings), Mappings: mustJSON(mappings)}
}

// aliasState summarizes an alias as index -> is_write_index
func aliasState(mock *cluster.MockClient, alias string) map[string]bool {
	out := make(map[string]bool)
	for index, w := range mock.Aliases[alias] {
		out[index] = w
	}
	return out
}
