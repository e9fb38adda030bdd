package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", `
- _id: 2
  name: Lamp
  tags: [home, light]
`)
	writeFile(t, dir, "a.yml", `
- _id: sku-1
  name: Chair
  dims:
    width: 40
- name: Table
`)
	writeFile(t, dir, "_ignored.yml", `- _id: x`)
	writeFile(t, dir, "notes.txt", `not yaml`)

	docs, err := ParseDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "sku-1", docs[0].ID)
	assert.Equal(t, "Chair", docs[0].Body["name"])
	assert.NotContains(t, docs[0].Body, "_id")
	dims, ok := docs[0].Body["dims"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 40, dims["width"])

	assert.Equal(t, "", docs[1].ID)
	assert.Equal(t, "2", docs[2].ID)
}

func TestParseFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs.yml", `name: not-a-list`)

	_, err := ParseFile(filepath.Join(dir, "docs.yml"))
	assert.ErrorContains(t, err, "parsing")
}

func TestLoad_BatchesThroughAlias(t *testing.T) {
	mock := cluster.NewMockClient()
	mock.AddIndex("products-1", jsonv.Null(), jsonv.EmptyObject())
	mock.AddAlias("products", "products-1", true)

	docs := make([]models.Document, 5)
	for i := range docs {
		docs[i] = models.Document{ID: string(rune('a' + i)), Body: map[string]interface{}{"n": i}}
	}

	n, err := Load(context.Background(), mock, "products", docs, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, mock.Indices["products-1"].Docs, 5)

	bulkCalls := 0
	for _, call := range mock.Calls {
		if call == "BulkIndex products" {
			bulkCalls++
		}
	}
	assert.Equal(t, 3, bulkCalls)
}

func TestLoad_StopsOnError(t *testing.T) {
	mock := cluster.NewMockClient()
	mock.AddIndex("products-1", jsonv.Null(), jsonv.EmptyObject())
	calls := 0
	mock.FailOn = func(op string, args ...string) error {
		if op == "BulkIndex" {
			calls++
			if calls == 2 {
				return errors.New("es_rejected_execution_exception")
			}
		}
		return nil
	}

	docs := []models.Document{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	n, err := Load(context.Background(), mock, "products-1", docs, 1)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "es_rejected_execution_exception")
}
