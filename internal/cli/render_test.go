package cli

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/kilupskalvis/aliasmig/internal/core"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
)

func init() {
	color.NoColor = true
}

func TestPrintChanges(t *testing.T) {
	changes := core.DiffValues(
		jsonv.MustParse(`{"properties": {"id": {"type": "keyword"}, "legacy": {"type": "text"}}}`),
		jsonv.MustParse(`{"properties": {"id": {"type": "text"}, "price": {"type": "float"}}}`),
	)

	buf := &bytes.Buffer{}
	printChanges(buf, changes, "  ")

	assert.Equal(t, `  ~~~ properties.id.type: "keyword" -> "text"
  --- properties.legacy: {"type":"text"}
  +++ properties.price: {"type":"float"}
`, buf.String())
}

func TestPrintStat(t *testing.T) {
	changes := []core.Change{
		{Kind: core.ChangeAdded}, {Kind: core.ChangeAdded}, {Kind: core.ChangeRemoved},
	}
	buf := &bytes.Buffer{}
	printStat(buf, "mappings", changes)
	assert.Equal(t, " mappings: 2 added(+), 0 modified(~), 1 removed(-)\n", buf.String())
}

func TestPrintPatch(t *testing.T) {
	buf := &bytes.Buffer{}
	printPatch(buf, "PUT /products-1/_mapping", jsonv.EmptyObject())
	assert.Empty(t, buf.String())

	printPatch(buf, "PUT /products-1/_mapping", jsonv.MustParse(`{"properties": {"price": {"type": "float"}}}`))
	assert.Contains(t, buf.String(), "PUT /products-1/_mapping")
	assert.Contains(t, buf.String(), `"price": {`)
}

func TestLastMigrationKey(t *testing.T) {
	assert.Equal(t, "last_migration/products", lastMigrationKey("products"))
}
