package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
)

type testRow struct {
	entity.Catalog

	Unit     string         `db:"unit"`
	MinStock types.Quantity `db:"min_stock"`
	Ignored  string         `db:"-"`
	NoTag    string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[testRow]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "code", "name", "unit", "min_stock",
	}

	assert.Len(t, cols, len(expectedCols))
	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
	assert.NotContains(t, cols, "Ignored")
	assert.NotContains(t, cols, "NoTag")
}

func TestStructToMap(t *testing.T) {
	row := testRow{
		Catalog:  entity.NewCatalog("MAT-001", "Bolt M6"),
		Unit:     "pcs",
		MinStock: types.NewQuantityFromFloat64(10),
		Ignored:  "skip",
		NoTag:    "skip",
	}

	m := StructToMap(&row)

	assert.Equal(t, "MAT-001", m["code"])
	assert.Equal(t, "pcs", m["unit"])
	assert.Equal(t, types.NewQuantityFromFloat64(10), m["min_stock"])
	assert.NotContains(t, m, "Ignored")
	assert.NotContains(t, m, "NoTag")
}
