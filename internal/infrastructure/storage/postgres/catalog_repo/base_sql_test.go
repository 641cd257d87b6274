package catalog_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/id"
)

func newTestRepo() *BaseCatalogRepo[any] {
	return NewBaseCatalogRepo[any](nil, "test_table", []string{"id", "code", "name"}, func() any { return nil })
}

func TestBaseCatalogRepo_ListSQL(t *testing.T) {
	repo := newTestRepo()

	q := repo.baseSelect().
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("code ASC").
		Limit(50).
		Offset(10)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, code, name FROM test_table WHERE deletion_mark = $1 ORDER BY code ASC LIMIT 50 OFFSET 10",
		sql,
	)
	assert.Equal(t, []any{false}, args)
}

func TestBaseCatalogRepo_VersionCheckSQL(t *testing.T) {
	repo := newTestRepo()
	entityID := id.New()

	q := repo.Builder().
		Update(repo.tableName).
		Set("name", "renamed").
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID}).
		Where(squirrel.Eq{"version": 3})

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE test_table SET name = $1, version = version + 1 WHERE id = $2 AND version = $3",
		sql,
	)
	require.Len(t, args, 3)
	assert.Equal(t, 3, args[2])
}
