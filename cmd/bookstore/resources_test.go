package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/cli/config"
	"github.com/conduit-lang/hyperapi/internal/orm/migrate"
)

func TestDefinition(t *testing.T) {
	def, err := definition()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hyperapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  resource_paths: [resources]\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := app.LoadMetadata(context.Background(), app.Options{Definition: def, Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	for _, class := range []string{"Book", "Author", "Review"} {
		assert.True(t, a.Index.IsResource(class), class)
	}

	ref, ok := a.Index.CollectionOperation("Book")
	require.True(t, ok)
	assert.Equal(t, "/books", ref.Operation.UriTemplate)
	assert.Len(t, ref.Operation.Filters, 6)

	review, ok := a.Index.CollectionOperation("Review")
	require.True(t, ok)
	assert.Equal(t, 10, review.Operation.Pagination.ItemsPerPage)
}

func TestDefinitionSchema(t *testing.T) {
	def, err := definition()
	require.NoError(t, err)

	order, err := migrate.Order(def.Schemas)
	require.NoError(t, err)
	assert.Equal(t, []string{"Author", "Book", "Review"}, order)

	stmts, err := migrate.NewGenerator(def.Schemas, migrate.SQLite).Statements()
	require.NoError(t, err)
	var sql []string
	for _, s := range stmts {
		sql = append(sql, s.SQL)
	}
	assert.Contains(t, sql, `CREATE INDEX IF NOT EXISTS "idx_books_title" ON "books" ("title");`)
	assert.Contains(t, sql, `CREATE INDEX IF NOT EXISTS "idx_reviews_book_id" ON "reviews" ("book_id");`)
}
