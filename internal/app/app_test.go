package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/hyperapi/internal/cache"
	"github.com/conduit-lang/hyperapi/internal/cli/config"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Author *Author `json:"author" db:"author_id"`
}

func loadConfig(t testing.TB, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hyperapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func definition() Definition {
	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{})
	classes.MustRegister(Author{}, metadata.Resource{})
	return Definition{
		Classes: classes,
		Schemas: schema.NewRegistry().MustRegister(schema.MustFromStruct(Book{}), schema.MustFromStruct(Author{})),
		Filters: filter.NewLocator(),
	}
}

func TestNewServesOperations(t *testing.T) {
	mr := miniredis.RunT(t)
	shared, err := cache.New(cache.Config{Backend: "redis", RedisAddr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { shared.Close() })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zap.InfoLevel)
	a, err := New(context.Background(), Options{
		Definition: definition(),
		Config:     loadConfig(t, "server:\n  debug: true\n"),
		Logger:     zap.New(core),
		DB:         db,
		Cache:      shared,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 1, logs.FilterMessage("api assembled").Len())
	assert.NotEmpty(t, mr.Keys(), "collections are stored in the shared cache")
	for _, k := range mr.Keys() {
		assert.True(t, strings.HasPrefix(k, "test:"), k)
	}

	t.Run("item", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o WHERE o.id = $1 LIMIT $2")).
			WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).AddRow(3, "Go", nil))

		req := httptest.NewRequest(http.MethodGet, "/books/3", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/ld+json", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "/books/3", doc["@id"])
		assert.Equal(t, "Go", doc["title"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("collection", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books o")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o LIMIT $1 OFFSET $2")).
			WithArgs(int64(30), int64(0)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id"}).AddRow(1, "Go", nil))

		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var list []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "Go", list[0]["title"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("routing errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/magazines", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contexts/Book", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	assert.Len(t, a.Router.GetRoutes(), len(a.Index.Operations())+1)
}

func TestNewWithPrefixAndFormats(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a, err := New(context.Background(), Options{
		Definition: definition(),
		Config:     loadConfig(t, "server:\n  api_prefix: /api\napi:\n  formats: [jsonapi]\n"),
		DB:         db,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ref, ok := a.Index.ItemOperation("Book")
	require.True(t, ok)
	assert.Equal(t, "/api/books/{id}", ref.Operation.UriTemplate)
	assert.Equal(t, []string{metadata.FormatJSONAPI}, ref.Operation.Formats.Names())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewErrors(t *testing.T) {
	_, err := New(context.Background(), Options{Definition: definition()})
	assert.ErrorContains(t, err, "configuration is required")

	_, err = New(context.Background(), Options{Config: loadConfig(t, "")})
	assert.ErrorContains(t, err, "class registry is required")

	cfg := loadConfig(t, "database:\n  driver: oracle\n  url: oracle://localhost\n")
	_, err = New(context.Background(), Options{Definition: definition(), Config: cfg})
	assert.ErrorContains(t, err, "unsupported database driver")

	cfg = loadConfig(t, "api:\n  resource_paths: [does/not/exist]\n")
	_, err = New(context.Background(), Options{Definition: definition(), Config: cfg})
	assert.ErrorContains(t, err, "failed to load resource declarations")
}

func TestLoadMetadataErrors(t *testing.T) {
	ctx := context.Background()

	a, err := LoadMetadata(ctx, Options{Definition: definition(), Config: loadConfig(t, "api:\n  resource_paths: [does/not/exist]\n")})
	assert.Nil(t, a)
	assert.ErrorContains(t, err, "failed to load resource declarations")

	a, err = LoadMetadata(ctx, Options{Definition: definition(), Config: loadConfig(t, "cache:\n  backend: memcached\n")})
	assert.Nil(t, a)
	assert.ErrorContains(t, err, `unknown cache backend "memcached"`)

	def := definition()
	def.Classes = metadata.NewClassRegistry()
	def.Classes.MustRegister(Book{}, metadata.Resource{Filters: []string{"book.missing"}})
	a, err = LoadMetadata(ctx, Options{Definition: def, Config: loadConfig(t, "")})
	assert.Nil(t, a)
	assert.ErrorContains(t, err, "failed to build resource metadata")
}

func TestCloseNil(t *testing.T) {
	var a *App
	assert.NoError(t, a.Close())
}

func TestYAMLDeclarations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	decl := `
classes:
  Book:
    resources:
      - short_name: Volume
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.yaml"), []byte(decl), 0o644))

	cfg := loadConfig(t, "api:\n  resource_paths: ["+dir+"]\n")
	a, err := New(context.Background(), Options{Definition: definition(), Config: cfg, DB: db})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, ok := a.Index.ByShortName("Volume")
	assert.True(t, ok)
}

func TestLoadMetadata(t *testing.T) {
	a, err := LoadMetadata(context.Background(), Options{Definition: definition(), Config: loadConfig(t, "")})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Nil(t, a.Router)
	assert.Nil(t, a.DB())
	assert.True(t, a.Index.IsResource("Book"))
	assert.True(t, a.Index.IsResource("Author"))
	assert.NoError(t, a.Close())
}
