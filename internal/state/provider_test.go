package state_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

func newCollectionProvider(t *testing.T) (*state.CollectionProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMock(t)
	registry := newRegistry()
	search, err := filter.NewSearchFilter(registry, filter.Subset("title"))
	require.NoError(t, err)
	filters := filter.NewLocator().MustRegister("book.search", search)
	return state.NewCollectionProvider(registry, db, filters, newHydrator()), mock
}

func TestCollectionProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("first page", func(t *testing.T) {
		p, mock := newCollectionProvider(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books o")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o LIMIT $1 OFFSET $2")).
			WithArgs(int64(30), int64(0)).
			WillReturnRows(sqlmock.NewRows(bookColumns).
				AddRow(1, "Go", "12.50", true, nil, 7).
				AddRow(2, "Rust", nil, false, nil, nil))

		got, err := p.Provide(ctx, collectionRef(paginated(30)), state.Request{Filters: filter.NewContext(nil)})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		page := got.(*state.Paginator)
		assert.Equal(t, 2, page.TotalItems)
		assert.Equal(t, 1, page.CurrentPage)
		assert.Equal(t, 30, page.ItemsPerPage)
		assert.Equal(t, 1, page.LastPage())
		require.Len(t, page.Items, 2)

		first := page.Items[0].(*Book)
		assert.Equal(t, "Go", first.Title)
		require.NotNil(t, first.Price)
		assert.Equal(t, 12.5, *first.Price)
		require.NotNil(t, first.Author)
		assert.Equal(t, 7, first.Author.ID)
		assert.Nil(t, page.Items[1].(*Book).Author)
	})

	t.Run("filters and client pagination", func(t *testing.T) {
		p, mock := newCollectionProvider(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books o WHERE o.title = $1")).
			WithArgs("Go").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o WHERE o.title = $1 LIMIT $2 OFFSET $3")).
			WithArgs("Go", int64(5), int64(5)).
			WillReturnRows(sqlmock.NewRows(bookColumns))

		fctx := filter.NewContext(map[string]interface{}{"title": "Go", "page": "2", "itemsPerPage": "5"})
		got, err := p.Provide(ctx, collectionRef(paginated(30), "book.search"), state.Request{Filters: fctx})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		page := got.(*state.Paginator)
		assert.Equal(t, 11, page.TotalItems)
		assert.Equal(t, 3, page.LastPage())
		assert.Empty(t, page.Items)
	})

	t.Run("pagination disabled by the client", func(t *testing.T) {
		p, mock := newCollectionProvider(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o")).
			WillReturnRows(sqlmock.NewRows(bookColumns).AddRow(1, "Go", nil, true, "2024-03-01 10:00:00", nil))

		fctx := filter.NewContext(map[string]interface{}{"pagination": "false"})
		got, err := p.Provide(ctx, collectionRef(paginated(30)), state.Request{Filters: fctx})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		page := got.(*state.Paginator)
		assert.False(t, page.Paginated)
		assert.Equal(t, 1, page.TotalItems)
		book := page.Items[0].(*Book)
		assert.True(t, book.Available)
		require.NotNil(t, book.PublishedAt)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), *book.PublishedAt)
	})

	t.Run("default order", func(t *testing.T) {
		p, mock := newCollectionProvider(t)
		ref := collectionRef(metadata.Pagination{Enabled: metadata.Bool(false)})
		ref.Operation.Order = []metadata.OrderClause{{Property: "author.name", Direction: "desc"}, {Property: "id"}}
		mock.ExpectQuery(regexp.QuoteMeta(
			"SELECT o.* FROM books o LEFT JOIN authors author_a1 ON author_a1.id = o.author_id ORDER BY author_a1.name DESC, o.id ASC")).
			WillReturnRows(sqlmock.NewRows(bookColumns))

		_, err := p.Provide(ctx, ref, state.Request{Filters: filter.NewContext(nil)})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid page", func(t *testing.T) {
		p, _ := newCollectionProvider(t)
		fctx := filter.NewContext(map[string]interface{}{"page": "0"})
		_, err := p.Provide(ctx, collectionRef(paginated(30)), state.Request{Filters: fctx})
		assert.True(t, apierr.IsInvalidArgument(err))
	})

	t.Run("unknown filter", func(t *testing.T) {
		p, _ := newCollectionProvider(t)
		_, err := p.Provide(ctx, collectionRef(paginated(30), "missing"), state.Request{Filters: filter.NewContext(nil)})
		assert.ErrorIs(t, err, apierr.ErrConfiguration)
	})
}

func TestItemProvider(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	p := state.NewItemProvider(newRegistry(), db, newHydrator())

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o WHERE o.id = $1 LIMIT $2")).
			WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows(bookColumns).AddRow(3, "Go", nil, false, nil, 1))

		got, err := p.LoadItem(ctx, itemRef(metadata.KindGet), map[string]string{"id": "3"})
		require.NoError(t, err)
		assert.Equal(t, 3, got.(*Book).ID)
		assert.Equal(t, 1, got.(*Book).Author.ID)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o WHERE o.id = $1 LIMIT $2")).
			WillReturnRows(sqlmock.NewRows(bookColumns))

		_, err := p.Provide(ctx, itemRef(metadata.KindGet), state.Request{UriVariables: map[string]string{"id": "4"}})
		assert.True(t, apierr.IsItemNotFound(err))
	})

	t.Run("malformed identifier", func(t *testing.T) {
		_, err := p.Provide(ctx, itemRef(metadata.KindGet), state.Request{UriVariables: map[string]string{"id": "abc"}})
		assert.True(t, apierr.IsItemNotFound(err))
	})

	t.Run("subresource link", func(t *testing.T) {
		ref := collectionRef(metadata.Pagination{Enabled: metadata.Bool(false)})
		ref.Operation.UriTemplate = "/authors/{authorId}/books"
		ref.Operation.UriVariables = []metadata.Link{{Parameter: "authorId", FromClass: "Author", ToProperty: "author"}}

		mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM books o WHERE o.author_id = $1")).
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows(bookColumns))

		cp := state.NewCollectionProvider(newRegistry(), db, nil, newHydrator())
		_, err := cp.Provide(ctx, ref, state.Request{UriVariables: map[string]string{"authorId": "9"}})
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := state.NewRegistry()
	r.RegisterProvider(state.DefaultName, state.ProviderFunc(func(context.Context, *metadata.OperationRef, state.Request) (interface{}, error) {
		return "provided", nil
	}))

	got, err := r.Provide(ctx, itemRef(metadata.KindGet), state.Request{})
	require.NoError(t, err)
	assert.Equal(t, "provided", got)

	ref := itemRef(metadata.KindGet)
	ref.Operation.Provider = "elastic"
	_, err = r.Provide(ctx, ref, state.Request{})
	assert.ErrorIs(t, err, apierr.ErrConfiguration)

	_, err = r.Process(ctx, itemRef(metadata.KindPost), nil, state.Request{})
	assert.ErrorIs(t, err, apierr.ErrConfiguration)
}
