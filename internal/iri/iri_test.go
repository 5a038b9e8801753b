package iri_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Author *Author `json:"author"`
}

type Chapter struct {
	Slug  string `json:"slug" api:"identifier"`
	Title string `json:"title"`
}

type Note struct {
	Text string `json:"text"`
}

type fakeLoader struct {
	items map[string]interface{}
	err   error
}

func (l *fakeLoader) LoadItem(_ context.Context, ref *metadata.OperationRef, vars map[string]string) (interface{}, error) {
	if l.err != nil {
		return nil, l.err
	}
	item, ok := l.items[ref.Class+"/"+vars[ref.Operation.Variables()[0]]]
	if !ok {
		return nil, apierr.ItemNotFound(ref.Class)
	}
	return item, nil
}

func newConverter(t *testing.T, opts ...iri.Option) *iri.Converter {
	t.Helper()
	ctx := context.Background()

	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{})
	classes.MustRegister(Author{}, metadata.Resource{})
	classes.MustRegister(Chapter{}, metadata.Resource{
		Operations: []metadata.Operation{{Kind: metadata.KindGet}},
	})
	classes.MustRegister(Note{})

	properties := metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{Classes: classes})
	pipeline := metadata.NewResourcePipeline(metadata.PipelineConfig{Classes: classes, Identifiers: properties})
	idx, err := metadata.BuildIndex(ctx, metadata.NewResourceNameCollectionFactory(classes), pipeline)
	require.NoError(t, err)

	return iri.NewConverter(idx, classes, properties, opts...)
}

func TestConverter_Match(t *testing.T) {
	c := newConverter(t)

	t.Run("item route", func(t *testing.T) {
		m, err := c.Match("/books/42")
		require.NoError(t, err)
		assert.Equal(t, "Book", m.Ref.Class)
		assert.Equal(t, metadata.KindGet, m.Ref.Operation.Kind)
		assert.Equal(t, map[string]string{"id": "42"}, m.UriVariables)
	})

	t.Run("absolute url with query", func(t *testing.T) {
		m, err := c.Match("https://api.example.com/authors/7?x=1")
		require.NoError(t, err)
		assert.Equal(t, "Author", m.Ref.Class)
		assert.Equal(t, "7", m.UriVariables["id"])
	})

	t.Run("custom identifier", func(t *testing.T) {
		m, err := c.Match("/chapters/the%20end")
		require.NoError(t, err)
		assert.Equal(t, "Chapter", m.Ref.Class)
		assert.Equal(t, map[string]string{"slug": "the end"}, m.UriVariables)
	})

	for _, bad := range []string{"/books", "/nope/1", "", "/books/1/extra"} {
		_, err := c.Match(bad)
		assert.ErrorIs(t, err, apierr.ErrItemNotFound, bad)
	}
}

func TestConverter_IdentifierFromIRI(t *testing.T) {
	c := newConverter(t)

	id, err := c.IdentifierFromIRI("/books/42")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	_, err = c.IdentifierFromIRI("/books")
	assert.True(t, apierr.IsItemNotFound(err))
}

func TestConverter_IRIFromItem(t *testing.T) {
	ctx := context.Background()
	c := newConverter(t)

	got, err := c.IRIFromItem(ctx, &Book{ID: 3})
	require.NoError(t, err)
	assert.Equal(t, "/books/3", got)

	got, err = c.IRIFromItem(ctx, Chapter{Slug: "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "/chapters/a%2Fb", got)

	m, err := c.Match(got)
	require.NoError(t, err)
	assert.Equal(t, "a/b", m.UriVariables["slug"])

	t.Run("unset identifier", func(t *testing.T) {
		_, err := c.IRIFromItem(ctx, &Book{})
		assert.True(t, apierr.IsInvalidArgument(err))
	})

	t.Run("unregistered type", func(t *testing.T) {
		_, err := c.IRIFromItem(ctx, struct{ ID int }{ID: 1})
		assert.True(t, apierr.IsInvalidArgument(err))
	})

	t.Run("not a resource", func(t *testing.T) {
		_, err := c.IRIFromItem(ctx, &Note{Text: "x"})
		assert.ErrorIs(t, err, apierr.ErrOperationNotFound)
	})

	t.Run("base url", func(t *testing.T) {
		abs := newConverter(t, iri.WithBaseURL("https://api.example.com/"))
		got, err := abs.IRIFromItem(ctx, &Author{ID: 9})
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com/authors/9", got)

		id, err := abs.IdentifierFromIRI(got)
		require.NoError(t, err)
		assert.Equal(t, "9", id)
	})
}

func TestConverter_IRIFromResourceClass(t *testing.T) {
	c := newConverter(t)

	got, err := c.IRIFromResourceClass("Book")
	require.NoError(t, err)
	assert.Equal(t, "/books", got)

	_, err = c.IRIFromResourceClass("Chapter")
	assert.ErrorIs(t, err, apierr.ErrOperationNotFound)
}

func TestConverter_ItemFromIRI(t *testing.T) {
	ctx := context.Background()
	book := &Book{ID: 1, Title: "Go"}
	loader := &fakeLoader{items: map[string]interface{}{"Book/1": book}}
	c := newConverter(t, iri.WithItemLoader(loader))

	got, err := c.ItemFromIRI(ctx, "/books/1")
	require.NoError(t, err)
	assert.Same(t, book, got)

	_, err = c.ItemFromIRI(ctx, "/books/2")
	var notFound *apierr.ItemNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "/books/2", notFound.IRI)

	loader.err = errors.New("connection refused")
	_, err = c.ItemFromIRI(ctx, "/books/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading /books/1: connection refused")

	t.Run("no loader", func(t *testing.T) {
		_, err := newConverter(t).ItemFromIRI(ctx, "/books/1")
		assert.ErrorIs(t, err, apierr.ErrConfiguration)
	})
}
