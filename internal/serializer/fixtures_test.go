package serializer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/serializer"
)

type Author struct {
	ID   int    `json:"id" groups:"book:read"`
	Name string `json:"name" groups:"book:read,book:write"`
}

type Review struct {
	ID     int `json:"id"`
	Rating int `json:"rating"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Book struct {
	ID      int         `json:"id" groups:"book:read"`
	Title   string      `json:"title" api:"required" groups:"book:read,book:write"`
	Price   *float64    `json:"price" groups:"book:read,book:write"`
	Author  *Author     `json:"author" groups:"book:read,book:write"`
	Reviews []*Review   `json:"reviews"`
	Size    *Dimensions `json:"size"`
}

type fakeLoader struct {
	items map[string]interface{}
}

func (l *fakeLoader) LoadItem(_ context.Context, ref *metadata.OperationRef, vars map[string]string) (interface{}, error) {
	item, ok := l.items[ref.Class+"/"+vars["id"]]
	if !ok {
		return nil, apierr.ItemNotFound(ref.Class)
	}
	return item, nil
}

type fixture struct {
	cfg        serializer.Config
	serializer *serializer.Serializer
	index      *metadata.Index
	loader     *fakeLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{Filters: []string{"book.search"}})
	classes.MustRegister(Author{}, metadata.Resource{})
	classes.MustRegister(Review{}, metadata.Resource{})
	classes.MustRegister(Dimensions{})

	names := metadata.NewReflectionNameFactory(classes, nil)
	properties := metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{Classes: classes, Names: names})
	pipeline := metadata.NewResourcePipeline(metadata.PipelineConfig{Classes: classes, Identifiers: properties})
	idx, err := metadata.BuildIndex(ctx, metadata.NewResourceNameCollectionFactory(classes), pipeline)
	require.NoError(t, err)

	loader := &fakeLoader{items: map[string]interface{}{
		"Author/7": &Author{ID: 7, Name: "Rob Pike"},
	}}
	book := schema.NewResourceSchema("Book")
	book.AddField(&schema.Field{
		Name:        "id",
		Type:        &schema.TypeSpec{BaseType: schema.TypeInt},
		Annotations: []schema.Annotation{{Name: "primary"}},
	})
	book.AddField(&schema.Field{Name: "title", Type: &schema.TypeSpec{BaseType: schema.TypeString}})
	registry := schema.NewRegistry().MustRegister(book)
	search, err := filter.NewSearchFilter(registry, filter.Subset("title"))
	require.NoError(t, err)
	filters := filter.NewLocator().MustRegister("book.search", search)

	cfg := serializer.Config{
		Index:      idx,
		Classes:    classes,
		Names:      names,
		Properties: properties,
		IRIs:       iri.NewConverter(idx, classes, properties, iri.WithItemLoader(loader)),
		Filters:    filters,
	}
	return &fixture{cfg: cfg, serializer: serializer.NewDefault(cfg), index: idx, loader: loader}
}

func (f *fixture) collectionRef(t *testing.T, class string) *metadata.OperationRef {
	t.Helper()
	ref, ok := f.index.CollectionOperation(class)
	require.True(t, ok)
	return ref
}

func (f *fixture) itemRef(t *testing.T, class string, kind metadata.OperationKind) *metadata.OperationRef {
	t.Helper()
	coll, err := f.index.Collection(class)
	require.NoError(t, err)
	for i := range coll.Resources {
		r := &coll.Resources[i]
		for j := range r.Operations {
			if r.Operations[j].Kind == kind {
				return &metadata.OperationRef{Class: class, Resource: r, Operation: &r.Operations[j]}
			}
		}
	}
	t.Fatalf("no %s operation on %s", kind, class)
	return nil
}

func price(v float64) *float64 { return &v }

func sampleBook() *Book {
	return &Book{
		ID:      1,
		Title:   "The Go Programming Language",
		Price:   price(39.5),
		Author:  &Author{ID: 7, Name: "Rob Pike"},
		Reviews: []*Review{{ID: 3, Rating: 5}},
	}
}
