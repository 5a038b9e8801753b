package state_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/state"
)

type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Price       *float64   `json:"price"`
	Available   bool       `json:"available"`
	PublishedAt *time.Time `json:"publishedAt"`
	Author      *Author    `json:"author"`
}

var bookColumns = []string{"id", "title", "price", "available", "published_at", "author_id"}

func field(name string, base schema.PrimitiveType, nullable bool, annotations ...string) *schema.Field {
	f := &schema.Field{Name: name, Type: &schema.TypeSpec{BaseType: base, Nullable: nullable}}
	for _, a := range annotations {
		f.Annotations = append(f.Annotations, schema.Annotation{Name: a})
	}
	return f
}

func newRegistry() *schema.Registry {
	book := schema.NewResourceSchema("Book")
	book.AddField(field("id", schema.TypeInt, false, "primary"))
	book.AddField(field("title", schema.TypeString, false))
	book.AddField(field("price", schema.TypeDecimal, true))
	book.AddField(field("available", schema.TypeBool, false))
	book.AddField(field("publishedAt", schema.TypeTimestamp, true))
	book.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "Author",
		FieldName:      "author",
		Nullable:       true,
	})

	author := schema.NewResourceSchema("Author")
	author.AddField(field("id", schema.TypeInt, false, "primary"))
	author.AddField(field("name", schema.TypeString, false))

	return schema.NewRegistry().MustRegister(book, author)
}

func newHydrator() *state.Hydrator {
	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{})
	classes.MustRegister(Author{}, metadata.Resource{})
	properties := metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{Classes: classes})
	return state.NewHydrator(classes, properties, newRegistry())
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func collectionRef(pagination metadata.Pagination, filters ...string) *metadata.OperationRef {
	return &metadata.OperationRef{
		Class: "Book",
		Operation: &metadata.Operation{
			Name:        "_api_/books_get_collection",
			Kind:        metadata.KindGetCollection,
			UriTemplate: "/books",
			Filters:     filters,
			Pagination:  pagination,
		},
	}
}

func itemRef(kind metadata.OperationKind) *metadata.OperationRef {
	return &metadata.OperationRef{
		Class: "Book",
		Operation: &metadata.Operation{
			Name:        "_api_/books/{id}_" + kind.String(),
			Kind:        kind,
			UriTemplate: "/books/{id}",
			UriVariables: []metadata.Link{
				{Parameter: "id", FromClass: "Book", Identifiers: []string{"id"}},
			},
		},
	}
}

func paginated(itemsPerPage int) metadata.Pagination {
	return metadata.Pagination{
		Enabled:            metadata.Bool(true),
		ClientEnabled:      metadata.Bool(true),
		ClientItemsPerPage: metadata.Bool(true),
		ItemsPerPage:       itemsPerPage,
	}
}
