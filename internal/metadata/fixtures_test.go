package metadata_test

import (
	"time"

	"github.com/conduit-lang/hyperapi/internal/metadata"
)

type Author struct {
	ID    int    `json:"id" groups:"book:read"`
	Name  string `json:"name" groups:"book:read,author:read"`
	Email string `json:"email"`
}

type Review struct {
	ID     int    `json:"id"`
	Rating int    `json:"rating" groups:"review:read"`
	Body   string `json:"body"`
}

type Timestamps struct {
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type Book struct {
	ID          int       `json:"id" groups:"book:read"`
	ISBN        string    `json:"isbn" api:"required,description=The ISBN, 13 digits" groups:"book:read,book:write"`
	Title       string    `json:"title" groups:"book:read,book:write"`
	Price       float64   `json:"price,omitempty" groups:"book:read"`
	Available   bool      `json:"available" api:"writable=false"`
	Tags        []string  `json:"tags"`
	Author      *Author   `json:"author" groups:"book:read,book:write"`
	Reviews     []*Review `json:"reviews" groups:"book:read"`
	Internal    string    `json:"-"`
	PublishedAt *time.Time
	Timestamps
	secret string
}

type Chapter struct {
	Slug  string `json:"slug" api:"identifier"`
	Title string `json:"title"`
}

func newClasses() *metadata.ClassRegistry {
	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{
		Description: "A book",
		Filters:     []string{"book.search", "book.order"},
	})
	classes.MustRegister(&Author{}, metadata.Resource{
		Operations: []metadata.Operation{
			{Kind: metadata.KindGetCollection},
			{Kind: metadata.KindGet},
		},
	})
	classes.MustRegister(Review{})
	return classes
}
