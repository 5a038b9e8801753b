package main

import (
	"time"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// Author writes books
type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name" api:"required"`
}

// Book is a catalog entry
type Book struct {
	ID          int        `json:"id"`
	ISBN        string     `json:"isbn"`
	Title       string     `json:"title" api:"required" db:",index"`
	Description string     `json:"description"`
	Price       *float64   `json:"price"`
	Available   bool       `json:"available"`
	PublishedAt *time.Time `json:"publishedAt" db:"published_at"`
	Author      *Author    `json:"author" db:"author_id"`
}

// Review rates a book
type Review struct {
	ID     int    `json:"id"`
	Rating int    `json:"rating" api:"required"`
	Body   string `json:"body"`
	Book   *Book  `json:"book" db:"book_id"`
}

func definition() (app.Definition, error) {
	classes := metadata.NewClassRegistry()
	if err := classes.Register(Book{}, metadata.Resource{
		Description: "A book of the catalog",
		Filters:     []string{"book.search", "book.order", "book.price", "book.available", "book.published", "book.exists"},
		Order:       []metadata.OrderClause{{Property: "title"}},
	}); err != nil {
		return app.Definition{}, err
	}
	if err := classes.Register(Author{}, metadata.Resource{
		Filters: []string{"author.search"},
	}); err != nil {
		return app.Definition{}, err
	}
	if err := classes.Register(Review{}, metadata.Resource{
		Filters: []string{"review.rating"},
	}); err != nil {
		return app.Definition{}, err
	}

	schemas := schema.NewRegistry()
	for _, v := range []interface{}{Book{}, Author{}, Review{}} {
		rs, err := schema.FromStruct(v)
		if err != nil {
			return app.Definition{}, err
		}
		if err := schemas.Register(rs); err != nil {
			return app.Definition{}, err
		}
	}

	filters := filter.NewLocator()
	bookOrder, err := filter.NewOrderFilter(schemas, filter.SubsetWith(map[string]string{
		"title":       "asc",
		"price":       "",
		"publishedAt": "desc",
	}))
	if err != nil {
		return app.Definition{}, err
	}
	published, err := filter.NewDateFilter(schemas, filter.Subset("publishedAt"))
	if err != nil {
		return app.Definition{}, err
	}
	bookSearch, err := filter.NewSearchFilter(schemas, filter.SubsetWith(map[string]string{
		"title":       "ipartial",
		"isbn":        "exact",
		"author.name": "istart",
	}))
	if err != nil {
		return app.Definition{}, err
	}
	authorSearch, err := filter.NewSearchFilter(schemas, filter.SubsetWith(map[string]string{"name": "ipartial"}))
	if err != nil {
		return app.Definition{}, err
	}
	filters.
		MustRegister("book.search", bookSearch).
		MustRegister("book.order", bookOrder).
		MustRegister("book.price", filter.NewRangeFilter(schemas, filter.Subset("price"))).
		MustRegister("book.available", filter.NewBooleanFilter(schemas, filter.Subset("available"))).
		MustRegister("book.published", published).
		MustRegister("author.search", authorSearch).
		MustRegister("review.rating", filter.NewNumericFilter(schemas, filter.Subset("rating"))).
		MustRegister("book.exists", filter.NewExistsFilter(schemas, filter.Subset("price", "publishedAt", "author")))

	return app.Definition{Classes: classes, Schemas: schemas, Filters: filters}, nil
}
