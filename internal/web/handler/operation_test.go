package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/serializer"
	"github.com/conduit-lang/hyperapi/internal/state"
	"github.com/conduit-lang/hyperapi/internal/web/handler"
	"github.com/conduit-lang/hyperapi/internal/web/router"
)

type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID     int     `json:"id"`
	Title  string  `json:"title" api:"required"`
	Author *Author `json:"author"`
}

// store keeps books and authors in memory. It serves as provider,
// processor and IRI item loader.
type store struct {
	mu      sync.Mutex
	books   map[string]*Book
	authors map[string]*Author
	nextID  int
}

func newStore() *store {
	pike := &Author{ID: 1, Name: "Rob Pike"}
	return &store{
		books: map[string]*Book{
			"1": {ID: 1, Title: "The Go Programming Language", Author: pike},
			"2": {ID: 2, Title: "Concurrency in Go"},
		},
		authors: map[string]*Author{"1": pike},
		nextID:  2,
	}
}

func (s *store) LoadItem(_ context.Context, ref *metadata.OperationRef, vars map[string]string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ref.Class {
	case "Book":
		if b, ok := s.books[vars["id"]]; ok {
			return b, nil
		}
	case "Author":
		if a, ok := s.authors[vars["id"]]; ok {
			return a, nil
		}
	}
	return nil, apierr.ItemNotFound(ref.Class)
}

func (s *store) Provide(ctx context.Context, ref *metadata.OperationRef, req state.Request) (interface{}, error) {
	if !ref.Operation.IsCollection() {
		return s.LoadItem(ctx, ref, req.UriVariables)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.books))
	for _, b := range s.books {
		ids = append(ids, b.ID)
	}
	sort.Ints(ids)
	items := make([]interface{}, len(ids))
	for i, id := range ids {
		items[i] = s.books[strconv.Itoa(id)]
	}
	return &state.Paginator{Items: items, TotalItems: len(items), CurrentPage: 1, ItemsPerPage: 30, Paginated: true}, nil
}

func (s *store) Process(_ context.Context, ref *metadata.OperationRef, data interface{}, _ state.Request) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book := data.(*Book)
	switch ref.Operation.Kind {
	case metadata.KindPost:
		s.nextID++
		book.ID = s.nextID
		s.books[strconv.Itoa(book.ID)] = book
	case metadata.KindDelete:
		delete(s.books, strconv.Itoa(book.ID))
		return nil, nil
	}
	return book, nil
}

type app struct {
	handler http.Handler
	store   *store
}

func newApp(t *testing.T, maxBody int64) *app {
	t.Helper()
	ctx := context.Background()

	classes := metadata.NewClassRegistry()
	classes.MustRegister(Book{}, metadata.Resource{})
	classes.MustRegister(Author{}, metadata.Resource{})
	names := metadata.NewReflectionNameFactory(classes, nil)
	properties := metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{Classes: classes, Names: names})
	pipeline := metadata.NewResourcePipeline(metadata.PipelineConfig{Classes: classes, Identifiers: properties})
	idx, err := metadata.BuildIndex(ctx, metadata.NewResourceNameCollectionFactory(classes), pipeline)
	require.NoError(t, err)

	st := newStore()
	iris := iri.NewConverter(idx, classes, properties, iri.WithItemLoader(st))
	cfg := serializer.Config{Index: idx, Classes: classes, Names: names, Properties: properties, IRIs: iris}

	states := state.NewRegistry()
	states.RegisterProvider(state.DefaultName, st)
	states.RegisterProcessor(state.DefaultName, st)

	r := router.NewRouter()
	router.SetupDefaultErrorHandlers(r, false)
	r.RegisterContexts(idx, serializer.NewJSONLDItemNormalizer(cfg), false)
	r.RegisterOperations(idx, handler.Config{
		Serializer:   serializer.NewDefault(cfg),
		States:       states,
		IRIs:         iris,
		MaxBodyBytes: maxBody,
	})
	return &app{handler: r, store: st}
}

func (a *app) do(t *testing.T, method, target, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return doc
}

func TestGetCollection(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodGet, "/books", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/ld+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Accept", rec.Header().Get("Vary"))

	doc := decode(t, rec)
	assert.Equal(t, float64(2), doc["hydra:totalItems"])
	members := doc["hydra:member"].([]interface{})
	require.Len(t, members, 2)
	assert.Equal(t, "/books/1", members[0].(map[string]interface{})["@id"])

	rec = a.do(t, http.MethodGet, "/books", "", "", "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestGetItem(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodGet, "/books/1", "", "", "Accept", "application/hal+json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/hal+json", rec.Header().Get("Content-Type"))
	doc := decode(t, rec)
	assert.Equal(t, "The Go Programming Language", doc["title"])

	t.Run("not found", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/books/99", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/ld+json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "hydra:Error", decode(t, rec)["@type"])
	})

	t.Run("not acceptable", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/books/1", "", "", "Accept", "text/csv")
		assert.Equal(t, http.StatusNotAcceptable, rec.Code)
		assert.Contains(t, decode(t, rec)["detail"], "application/ld+json")
	})
}

func TestPost(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodPost, "/books", "application/ld+json", `{"title":"Learning Go","author":"/authors/1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/books/3", rec.Header().Get("Location"))
	assert.Equal(t, "/books/3", decode(t, rec)["@id"])

	created := a.store.books["3"]
	require.NotNil(t, created)
	assert.Equal(t, "Learning Go", created.Title)
	require.NotNil(t, created.Author)
	assert.Equal(t, "Rob Pike", created.Author.Name)

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		detail      string
	}{
		{"unsupported media type", "text/plain", `{"title":"x"}`, http.StatusUnsupportedMediaType, "text/plain"},
		{"missing required", "application/json", `{"author":"/authors/1"}`, http.StatusBadRequest, `"title"`},
		{"unknown IRI", "application/json", `{"title":"x","author":"/authors/42"}`, http.StatusBadRequest, "/authors/42"},
		{"malformed body", "application/json", `{"title":`, http.StatusBadRequest, "syntax error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/books", tt.contentType, tt.body, "Accept", "application/json")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, decode(t, rec)["detail"], tt.detail)
		})
	}
	assert.Len(t, a.store.books, 3)
}

func TestPostBodyLimit(t *testing.T) {
	a := newApp(t, 16)
	rec := a.do(t, http.MethodPost, "/books", "application/json", `{"title":"a title longer than the limit"}`, "Accept", "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "16 bytes")
}

func TestUpdate(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodPatch, "/books/1", "application/merge-patch+json", `{"title":"The Go Book"}`, "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "The Go Book", decode(t, rec)["title"])
	assert.Equal(t, "The Go Book", a.store.books["1"].Title)
	require.NotNil(t, a.store.books["1"].Author)

	rec = a.do(t, http.MethodPatch, "/books/1", "application/ld+json", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = a.do(t, http.MethodPut, "/books/2", "application/ld+json", `{"title":"Concurrency in Go, 2nd edition","author":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Concurrency in Go, 2nd edition", a.store.books["2"].Title)
	assert.Equal(t, 2, a.store.books["2"].ID)

	rec = a.do(t, http.MethodPut, "/books/9", "application/ld+json", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodDelete, "/books/2", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotContains(t, a.store.books, "2")

	rec = a.do(t, http.MethodDelete, "/books/2", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutingErrors(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodDelete, "/books", "", "", "Accept", "application/json")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))

	rec = a.do(t, http.MethodGet, "/magazines", "", "", "Accept", "application/vnd.api+json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errs := decode(t, rec)["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, "404", errs[0].(map[string]interface{})["status"])
}

func TestContextDocument(t *testing.T) {
	a := newApp(t, 0)

	rec := a.do(t, http.MethodGet, "/contexts/Book", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	terms := decode(t, rec)["@context"].(map[string]interface{})
	assert.Equal(t, "Book/title", terms["title"])
	assert.Equal(t, map[string]interface{}{"@id": "Book/author", "@type": "@id"}, terms["author"])

	rec = a.do(t, http.MethodGet, "/contexts/Magazine", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
