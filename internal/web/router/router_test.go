package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(chi.URLParam(r, "id")))
}

func TestRouterHandle(t *testing.T) {
	router := NewRouter()
	info := router.Handle(http.MethodPatch, "/books/{id}", http.HandlerFunc(ok))
	assert.Equal(t, []string{"id"}, info.Parameters)

	req := httptest.NewRequest(http.MethodPatch, "/books/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
	assert.Len(t, router.GetRoutes(), 1)
}

func TestExtractParameters(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"/books", []string{}},
		{"/books/{id}", []string{"id"}},
		{"/authors/{authorId}/books/{id}", []string{"authorId", "id"}},
		{"/books/{id:[0-9]+}", []string{"id"}},
		{"/codes/{code:[A-Z]{3}}", []string{"code"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, extractParameters(tt.pattern))
		})
	}
}

func TestAllowedMethods(t *testing.T) {
	router := NewRouter()
	router.Get("/books", ok)
	router.Handle(http.MethodPost, "/books", http.HandlerFunc(ok))
	router.Handle(http.MethodDelete, "/books/{id}", http.HandlerFunc(ok))

	assert.Equal(t, []string{"GET", "POST"}, router.AllowedMethods("/books"))
	assert.Equal(t, []string{"DELETE"}, router.AllowedMethods("/books/1"))
	assert.Empty(t, router.AllowedMethods("/authors"))
}

func TestDefaultErrorHandlers(t *testing.T) {
	router := NewRouter()
	SetupDefaultErrorHandlers(router, false)
	router.Get("/books", ok)

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
		req.Header.Set("Accept", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), `no route found for \"GET /nonexistent\"`)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/books", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "GET", w.Header().Get("Allow"))
		assert.Equal(t, "application/ld+json", w.Header().Get("Content-Type"))
	})
}

func TestRouteListAndURL(t *testing.T) {
	router := NewRouter()
	router.Get("/books", ok).Name = "_api_/books_get_collection"
	router.Get("/authors/{authorId}/books/{id:[0-9]+}", ok).Name = "_api_/authors/books_get"

	list := router.RouteList()
	assert.True(t, strings.HasPrefix(list, "Registered Routes:\n"))
	assert.Contains(t, list, "_api_/books_get_collection")

	routes := router.RouteListJSON()
	require.Len(t, routes, 2)
	assert.Equal(t, "/authors/{authorId}/books/{id:[0-9]+}", routes[0].Pattern)

	url, err := router.URL("_api_/authors/books_get", map[string]string{"authorId": "7", "id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "/authors/7/books/3", url)

	_, err = router.URL("_api_/authors/books_get", map[string]string{"id": "3"})
	assert.Error(t, err)

	_, err = router.URL("missing", nil)
	assert.Error(t, err)
}
