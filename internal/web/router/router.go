package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/hyperapi/internal/web/middleware"
)

// Router manages HTTP routing using chi framework
type Router struct {
	mux chi.Router

	// For introspection and debugging
	registeredRoutes []*RouteInfo
}

// RouteInfo provides metadata about a route for introspection
type RouteInfo struct {
	Pattern string
	Method  string

	// Name is the operation name; empty for routes outside the metadata
	Name      string
	Class     string
	ShortName string

	// Operation is the operation kind, e.g. "get_collection"
	Operation  string
	Parameters []string
}

// NewRouter creates a new Router instance
func NewRouter() *Router {
	return &Router{
		mux:              chi.NewRouter(),
		registeredRoutes: make([]*RouteInfo, 0),
	}
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to the router. It must be called before any route is
// registered.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Handle registers handler for method and pattern
func (r *Router) Handle(method, pattern string, handler http.Handler) *RouteInfo {
	r.mux.Method(method, pattern, handler)

	info := &RouteInfo{
		Pattern:    pattern,
		Method:     method,
		Parameters: extractParameters(pattern),
	}
	r.registeredRoutes = append(r.registeredRoutes, info)
	return info
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc) *RouteInfo {
	return r.Handle(http.MethodGet, pattern, handler)
}

// GetRoutes returns all registered routes for introspection
func (r *Router) GetRoutes() []*RouteInfo {
	return r.registeredRoutes
}

// NotFound sets the handler for 404 Not Found
func (r *Router) NotFound(handler http.HandlerFunc) {
	r.mux.NotFound(handler)
}

// MethodNotAllowed sets the handler for 405 Method Not Allowed
func (r *Router) MethodNotAllowed(handler http.HandlerFunc) {
	r.mux.MethodNotAllowed(handler)
}

// AllowedMethods lists the methods with a route matching path
func (r *Router) AllowedMethods(path string) []string {
	var out []string
	for _, method := range []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete,
	} {
		if r.mux.Match(chi.NewRouteContext(), method, path) {
			out = append(out, method)
		}
	}
	return out
}

// extractParameters returns the {variable} names of a route pattern,
// without regular expressions
func extractParameters(pattern string) []string {
	params := make([]string, 0)
	depth, start := 0, 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				name := pattern[start:i]
				for j := 0; j < len(name); j++ {
					if name[j] == ':' {
						name = name[:j]
						break
					}
				}
				params = append(params, name)
			}
		}
	}
	return params
}
