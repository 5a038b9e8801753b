package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/serializer"
	"github.com/conduit-lang/hyperapi/internal/web/handler"
	"github.com/conduit-lang/hyperapi/internal/web/response"
)

// ContextDocumenter builds the JSON-LD context document of a class
type ContextDocumenter interface {
	ContextDocument(ctx context.Context, class string) (map[string]interface{}, error)
}

// RegisterOperations binds every operation of the index to an operation
// handler. Routes are registered in index order.
func (r *Router) RegisterOperations(idx *metadata.Index, cfg handler.Config) {
	for _, ref := range idx.Operations() {
		op := ref.Operation
		method := op.Method
		if method == "" {
			method = op.Kind.Method()
		}
		info := r.Handle(method, op.UriTemplate, handler.New(cfg, ref))
		info.Name = op.Name
		info.Class = ref.Class
		info.ShortName = op.ShortName
		info.Operation = op.Kind.String()
	}
}

// RegisterContexts serves the JSON-LD context of every resource at
// /contexts/{shortName}
func (r *Router) RegisterContexts(idx *metadata.Index, docs ContextDocumenter, debug bool) {
	pattern := serializer.ContextIRI("{shortName}")
	r.Get(pattern, func(w http.ResponseWriter, req *http.Request) {
		short := chi.URLParam(req, "shortName")
		ref, ok := idx.ByShortName(short)
		if !ok {
			response.RenderError(w, metadata.FormatJSONLD, &routeError{
				status:  http.StatusNotFound,
				message: fmt.Sprintf("no resource is named %q", short),
			}, debug)
			return
		}
		doc, err := docs.ContextDocument(req.Context(), ref.Class)
		if err == nil {
			var body []byte
			body, err = json.Marshal(doc)
			if err == nil {
				_ = response.Write(w, http.StatusOK, response.ContentType(metadata.FormatJSONLD), body)
				return
			}
		}
		response.RenderError(w, metadata.FormatJSONLD, err, debug)
	})
}

// RouteList returns a formatted list of all routes
func (r *Router) RouteList() string {
	var sb strings.Builder
	sb.WriteString("Registered Routes:\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")
	sb.WriteString(fmt.Sprintf("%-8s %-40s %-20s\n", "METHOD", "PATTERN", "NAME"))
	sb.WriteString(strings.Repeat("-", 80) + "\n")

	for _, info := range r.registeredRoutes {
		sb.WriteString(fmt.Sprintf("%-8s %-40s %-20s\n", info.Method, info.Pattern, info.Name))
	}

	return sb.String()
}

// RouteListJSON returns route information as a structured format
func (r *Router) RouteListJSON() []RouteInfo {
	routes := make([]RouteInfo, len(r.registeredRoutes))
	for i, route := range r.registeredRoutes {
		routes[i] = *route
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Pattern < routes[j].Pattern })
	return routes
}

// URL generates a URL for a named operation with parameters
func (r *Router) URL(name string, params map[string]string) (string, error) {
	var route *RouteInfo
	for _, info := range r.registeredRoutes {
		if info.Name == name {
			route = info
			break
		}
	}
	if route == nil {
		return "", apierr.OperationNotFound("", name)
	}

	url := route.Pattern
	for _, param := range route.Parameters {
		value, ok := params[param]
		if !ok {
			return "", fmt.Errorf("missing parameter %q for route %s", param, name)
		}
		url = replaceVariable(url, param, value)
	}
	return url, nil
}

// replaceVariable substitutes the first {name} or {name:regexp} segment
func replaceVariable(pattern, name, value string) string {
	start := strings.Index(pattern, "{"+name)
	for start >= 0 {
		rest := pattern[start+1+len(name):]
		if strings.HasPrefix(rest, "}") || strings.HasPrefix(rest, ":") {
			end := strings.Index(pattern[start:], "}")
			return pattern[:start] + value + pattern[start+end+1:]
		}
		next := strings.Index(pattern[start+1:], "{"+name)
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return pattern
}
