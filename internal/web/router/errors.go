package router

import (
	"fmt"
	"net/http"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/web/response"
)

// ErrorHandler renders routing errors as error documents in the format the
// client accepts
type ErrorHandler struct {
	// Include detailed errors in responses (disable in production)
	ShowDetails bool

	// Formats are the candidates for error documents; the first is the
	// fallback
	Formats metadata.Formats
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(showDetails bool) *ErrorHandler {
	return &ErrorHandler{
		ShowDetails: showDetails,
		Formats:     metadata.KnownFormats,
	}
}

// NotFoundHandler returns a handler for 404 Not Found errors
func (eh *ErrorHandler) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := &routeError{
			status:  http.StatusNotFound,
			message: fmt.Sprintf("no route found for \"%s %s\"", r.Method, r.URL.Path),
		}
		response.RenderError(w, eh.format(r), err, eh.ShowDetails)
	}
}

// MethodNotAllowedHandler returns a handler for 405 Method Not Allowed
// errors. The Allow header lists the methods router serves for the path.
func (eh *ErrorHandler) MethodNotAllowedHandler(router *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w, eh.format(r), router.AllowedMethods(r.URL.Path))
	}
}

// Render writes err as an error document for r. It fits the respond hook of
// middleware.Recovery.
func (eh *ErrorHandler) Render(w http.ResponseWriter, r *http.Request, err error) {
	response.RenderError(w, eh.format(r), err, eh.ShowDetails)
}

func (eh *ErrorHandler) format(r *http.Request) string {
	if f, ok := response.Negotiate(r.Header.Get("Accept"), eh.Formats); ok {
		return f.Name
	}
	return metadata.FormatJSON
}

// routeError is an error with a fixed HTTP status
type routeError struct {
	status  int
	message string
}

func (e *routeError) Error() string { return e.message }

// StatusCode implements apierr.StatusCoder
func (e *routeError) StatusCode() int { return e.status }

// SetupDefaultErrorHandlers configures the router with default error handlers
func SetupDefaultErrorHandlers(r *Router, showDetails bool) {
	eh := NewErrorHandler(showDetails)
	r.NotFound(eh.NotFoundHandler())
	r.MethodNotAllowed(eh.MethodNotAllowedHandler(r))
}
