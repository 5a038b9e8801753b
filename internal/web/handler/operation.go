// Package handler serves resource operations: it negotiates the format,
// reads through the state providers, decodes and writes request bodies and
// serializes the result.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/serializer"
	"github.com/conduit-lang/hyperapi/internal/state"
	webcontext "github.com/conduit-lang/hyperapi/internal/web/context"
	"github.com/conduit-lang/hyperapi/internal/web/query"
	"github.com/conduit-lang/hyperapi/internal/web/response"
)

// DefaultMaxBodyBytes bounds request bodies when Config.MaxBodyBytes is 0
const DefaultMaxBodyBytes = 1 << 20

// Config holds the collaborators shared by every operation handler
type Config struct {
	Serializer *serializer.Serializer
	States     *state.Registry
	IRIs       *iri.Converter

	// MaxBodyBytes bounds the size of request bodies
	MaxBodyBytes int64

	// Debug exposes the message of server errors in error documents
	Debug bool

	Logger *zap.Logger
}

// Operation serves one operation of a resource
type Operation struct {
	cfg     Config
	ref     *metadata.OperationRef
	builder *serializer.ContextBuilder
}

// New creates the handler of ref
func New(cfg Config, ref *metadata.OperationRef) *Operation {
	cfg.Logger = logging.OrNop(cfg.Logger)
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Operation{cfg: cfg, ref: ref, builder: serializer.NewContextBuilder()}
}

// ServeHTTP implements http.Handler
func (h *Operation) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := h.ref.Operation
	accept := r.Header.Get("Accept")
	format, ok := response.Negotiate(accept, op.Formats)
	if !ok {
		response.RenderNotAcceptable(w, accept, response.MimeTypes(op.Formats))
		return
	}
	r = r.WithContext(serializer.WithFormat(r.Context(), format.Name))

	status, body, headers, err := h.serve(r, format.Name)
	if err != nil {
		h.fail(w, r, format.Name, err)
		return
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.Header().Add("Vary", "Accept")
	if err := response.Write(w, status, response.ContentType(format.Name), body); err != nil {
		webcontext.Logger(r.Context(), h.cfg.Logger).Debug("writing response", zap.Error(err))
	}
}

// serve runs read, deserialize, write and serialize. It returns the status,
// the encoded document and extra headers.
func (h *Operation) serve(r *http.Request, format string) (int, []byte, map[string]string, error) {
	ctx := r.Context()
	op := h.ref.Operation
	params := query.ParseRequest(r)
	req := state.Request{
		UriVariables: uriVariables(r, op),
		Filters:      filter.NewContext(params),
	}

	var data interface{}
	var err error
	if op.Kind != metadata.KindPost {
		data, err = h.cfg.States.Provide(ctx, h.ref, req)
		if err != nil {
			return 0, nil, nil, err
		}
		req.Previous = data
	}

	switch op.Kind {
	case metadata.KindPost, metadata.KindPut, metadata.KindPatch:
		data, err = h.deserialize(r, data)
		if err != nil {
			return 0, nil, nil, err
		}
	}

	if op.Kind != metadata.KindGet && op.Kind != metadata.KindGetCollection {
		data, err = h.cfg.States.Process(ctx, h.ref, data, req)
		if err != nil {
			return 0, nil, nil, err
		}
	}

	if op.Kind == metadata.KindDelete {
		return statusOr(op.Status, http.StatusNoContent), nil, nil, nil
	}

	nctx := h.builder.CreateFromRequest(r, true, h.ref)
	nctx.Format = format
	nctx.Fields = query.ParseFields(params)
	body, err := h.cfg.Serializer.Serialize(ctx, data, format, nctx)
	if err != nil {
		return 0, nil, nil, err
	}

	headers := map[string]string{}
	status := statusOr(op.Status, http.StatusOK)
	if op.Kind == metadata.KindPost {
		status = statusOr(op.Status, http.StatusCreated)
		if location, ok := h.location(ctx, data); ok {
			headers["Location"] = location
			headers["Content-Location"] = location
		}
	}
	return status, body, headers, nil
}

// deserialize decodes the request body into a new item, or into previous
// when the operation updates one
func (h *Operation) deserialize(r *http.Request, previous interface{}) (interface{}, error) {
	op := h.ref.Operation
	input, err := response.InputFormat(r.Header.Get("Content-Type"), op.InputFormats)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.InvalidArgument("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	dctx := h.builder.CreateFromRequest(r, false, h.ref)
	dctx.Format = input.Name
	dctx.ObjectToPopulate = previous
	return h.cfg.Serializer.Deserialize(r.Context(), body, h.ref.Class, input.Name, dctx)
}

func (h *Operation) location(ctx context.Context, data interface{}) (string, bool) {
	if h.cfg.IRIs == nil || data == nil {
		return "", false
	}
	loc, err := h.cfg.IRIs.IRIFromItem(ctx, data)
	if err != nil {
		webcontext.Logger(ctx, h.cfg.Logger).Debug("no location for created item", zap.String("class", h.ref.Class), zap.Error(err))
		return "", false
	}
	return loc, true
}

func (h *Operation) fail(w http.ResponseWriter, r *http.Request, format string, err error) {
	logger := webcontext.Logger(r.Context(), h.cfg.Logger)
	fields := []zap.Field{
		zap.String("class", h.ref.Class),
		zap.String("operation", h.ref.Operation.Name),
		zap.Error(err),
	}
	if apierr.StatusCode(err) >= http.StatusInternalServerError {
		logger.Error("operation failed", fields...)
	} else {
		logger.Debug("operation rejected", fields...)
	}
	response.RenderError(w, format, err, h.cfg.Debug)
}

// uriVariables reads the declared uri variables from the route
func uriVariables(r *http.Request, op *metadata.Operation) map[string]string {
	names := op.Variables()
	vars := make(map[string]string, len(names))
	for _, name := range names {
		vars[name] = chi.URLParam(r, name)
	}
	return vars
}

func statusOr(status, fallback int) int {
	if status != 0 {
		return status
	}
	return fallback
}
