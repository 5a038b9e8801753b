package serializer

import (
	"context"
	"net/http"

	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// Context keys read from normalization and denormalization contexts
const (
	SkipNullValuesKey       = "skip_null_values"
	AllowExtraAttributesKey = "allow_extra_attributes"
)

// Context is the per-pass serialization state. It is built once per request
// and copied into nested calls with child, which keeps the format markers.
type Context struct {
	ResourceClass string
	Operation     *metadata.OperationRef
	Groups        []string
	Format        string

	// RequestURI is the path and query of the request, used for
	// collection ids and pagination links
	RequestURI string

	// Fields are the sparse fieldsets requested per resource type
	Fields map[string][]string

	// ObjectToPopulate is the item a denormalization writes into
	ObjectToPopulate interface{}

	SkipNullValues bool

	// RejectExtraAttributes fails on payload keys matching no writable
	// property instead of ignoring them
	RejectExtraAttributes bool

	Depth int

	// Extra holds the declared context values with no dedicated field
	Extra metadata.Context

	// JSONLDHasContext is set once a @context was emitted
	JSONLDHasContext bool

	// HALHasContext is set once the root HAL document was started
	HALHasContext bool

	included *included
}

// child returns the context of a nested value of class
func (c *Context) child(class string) *Context {
	out := *c
	out.ResourceClass = class
	out.ObjectToPopulate = nil
	out.Depth = c.Depth + 1
	return &out
}

// IsRoot reports whether the context is the top of the document
func (c *Context) IsRoot() bool {
	return c.Depth == 0
}

type formatKey struct{}

// WithFormat records the negotiated format on a request context
func WithFormat(ctx context.Context, format string) context.Context {
	return context.WithValue(ctx, formatKey{}, format)
}

// FormatFrom returns the format recorded by WithFormat
func FormatFrom(ctx context.Context) (string, bool) {
	f, ok := ctx.Value(formatKey{}).(string)
	return f, ok && f != ""
}

// ContextBuilder creates serialization contexts from requests and operation
// metadata
type ContextBuilder struct{}

// NewContextBuilder creates a context builder
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{}
}

// CreateFromRequest builds the context of one (de)normalization pass. The
// declared context of the operation overrides the one of its resource.
func (b *ContextBuilder) CreateFromRequest(r *http.Request, normalization bool, ref *metadata.OperationRef) *Context {
	declared := b.declared(normalization, ref)

	sctx := &Context{
		ResourceClass: ref.Class,
		Operation:     ref,
		Groups:        declared.Groups(),
		RequestURI:    r.URL.RequestURI(),
		Extra:         declared,
	}
	if f, ok := FormatFrom(r.Context()); ok {
		sctx.Format = f
	}
	if v, ok := declared[SkipNullValuesKey].(bool); ok {
		sctx.SkipNullValues = v
	}
	if v, ok := declared[AllowExtraAttributesKey].(bool); ok {
		sctx.RejectExtraAttributes = !v
	}
	return sctx
}

func (b *ContextBuilder) declared(normalization bool, ref *metadata.OperationRef) metadata.Context {
	var op, res metadata.Context
	if normalization {
		op = ref.Operation.NormalizationContext
		if ref.Resource != nil {
			res = ref.Resource.NormalizationContext
		}
	} else {
		op = ref.Operation.DenormalizationContext
		if ref.Resource != nil {
			res = ref.Resource.DenormalizationContext
		}
	}
	out := op.Clone()
	if out == nil {
		out = metadata.Context{}
	}
	return out.Merge(res)
}
