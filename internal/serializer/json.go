package serializer

import (
	"context"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

// JSONItemNormalizer writes items as plain objects; associations are IRIs
// unless they are readable links
type JSONItemNormalizer struct {
	objects
}

// NewJSONItemNormalizer creates the normalizer
func NewJSONItemNormalizer(cfg Config) *JSONItemNormalizer {
	return &JSONItemNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONItemNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	return format == metadata.FormatJSON && n.supports(data)
}

// Normalize implements Normalizer
func (n *JSONItemNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	class, _ := n.cfg.Classes.ClassOf(data)
	attrs, err := n.attributes(ctx, class, data, sctx)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		var value interface{}
		if attr.related != "" {
			value, err = n.relation(ctx, attr, format, sctx)
		} else {
			value, err = n.value(ctx, attr, format, sctx)
		}
		if err != nil {
			return nil, err
		}
		if value == nil && sctx.SkipNullValues {
			continue
		}
		doc[attr.name] = value
	}
	return doc, nil
}

// JSONCollectionNormalizer writes paginators as a plain list of items
type JSONCollectionNormalizer struct {
	objects
}

// NewJSONCollectionNormalizer creates the normalizer
func NewJSONCollectionNormalizer(cfg Config) *JSONCollectionNormalizer {
	return &JSONCollectionNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONCollectionNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	_, ok := data.(*state.Paginator)
	return ok && format == metadata.FormatJSON
}

// Normalize implements Normalizer
func (n *JSONCollectionNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	page := data.(*state.Paginator)
	out := make([]interface{}, 0, page.Len())
	for _, item := range page.Items {
		doc, err := n.serializer.Normalize(ctx, item, format, sctx.child(sctx.ResourceClass))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
