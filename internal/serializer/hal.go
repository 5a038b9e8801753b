package serializer

import (
	"context"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

func halLink(href string) map[string]interface{} {
	return map[string]interface{}{"href": href}
}

// HALItemNormalizer writes items with _links and _embedded
type HALItemNormalizer struct {
	objects
}

// NewHALItemNormalizer creates the normalizer
func NewHALItemNormalizer(cfg Config) *HALItemNormalizer {
	return &HALItemNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *HALItemNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	return format == metadata.FormatHAL && n.supports(data)
}

// Normalize implements Normalizer. Every association gets a link; readable
// links are also embedded.
func (n *HALItemNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	sctx.HALHasContext = true
	class, _ := n.cfg.Classes.ClassOf(data)

	links := map[string]interface{}{}
	embedded := map[string]interface{}{}
	doc := map[string]interface{}{}

	self, err := n.itemIRI(ctx, class, data)
	if err != nil {
		return nil, err
	}
	if self != "" {
		links["self"] = halLink(self)
	}

	attrs, err := n.attributes(ctx, class, data, sctx)
	if err != nil {
		return nil, err
	}
	for _, attr := range attrs {
		if attr.related == "" {
			value, err := n.value(ctx, attr, format, sctx)
			if err != nil {
				return nil, err
			}
			if value == nil && sctx.SkipNullValues {
				continue
			}
			doc[attr.name] = value
			continue
		}

		items := related(attr)
		if len(items) == 0 {
			continue
		}
		hrefs := make([]interface{}, 0, len(items))
		for _, item := range items {
			iri, err := n.cfg.IRIs.IRIFromItem(ctx, item)
			if err != nil {
				return nil, err
			}
			hrefs = append(hrefs, halLink(iri))
		}
		if attr.prop.Type().Collection {
			links[attr.name] = hrefs
		} else {
			links[attr.name] = hrefs[0]
		}

		if attr.prop.IsReadableLink() {
			value, err := n.relation(ctx, attr, format, sctx)
			if err != nil {
				return nil, err
			}
			embedded[attr.name] = value
		}
	}

	if len(links) > 0 {
		doc["_links"] = links
	}
	if len(embedded) > 0 {
		doc["_embedded"] = embedded
	}
	return doc, nil
}

// HALCollectionNormalizer writes paginators with pagination links and the
// items under _embedded.item
type HALCollectionNormalizer struct {
	objects
}

// NewHALCollectionNormalizer creates the normalizer
func NewHALCollectionNormalizer(cfg Config) *HALCollectionNormalizer {
	return &HALCollectionNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *HALCollectionNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	_, ok := data.(*state.Paginator)
	return ok && format == metadata.FormatHAL
}

// Normalize implements Normalizer. Pagination metadata is only written on
// the root document.
func (n *HALCollectionNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	page := data.(*state.Paginator)
	root := !sctx.HALHasContext
	sctx.HALHasContext = true

	items := make([]interface{}, 0, page.Len())
	links := make([]interface{}, 0, page.Len())
	for _, item := range page.Items {
		doc, err := n.serializer.Normalize(ctx, item, format, sctx.child(sctx.ResourceClass))
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
		if m, ok := doc.(map[string]interface{}); ok {
			if l, ok := m["_links"].(map[string]interface{}); ok && l["self"] != nil {
				links = append(links, l["self"])
			}
		}
	}
	doc := map[string]interface{}{
		"_links":    map[string]interface{}{"self": halLink(sctx.RequestURI), "item": links},
		"_embedded": map[string]interface{}{"item": items},
	}
	if !root {
		return doc, nil
	}

	info := pageInfoOf(page)
	meta := map[string]interface{}{"totalItems": info.total}
	if info.paginated {
		l := linksOf(sctx.RequestURI, n.cfg.pageParameter(), info)
		nav := map[string]interface{}{
			"self":  halLink(l.self),
			"first": halLink(l.first),
			"last":  halLink(l.last),
		}
		if l.prev != "" {
			nav["prev"] = halLink(l.prev)
		}
		if l.next != "" {
			nav["next"] = halLink(l.next)
		}
		meta["_links"] = nav
		meta["itemsPerPage"] = info.itemsPerPage
	}
	return Union(meta, doc), nil
}
