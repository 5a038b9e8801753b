package serializer

import (
	"context"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

// included collects the resource objects embedded in a JSON:API document,
// once per type and id
type included struct {
	seen map[string]bool
	docs []interface{}
}

func (i *included) add(obj map[string]interface{}) {
	key, _ := obj["type"].(string)
	id, _ := obj["id"].(string)
	key += "|" + id
	if i.seen == nil {
		i.seen = make(map[string]bool)
	}
	if i.seen[key] {
		return
	}
	i.seen[key] = true
	i.docs = append(i.docs, obj)
}

// JSONAPIItemNormalizer writes items as JSON:API resource objects. The
// identifier is the IRI and identifier properties are written as _id.
// Readable links go to the top-level included member.
type JSONAPIItemNormalizer struct {
	objects
}

// NewJSONAPIItemNormalizer creates the normalizer
func NewJSONAPIItemNormalizer(cfg Config) *JSONAPIItemNormalizer {
	return &JSONAPIItemNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONAPIItemNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	return format == metadata.FormatJSONAPI && n.supports(data)
}

// Normalize implements Normalizer. The root item is wrapped in a document;
// nested items return their resource object.
func (n *JSONAPIItemNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	root := sctx.included == nil
	if root {
		sctx.included = &included{}
	}

	obj, err := n.resourceObject(ctx, data, format, sctx)
	if err != nil {
		return nil, err
	}
	if !root {
		return obj, nil
	}
	doc := map[string]interface{}{"data": obj}
	if len(sctx.included.docs) > 0 {
		doc["included"] = sctx.included.docs
	}
	return doc, nil
}

func (n *JSONAPIItemNormalizer) resourceObject(ctx context.Context, data interface{}, format string, sctx *Context) (map[string]interface{}, error) {
	class, _ := n.cfg.Classes.ClassOf(data)
	short := n.shortName(class)

	attrs, err := n.attributes(ctx, class, data, sctx)
	if err != nil {
		return nil, err
	}
	fields, sparse := sctx.Fields[short]
	keep := func(name string) bool {
		if !sparse {
			return true
		}
		for _, f := range fields {
			if f == name {
				return true
			}
		}
		return false
	}

	attributes := map[string]interface{}{}
	relationships := map[string]interface{}{}
	for _, attr := range attrs {
		if attr.related != "" {
			if !keep(attr.name) {
				continue
			}
			rel, err := n.relationship(ctx, attr, format, sctx)
			if err != nil {
				return nil, err
			}
			relationships[attr.name] = rel
			continue
		}

		name := attr.name
		if attr.prop.IsIdentifier() {
			name = "_id"
		} else if !keep(name) {
			continue
		}
		value, err := n.value(ctx, attr, format, sctx)
		if err != nil {
			return nil, err
		}
		if value == nil && sctx.SkipNullValues {
			continue
		}
		attributes[name] = value
	}

	self, err := n.itemIRI(ctx, class, data)
	if err != nil {
		return nil, err
	}
	if self == "" {
		// value objects are plain attribute maps
		return attributes, nil
	}

	obj := map[string]interface{}{
		"id":    self,
		"type":  short,
		"links": map[string]interface{}{"self": self},
	}
	if len(attributes) > 0 {
		obj["attributes"] = attributes
	}
	if len(relationships) > 0 {
		obj["relationships"] = relationships
	}
	return obj, nil
}

// relationship returns the linkage of an association and adds embedded
// objects to included
func (n *JSONAPIItemNormalizer) relationship(ctx context.Context, attr attribute, format string, sctx *Context) (map[string]interface{}, error) {
	short := n.shortName(attr.related)
	items := related(attr)

	linkage := make([]interface{}, 0, len(items))
	for _, item := range items {
		iri, err := n.cfg.IRIs.IRIFromItem(ctx, item)
		if err != nil {
			return nil, err
		}
		linkage = append(linkage, map[string]interface{}{"type": short, "id": iri})

		if attr.prop.IsReadableLink() {
			embedded, err := n.serializer.Normalize(ctx, item, format, sctx.child(attr.related))
			if err != nil {
				return nil, err
			}
			if obj, ok := embedded.(map[string]interface{}); ok {
				sctx.included.add(obj)
			}
		}
	}

	if attr.prop.Type().Collection {
		return map[string]interface{}{"data": linkage}, nil
	}
	if len(linkage) == 0 {
		return map[string]interface{}{"data": nil}, nil
	}
	return map[string]interface{}{"data": linkage[0]}, nil
}

// JSONAPICollectionNormalizer writes paginators as JSON:API documents with
// links and meta
type JSONAPICollectionNormalizer struct {
	objects
}

// NewJSONAPICollectionNormalizer creates the normalizer
func NewJSONAPICollectionNormalizer(cfg Config) *JSONAPICollectionNormalizer {
	return &JSONAPICollectionNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONAPICollectionNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	_, ok := data.(*state.Paginator)
	return ok && format == metadata.FormatJSONAPI
}

// Normalize implements Normalizer
func (n *JSONAPICollectionNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	page := data.(*state.Paginator)
	if sctx.included == nil {
		sctx.included = &included{}
	}

	items := make([]interface{}, 0, page.Len())
	for _, item := range page.Items {
		obj, err := n.serializer.Normalize(ctx, item, format, sctx.child(sctx.ResourceClass))
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	doc := map[string]interface{}{
		"data":  items,
		"links": map[string]interface{}{"self": sctx.RequestURI},
	}
	if len(sctx.included.docs) > 0 {
		doc["included"] = sctx.included.docs
	}

	info := pageInfoOf(page)
	meta := map[string]interface{}{
		"meta": map[string]interface{}{"totalItems": info.total},
	}
	if info.paginated {
		l := linksOf(sctx.RequestURI, n.cfg.pageParameter(), info)
		links := map[string]interface{}{
			"self":  l.self,
			"first": l.first,
			"last":  l.last,
		}
		if l.prev != "" {
			links["prev"] = l.prev
		}
		if l.next != "" {
			links["next"] = l.next
		}
		meta["links"] = links
		meta["meta"] = map[string]interface{}{
			"totalItems":   info.total,
			"itemsPerPage": info.itemsPerPage,
			"currentPage":  info.current,
		}
	}
	return Union(meta, doc), nil
}
