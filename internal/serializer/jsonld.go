package serializer

import (
	"context"
	"sort"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

// HydraNamespace is the Hydra core vocabulary
const HydraNamespace = "http://www.w3.org/ns/hydra/core#"

// ContextIRI returns the IRI of the JSON-LD context of a short name
func ContextIRI(shortName string) string {
	return "/contexts/" + shortName
}

// AddJSONLDContext sets @context on doc unless the pass already emitted one
// or doc has its own. Calling it again on the same pass is a no-op.
func AddJSONLDContext(doc map[string]interface{}, contextIRI string, sctx *Context) map[string]interface{} {
	if sctx.JSONLDHasContext {
		return doc
	}
	if _, ok := doc["@context"]; !ok {
		doc["@context"] = contextIRI
	}
	sctx.JSONLDHasContext = true
	return doc
}

// JSONLDItemNormalizer writes items as JSON-LD nodes with @id and @type
type JSONLDItemNormalizer struct {
	objects
}

// NewJSONLDItemNormalizer creates the normalizer
func NewJSONLDItemNormalizer(cfg Config) *JSONLDItemNormalizer {
	return &JSONLDItemNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONLDItemNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	return format == metadata.FormatJSONLD && n.supports(data)
}

// Normalize implements Normalizer
func (n *JSONLDItemNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	class, _ := n.cfg.Classes.ClassOf(data)
	short := n.shortName(class)

	doc := map[string]interface{}{}
	AddJSONLDContext(doc, ContextIRI(short), sctx)
	id, err := n.itemIRI(ctx, class, data)
	if err != nil {
		return nil, err
	}
	if id != "" {
		doc["@id"] = id
	}
	doc["@type"] = short

	attrs, err := n.attributes(ctx, class, data, sctx)
	if err != nil {
		return nil, err
	}
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

// JSONLDCollectionNormalizer writes paginators as hydra:Collection
type JSONLDCollectionNormalizer struct {
	objects
}

// NewJSONLDCollectionNormalizer creates the normalizer
func NewJSONLDCollectionNormalizer(cfg Config) *JSONLDCollectionNormalizer {
	return &JSONLDCollectionNormalizer{objects: objects{cfg: cfg}}
}

// SupportsNormalization implements Normalizer
func (n *JSONLDCollectionNormalizer) SupportsNormalization(data interface{}, format string, _ *Context) bool {
	_, ok := data.(*state.Paginator)
	return ok && format == metadata.FormatJSONLD
}

// Normalize implements Normalizer
func (n *JSONLDCollectionNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	page := data.(*state.Paginator)
	info := pageInfoOf(page)

	doc := map[string]interface{}{}
	AddJSONLDContext(doc, ContextIRI(n.shortName(sctx.ResourceClass)), sctx)
	doc["@id"] = requestPath(sctx.RequestURI)
	doc["@type"] = "hydra:Collection"

	members := make([]interface{}, 0, page.Len())
	for _, item := range page.Items {
		m, err := n.serializer.Normalize(ctx, item, format, sctx.child(sctx.ResourceClass))
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	doc["hydra:member"] = members

	meta := map[string]interface{}{"hydra:totalItems": info.total}
	if info.paginated {
		meta["hydra:view"] = n.view(sctx.RequestURI, info)
	}
	if search := n.search(sctx); search != nil {
		meta["hydra:search"] = search
	}
	return Union(doc, meta), nil
}

func (n *JSONLDCollectionNormalizer) view(requestURI string, info pageInfo) map[string]interface{} {
	links := linksOf(requestURI, n.cfg.pageParameter(), info)
	view := map[string]interface{}{
		"@id":         links.self,
		"@type":       "hydra:PartialCollectionView",
		"hydra:first": links.first,
		"hydra:last":  links.last,
	}
	if links.prev != "" {
		view["hydra:previous"] = links.prev
	}
	if links.next != "" {
		view["hydra:next"] = links.next
	}
	return view
}

// search describes the filters of the operation as a hydra:IriTemplate
func (n *JSONLDCollectionNormalizer) search(sctx *Context) map[string]interface{} {
	if n.cfg.Filters == nil || sctx.Operation == nil || len(sctx.Operation.Operation.Filters) == 0 {
		return nil
	}
	descriptions, err := n.cfg.Filters.Describe(sctx.ResourceClass, sctx.Operation.Operation)
	if err != nil || len(descriptions) == 0 {
		return nil
	}
	keys := make([]string, 0, len(descriptions))
	for k := range descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mapping := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		d := descriptions[k]
		mapping = append(mapping, map[string]interface{}{
			"@type":    "IriTemplateMapping",
			"variable": k,
			"property": d.Property,
			"required": d.Required,
		})
	}
	return map[string]interface{}{
		"@type":                        "hydra:IriTemplate",
		"hydra:template":               requestPath(sctx.RequestURI) + "{?" + strings.Join(keys, ",") + "}",
		"hydra:variableRepresentation": "BasicRepresentation",
		"hydra:mapping":                mapping,
	}
}

// ContextDocument builds the JSON-LD context served at ContextIRI. Every
// readable property maps into the vocabulary of the resource; associations
// are typed as @id.
func (n *JSONLDItemNormalizer) ContextDocument(ctx context.Context, class string) (map[string]interface{}, error) {
	names, err := n.cfg.Names.Create(ctx, class, metadata.PropertyOptions{})
	if err != nil {
		return nil, err
	}
	short := n.shortName(class)
	terms := map[string]interface{}{
		"@vocab": "/docs.jsonld#",
		"hydra":  HydraNamespace,
	}
	for _, name := range names {
		prop, err := n.cfg.Properties.Create(ctx, class, name, metadata.PropertyOptions{})
		if err != nil {
			return nil, err
		}
		if prop.IsIdentifier() {
			continue
		}
		id := short + "/" + name
		if _, ok := prop.RelatedClass(); ok {
			terms[name] = map[string]interface{}{"@id": id, "@type": "@id"}
			continue
		}
		terms[name] = id
	}
	return map[string]interface{}{"@context": terms}, nil
}
