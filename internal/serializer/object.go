package serializer

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/state"
)

// Config holds the collaborators of the normalizers
type Config struct {
	Index      *metadata.Index
	Classes    *metadata.ClassRegistry
	Names      metadata.PropertyNameCollectionFactory
	Properties metadata.PropertyMetadataFactory
	IRIs       *iri.Converter
	// Filters describes collection filters in hydra:search; may be nil
	Filters *filter.Locator
	// PageParameter is the query parameter of pagination links
	PageParameter string
	Logger        *zap.Logger
}

func (c Config) pageParameter() string {
	if c.PageParameter == "" {
		return state.DefaultPageParameter
	}
	return c.PageParameter
}

// NewDefault wires every built-in normalizer: collections, then items, then
// scalars. JSON is the fallback for items of any format.
func NewDefault(cfg Config, opts ...Option) *Serializer {
	cfg.Logger = logging.OrNop(cfg.Logger)
	normalizers := []Normalizer{
		NewJSONLDCollectionNormalizer(cfg),
		NewHALCollectionNormalizer(cfg),
		NewJSONAPICollectionNormalizer(cfg),
		NewJSONCollectionNormalizer(cfg),
		NewJSONLDItemNormalizer(cfg),
		NewHALItemNormalizer(cfg),
		NewJSONAPIItemNormalizer(cfg),
		NewJSONItemNormalizer(cfg),
		NewScalarNormalizer(),
	}
	denormalizers := []Denormalizer{
		NewItemDenormalizer(cfg),
	}
	return New(normalizers, denormalizers, append([]Option{WithLogger(cfg.Logger)}, opts...)...)
}

// objects reads resources through property metadata. It is shared by the
// item normalizers of every format.
type objects struct {
	delegate
	cfg Config
}

// attribute is one readable property of an object
type attribute struct {
	name string
	prop *metadata.Property
	// value is invalid when a nil pointer is in the way
	value reflect.Value
	// related is set for associations to classes with an item operation
	related string
}

func (a attribute) isNil() bool {
	return !a.value.IsValid()
}

// supports reports whether data is an instance of a registered class
func (o *objects) supports(data interface{}) bool {
	if data == nil {
		return false
	}
	if _, ok := data.(*state.Paginator); ok {
		return false
	}
	_, ok := o.cfg.Classes.ClassOf(data)
	return ok
}

// attributes lists the readable properties of item under the groups of
// sctx, in declaration order
func (o *objects) attributes(ctx context.Context, class string, item interface{}, sctx *Context) ([]attribute, error) {
	names, err := o.cfg.Names.Create(ctx, class, metadata.PropertyOptions{SerializerGroups: sctx.Groups})
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	out := make([]attribute, 0, len(names))
	for _, name := range names {
		prop, err := o.cfg.Properties.Create(ctx, class, name, metadata.PropertyOptions{NormalizationGroups: sctx.Groups})
		if err != nil {
			return nil, err
		}
		if !prop.IsReadable() {
			continue
		}
		attr := attribute{name: name, prop: prop}
		if fv, ok := readField(v, prop.FieldIndex); ok {
			attr.value = fv
		}
		if related, ok := prop.RelatedClass(); ok {
			if _, hasItem := o.cfg.Index.ItemOperation(related); hasItem {
				attr.related = related
			}
		}
		out = append(out, attr)
	}
	return out, nil
}

// itemIRI returns the IRI of item, or "" when its class has no item
// operation
func (o *objects) itemIRI(ctx context.Context, class string, item interface{}) (string, error) {
	if _, ok := o.cfg.Index.ItemOperation(class); !ok {
		return "", nil
	}
	return o.cfg.IRIs.IRIFromItem(ctx, item)
}

// shortName returns the public name of class
func (o *objects) shortName(class string) string {
	if coll, err := o.cfg.Index.Collection(class); err == nil && len(coll.Resources) > 0 && coll.Resources[0].ShortName != "" {
		return coll.Resources[0].ShortName
	}
	return class
}

// value normalizes a non-relation attribute
func (o *objects) value(ctx context.Context, attr attribute, format string, sctx *Context) (interface{}, error) {
	if attr.isNil() {
		return nil, nil
	}
	return o.serializer.Normalize(ctx, attr.value.Interface(), format, sctx.child(sctx.ResourceClass))
}

// relation normalizes an association: an embedded document when the
// property is a readable link, an IRI otherwise. To-many associations give
// a list.
func (o *objects) relation(ctx context.Context, attr attribute, format string, sctx *Context) (interface{}, error) {
	if attr.isNil() {
		return nil, nil
	}
	one := func(v reflect.Value) (interface{}, error) {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		item := addressable(v)
		if attr.prop.IsReadableLink() {
			return o.serializer.Normalize(ctx, item, format, sctx.child(attr.related))
		}
		return o.cfg.IRIs.IRIFromItem(ctx, item)
	}

	if attr.value.Kind() == reflect.Slice || attr.value.Kind() == reflect.Array {
		out := make([]interface{}, 0, attr.value.Len())
		for i := 0; i < attr.value.Len(); i++ {
			n, err := one(attr.value.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return one(attr.value)
}

// related returns the related values of an association as pointers,
// skipping nils
func related(attr attribute) []interface{} {
	if attr.isNil() {
		return nil
	}
	var out []interface{}
	add := func(v reflect.Value) {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		out = append(out, addressable(v))
	}
	if attr.value.Kind() == reflect.Slice || attr.value.Kind() == reflect.Array {
		for i := 0; i < attr.value.Len(); i++ {
			add(attr.value.Index(i))
		}
		return out
	}
	add(attr.value)
	return out
}

// addressable returns a pointer to the struct held by v
func addressable(v reflect.Value) interface{} {
	if v.CanAddr() {
		return v.Addr().Interface()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p.Interface()
}

// readField walks index from a struct value and dereferences the result.
// It reports false when a nil pointer is in the way.
func readField(v reflect.Value, index []int) (reflect.Value, bool) {
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}, false
	}
	for f.Kind() == reflect.Ptr || f.Kind() == reflect.Interface {
		if f.IsNil() {
			return reflect.Value{}, false
		}
		f = f.Elem()
	}
	if f.Kind() == reflect.Slice && f.IsNil() {
		return reflect.Value{}, false
	}
	return f, true
}
