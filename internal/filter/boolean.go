package filter

import (
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// BooleanFilter filters boolean fields: ?published=true
type BooleanFilter struct {
	base
}

// NewBooleanFilter creates a boolean filter over properties
func NewBooleanFilter(registry *schema.Registry, properties Properties, opts ...Option) *BooleanFilter {
	return &BooleanFilter{base: newBase("boolean", registry, properties, newConfig(opts))}
}

// Apply implements Filter
func (f *BooleanFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	for _, property := range fctx.keys() {
		if err := f.filterProperty(qb, names, property, fctx.Filters[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *BooleanFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !path.IsField() || !path.Field.Type.IsBool() {
		f.skip(property, value, "property is not a boolean field")
		return nil
	}

	raw, ok := singleValue(value)
	if !ok {
		f.skip(property, value, "expected a single value")
		return nil
	}
	b, ok := parseBool(raw)
	if !ok {
		f.skip(property, value, `expected one of "true", "false", "1", "0"`)
		return nil
	}

	alias, err := f.alias(qb, names, path, query.InnerJoin)
	if err != nil {
		return err
	}
	param := names.Parameter(path.Leaf)
	qb.AndWhere(query.Eq(query.Field(alias, path.Leaf), param))
	qb.SetParameter(param, b)
	return nil
}

// Description implements Filter
func (f *BooleanFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, func(p *schema.PropertyPath) bool {
		return p.IsField() && p.Field.Type.IsBool()
	}) {
		out[path.Property] = Description{Property: path.Property, Type: "bool"}
	}
	return out
}
