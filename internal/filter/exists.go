package filter

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// DefaultExistsParameter is the query key read by the exists filter
const DefaultExistsParameter = "exists"

// ExistsFilter tests whether a nullable field or an association holds a
// value: ?exists[brand]=false
type ExistsFilter struct {
	base
	parameter string
}

// NewExistsFilter creates an exists filter over properties
func NewExistsFilter(registry *schema.Registry, properties Properties, opts ...Option) *ExistsFilter {
	c := newConfig(opts)
	if c.parameter == "" {
		c.parameter = DefaultExistsParameter
	}
	return &ExistsFilter{base: newBase("exists", registry, properties, c), parameter: c.parameter}
}

// Apply implements Filter
func (f *ExistsFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	raw, present := fctx.Filters[f.parameter]
	if !present {
		return nil
	}
	sub, ok := subValues(raw)
	if !ok {
		f.skip(f.parameter, raw, "expected exists[property]=true|false")
		return nil
	}

	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, property := range keys {
		if err := f.filterProperty(qb, names, property, sub[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *ExistsFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !isNullablePath(path) {
		f.skip(property, value, "property is not nullable")
		return nil
	}

	raw, ok := singleValue(value)
	if !ok {
		f.skip(property, value, "expected a single value")
		return nil
	}
	exists, ok := parseBool(raw)
	if !ok {
		f.skip(property, raw, `expected one of "true", "false", "1", "0"`)
		return nil
	}

	alias, err := f.alias(qb, names, path, query.LeftJoin)
	if err != nil {
		return err
	}
	field := query.Field(alias, path.Leaf)

	var op query.Operator
	switch {
	case path.IsAssociation() && path.Association.IsToMany():
		op = query.OpIsEmpty
		if exists {
			op = query.OpIsNotEmpty
		}
	default:
		op = query.OpIsNull
		if exists {
			op = query.OpIsNotNull
		}
	}
	qb.AndWhere(query.Cond(field, op))
	return nil
}

// Description implements Filter
func (f *ExistsFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, isNullablePath) {
		key := fmt.Sprintf("%s[%s]", f.parameter, path.Property)
		out[key] = Description{Property: path.Property, Type: "bool"}
	}
	return out
}

// isNullablePath reports whether a property can be absent: nullable
// columns, nullable to-one associations and every to-many association
func isNullablePath(p *schema.PropertyPath) bool {
	if p.IsField() {
		return p.Field.Type.Nullable
	}
	return p.Association.IsToMany() || p.Association.Nullable
}
