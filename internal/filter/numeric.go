package filter

import (
	"math"
	"strconv"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// NumericFilter filters numeric fields by equality: ?price=10 or
// ?price[]=10&price[]=20
type NumericFilter struct {
	base
}

// NewNumericFilter creates a numeric filter over properties
func NewNumericFilter(registry *schema.Registry, properties Properties, opts ...Option) *NumericFilter {
	return &NumericFilter{base: newBase("numeric", registry, properties, newConfig(opts))}
}

// Apply implements Filter
func (f *NumericFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	for _, property := range fctx.keys() {
		if err := f.filterProperty(qb, names, property, fctx.Filters[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *NumericFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !path.IsField() || !path.Field.Type.IsNumeric() {
		f.skip(property, value, "property is not a numeric field")
		return nil
	}

	raw, ok := stringValues(value)
	if !ok {
		f.skip(property, value, "expected a value or a list of values")
		return nil
	}
	values := make([]interface{}, 0, len(raw))
	for _, s := range raw {
		n, ok := parseNumber(path.Field.Type, s)
		if !ok {
			f.skip(property, s, "expected a numeric value")
			continue
		}
		values = append(values, n)
	}
	if len(values) == 0 {
		return nil
	}

	alias, err := f.alias(qb, names, path, query.InnerJoin)
	if err != nil {
		return err
	}
	param := names.Parameter(path.Leaf)
	field := query.Field(alias, path.Leaf)
	if len(values) == 1 {
		qb.AndWhere(query.Eq(field, param))
		qb.SetParameter(param, values[0])
		return nil
	}
	qb.AndWhere(query.Cond(field, query.OpIn, query.Param(param)))
	qb.SetParameter(param, values)
	return nil
}

// Description implements Filter
func (f *NumericFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, isNumericPath) {
		typ := typeName(path)
		out[path.Property] = Description{Property: path.Property, Type: typ}
		out[path.Property+"[]"] = Description{Property: path.Property, Type: typ, IsCollection: true}
	}
	return out
}

func isNumericPath(p *schema.PropertyPath) bool {
	return p.IsField() && p.Field.Type.IsNumeric()
}

// parseNumber parses s for a numeric column. Integer columns only accept
// integral values.
func parseNumber(spec *schema.TypeSpec, s string) (interface{}, bool) {
	if spec.IsInteger() {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return int64(f), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

// parseFloat parses any finite number
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
