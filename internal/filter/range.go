package filter

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// rangeOperators are the accepted sub-keys besides between
var rangeOperators = []struct {
	key      string
	operator query.Operator
}{
	{"gt", query.OpGreaterThan},
	{"gte", query.OpGreaterThanOrEqual},
	{"lt", query.OpLessThan},
	{"lte", query.OpLessThanOrEqual},
}

// RangeFilter filters numeric fields by bounds: ?price[between]=10..20 or
// ?price[gte]=10
type RangeFilter struct {
	base
}

// NewRangeFilter creates a range filter over properties
func NewRangeFilter(registry *schema.Registry, properties Properties, opts ...Option) *RangeFilter {
	return &RangeFilter{base: newBase("range", registry, properties, newConfig(opts))}
}

// Apply implements Filter. A between value without exactly two operands
// fails with apierr.InvalidArgument.
func (f *RangeFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	for _, property := range fctx.keys() {
		if err := f.filterProperty(qb, names, property, fctx.Filters[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *RangeFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !isNumericPath(path) {
		f.skip(property, value, "property is not a numeric field")
		return nil
	}
	sub, ok := subValues(value)
	if !ok {
		f.skip(property, value, "expected between, gt, gte, lt or lte sub-keys")
		return nil
	}

	var predicates []func(field query.FieldRef)

	if v, present := sub["between"]; present {
		raw, ok := singleValue(v)
		if !ok {
			return apierr.InvalidArgument("invalid value for %s[between]: expected <min>..<max>", property)
		}
		operands := strings.Split(raw, "..")
		if len(operands) != 2 {
			return apierr.InvalidArgument("invalid format for %s[between]: expected <min>..<max>, got %q", property, raw)
		}
		low, lowOK := parseFloat(operands[0])
		high, highOK := parseFloat(operands[1])
		if !lowOK || !highOK {
			f.skip(property, raw, "between operands must be numeric")
		} else {
			predicates = append(predicates, func(field query.FieldRef) {
				if low == high {
					param := names.Parameter(path.Leaf)
					qb.AndWhere(query.Eq(field, param))
					qb.SetParameter(param, low)
					return
				}
				lowParam := names.Parameter(path.Leaf + "_1")
				highParam := names.Parameter(path.Leaf + "_2")
				qb.AndWhere(query.Cond(field, query.OpBetween, query.Param(lowParam), query.Param(highParam)))
				qb.SetParameter(lowParam, low)
				qb.SetParameter(highParam, high)
			})
		}
	}

	for _, op := range rangeOperators {
		v, present := sub[op.key]
		if !present {
			continue
		}
		raw, ok := singleValue(v)
		if !ok {
			f.skip(property, v, fmt.Sprintf("expected a single value for %s", op.key))
			continue
		}
		n, ok := parseFloat(raw)
		if !ok {
			f.skip(property, raw, fmt.Sprintf("%s operand must be numeric", op.key))
			continue
		}
		operator, key := op.operator, op.key
		predicates = append(predicates, func(field query.FieldRef) {
			param := names.Parameter(path.Leaf + "_" + key)
			qb.AndWhere(query.Cond(field, operator, query.Param(param)))
			qb.SetParameter(param, n)
		})
	}

	if len(predicates) == 0 {
		return nil
	}
	alias, err := f.alias(qb, names, path, query.InnerJoin)
	if err != nil {
		return err
	}
	field := query.Field(alias, path.Leaf)
	for _, add := range predicates {
		add(field)
	}
	return nil
}

// Description implements Filter
func (f *RangeFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, isNumericPath) {
		out[path.Property+"[between]"] = Description{Property: path.Property, Type: "string"}
		for _, op := range rangeOperators {
			out[fmt.Sprintf("%s[%s]", path.Property, op.key)] = Description{Property: path.Property, Type: typeName(path)}
		}
	}
	return out
}
