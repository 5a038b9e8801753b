package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// DefaultOrderParameter is the query key read by the order filter
const DefaultOrderParameter = "order"

// NullsComparison decides where NULL values sort
type NullsComparison int

const (
	// NullsDatabaseDefault leaves NULL placement to the database
	NullsDatabaseDefault NullsComparison = iota
	// NullsSmallest sorts NULL before any value in ascending order
	NullsSmallest
	// NullsLargest sorts NULL after any value in ascending order
	NullsLargest
	// NullsAlwaysFirst sorts NULL first in both directions
	NullsAlwaysFirst
	// NullsAlwaysLast sorts NULL last in both directions
	NullsAlwaysLast
)

// ParseNullsComparison parses nulls_smallest, nulls_largest,
// nulls_always_first or nulls_always_last
func ParseNullsComparison(s string) (NullsComparison, error) {
	switch s {
	case "":
		return NullsDatabaseDefault, nil
	case "nulls_smallest":
		return NullsSmallest, nil
	case "nulls_largest":
		return NullsLargest, nil
	case "nulls_always_first":
		return NullsAlwaysFirst, nil
	case "nulls_always_last":
		return NullsAlwaysLast, nil
	}
	return NullsDatabaseDefault, fmt.Errorf("unknown nulls comparison %q", s)
}

// String returns the configuration name
func (n NullsComparison) String() string {
	switch n {
	case NullsSmallest:
		return "nulls_smallest"
	case NullsLargest:
		return "nulls_largest"
	case NullsAlwaysFirst:
		return "nulls_always_first"
	case NullsAlwaysLast:
		return "nulls_always_last"
	default:
		return ""
	}
}

// placement resolves the comparison for a direction
func (n NullsComparison) placement(direction string) query.NullsOrder {
	switch n {
	case NullsSmallest:
		if direction == "ASC" {
			return query.NullsFirst
		}
		return query.NullsLast
	case NullsLargest:
		if direction == "ASC" {
			return query.NullsLast
		}
		return query.NullsFirst
	case NullsAlwaysFirst:
		return query.NullsFirst
	case NullsAlwaysLast:
		return query.NullsLast
	}
	return query.NullsDefault
}

// normalizeDirection accepts asc and desc in any case
func normalizeDirection(s string) (string, bool) {
	switch d := strings.ToUpper(strings.TrimSpace(s)); d {
	case "ASC", "DESC":
		return d, true
	}
	return "", false
}

// OrderFilter sorts the collection: ?order[title]=desc&order[id]=asc.
// The property option of a Subset is the default direction used when the
// query value is empty.
type OrderFilter struct {
	base
	parameter string
	nulls     map[string]NullsComparison
}

// NewOrderFilter creates an order filter. Default directions must be asc
// or desc.
func NewOrderFilter(registry *schema.Registry, properties Properties, opts ...Option) (*OrderFilter, error) {
	for _, name := range properties.Names() {
		option := properties.Option(name)
		if option == "" {
			continue
		}
		if _, ok := normalizeDirection(option); !ok {
			return nil, fmt.Errorf("order filter property %s: invalid default direction %q", name, option)
		}
	}

	c := newConfig(opts)
	if c.parameter == "" {
		c.parameter = DefaultOrderParameter
	}
	return &OrderFilter{
		base:      newBase("order", registry, properties, c),
		parameter: c.parameter,
		nulls:     c.nulls,
	}, nil
}

// Apply implements Filter. Terms are added in the declaration order of the
// selected properties, or alphabetically when every property is selected.
func (f *OrderFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	raw, present := fctx.Filters[f.parameter]
	if !present {
		return nil
	}
	sub, ok := subValues(raw)
	if !ok {
		f.skip(f.parameter, raw, "expected order[property]=direction")
		return nil
	}

	for _, property := range f.orderedKeys(sub) {
		if err := f.filterProperty(qb, names, property, sub[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *OrderFilter) orderedKeys(sub map[string]interface{}) []string {
	keys := make([]string, 0, len(sub))
	if !f.properties.IsAll() {
		for _, name := range f.properties.Names() {
			if _, ok := sub[name]; ok {
				keys = append(keys, name)
			}
		}
		return keys
	}
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *OrderFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !path.IsField() {
		f.skip(property, value, "property is not a sortable field")
		return nil
	}

	raw, ok := singleValue(value)
	if !ok {
		f.skip(property, value, "expected a single direction")
		return nil
	}
	if strings.TrimSpace(raw) == "" {
		raw = f.properties.Option(property)
	}
	direction, ok := normalizeDirection(raw)
	if !ok {
		f.skip(property, raw, "direction must be asc or desc")
		return nil
	}

	alias, err := f.alias(qb, names, path, query.LeftJoin)
	if err != nil {
		return err
	}
	qb.AddOrderBy(query.Field(alias, path.Leaf), direction, f.nulls[property].placement(direction))
	return nil
}

// Description implements Filter
func (f *OrderFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, (*schema.PropertyPath).IsField) {
		key := fmt.Sprintf("%s[%s]", f.parameter, path.Property)
		out[key] = Description{Property: path.Property, Type: "string", Strategy: f.properties.Option(path.Property)}
	}
	return out
}
