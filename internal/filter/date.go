package filter

import (
	"fmt"
	"time"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// NullManagement decides how NULL dates take part in a comparison
type NullManagement int

const (
	// NullsIgnored compares the date and lets NULL rows drop out
	NullsIgnored NullManagement = iota
	// ExcludeNull filters out NULL rows before any comparison
	ExcludeNull
	// IncludeNullBefore treats NULL as earlier than any date
	IncludeNullBefore
	// IncludeNullAfter treats NULL as later than any date
	IncludeNullAfter
	// IncludeNullBeforeAndAfter keeps NULL rows for every comparison
	IncludeNullBeforeAndAfter
)

// String returns the configuration name of the mode
func (n NullManagement) String() string {
	switch n {
	case ExcludeNull:
		return "exclude_null"
	case IncludeNullBefore:
		return "include_null_before"
	case IncludeNullAfter:
		return "include_null_after"
	case IncludeNullBeforeAndAfter:
		return "include_null_before_and_after"
	default:
		return ""
	}
}

// includesNull reports whether NULL dates can match, in which case nested
// paths are left joined
func (n NullManagement) includesNull() bool {
	return n == IncludeNullBefore || n == IncludeNullAfter || n == IncludeNullBeforeAndAfter
}

// ParseNullManagement parses a configuration name. The empty string is
// NullsIgnored.
func ParseNullManagement(s string) (NullManagement, error) {
	switch s {
	case "":
		return NullsIgnored, nil
	case "exclude_null":
		return ExcludeNull, nil
	case "include_null_before":
		return IncludeNullBefore, nil
	case "include_null_after":
		return IncludeNullAfter, nil
	case "include_null_before_and_after":
		return IncludeNullBeforeAndAfter, nil
	}
	return NullsIgnored, fmt.Errorf("unknown null management %q", s)
}

// dateComparison is one accepted sub-key of a date filter
type dateComparison struct {
	key      string
	operator query.Operator
	before   bool
}

var dateComparisons = []dateComparison{
	{key: "before", operator: query.OpLessThanOrEqual, before: true},
	{key: "strictly_before", operator: query.OpLessThan, before: true},
	{key: "after", operator: query.OpGreaterThanOrEqual},
	{key: "strictly_after", operator: query.OpGreaterThan},
}

// dateLayouts are tried in order; values without a zone are read as UTC
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DateFilter filters temporal fields: ?publishedAt[after]=2015-04-05.
// The property option of a Subset is the null management mode.
type DateFilter struct {
	base
}

// NewDateFilter creates a date filter. Every property option must be a
// known null management mode.
func NewDateFilter(registry *schema.Registry, properties Properties, opts ...Option) (*DateFilter, error) {
	for _, name := range properties.Names() {
		if _, err := ParseNullManagement(properties.Option(name)); err != nil {
			return nil, fmt.Errorf("date filter property %s: %w", name, err)
		}
	}
	return &DateFilter{base: newBase("date", registry, properties, newConfig(opts))}, nil
}

// Apply implements Filter
func (f *DateFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	for _, property := range fctx.keys() {
		if err := f.filterProperty(qb, names, property, fctx.Filters[property]); err != nil {
			return err
		}
	}
	return nil
}

func (f *DateFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	if !path.IsField() || !path.Field.Type.IsTemporal() {
		f.skip(property, value, "property is not a date field")
		return nil
	}
	sub, ok := subValues(value)
	if !ok {
		f.skip(property, value, "expected before or after sub-keys")
		return nil
	}

	// parse first so an unusable request adds no join
	type bound struct {
		comparison dateComparison
		at         time.Time
	}
	var bounds []bound
	for _, c := range dateComparisons {
		v, present := sub[c.key]
		if !present {
			continue
		}
		raw, ok := singleValue(v)
		if !ok {
			f.skip(property, v, "expected a single date")
			continue
		}
		at, err := parseDate(raw)
		if err != nil {
			f.skip(property, raw, err.Error())
			continue
		}
		bounds = append(bounds, bound{comparison: c, at: at})
	}
	if len(bounds) == 0 {
		return nil
	}

	nulls, _ := ParseNullManagement(f.properties.Option(property))
	joinType := query.InnerJoin
	if nulls.includesNull() {
		joinType = query.LeftJoin
	}
	alias, err := f.alias(qb, names, path, joinType)
	if err != nil {
		return err
	}
	field := query.Field(alias, path.Leaf)

	if nulls == ExcludeNull {
		qb.AndWhere(query.IsNotNull(field))
	}
	for _, b := range bounds {
		param := names.Parameter(path.Leaf + "_" + b.comparison.key)
		qb.SetParameter(param, b.at)
		compare := query.Cond(field, b.comparison.operator, query.Param(param))

		switch {
		case nulls == NullsIgnored || nulls == ExcludeNull:
			qb.AndWhere(compare)
		case nulls == IncludeNullBeforeAndAfter,
			nulls == IncludeNullBefore && b.comparison.before,
			nulls == IncludeNullAfter && !b.comparison.before:
			qb.AndWhere(query.Or(compare, query.IsNull(field)))
		default:
			qb.AndWhere(query.And(compare, query.IsNotNull(field)))
		}
	}
	return nil
}

// Description implements Filter
func (f *DateFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, func(p *schema.PropertyPath) bool {
		return p.IsField() && p.Field.Type.IsTemporal()
	}) {
		for _, c := range dateComparisons {
			key := fmt.Sprintf("%s[%s]", path.Property, c.key)
			out[key] = Description{Property: path.Property, Type: "time"}
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}
