package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// IdentifierResolver turns an IRI such as /books/42 into the identifier of
// the item it names
type IdentifierResolver interface {
	IdentifierFromIRI(iri string) (string, error)
}

// MatchMode is the string matching mode of a search strategy
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchPartial
	MatchStart
	MatchEnd
	MatchWordStart
)

// Strategy is a parsed search strategy: a match mode, optionally case
// insensitive
type Strategy struct {
	Mode            MatchMode
	CaseInsensitive bool
}

// ParseStrategy parses exact, partial, start, end or word_start, each with
// an optional i prefix for case-insensitive matching. The empty string is
// exact.
func ParseStrategy(s string) (Strategy, error) {
	var st Strategy
	name := s
	if strings.HasPrefix(name, "i") && name != "i" {
		st.CaseInsensitive = true
		name = name[1:]
	}
	switch name {
	case "", "exact":
		st.Mode = MatchExact
	case "partial":
		st.Mode = MatchPartial
	case "start":
		st.Mode = MatchStart
	case "end":
		st.Mode = MatchEnd
	case "word_start":
		st.Mode = MatchWordStart
	default:
		return Strategy{}, apierr.InvalidArgument("strategy %q does not exist", s)
	}
	return st, nil
}

// String returns the configuration name
func (s Strategy) String() string {
	var name string
	switch s.Mode {
	case MatchPartial:
		name = "partial"
	case MatchStart:
		name = "start"
	case MatchEnd:
		name = "end"
	case MatchWordStart:
		name = "word_start"
	default:
		name = "exact"
	}
	if s.CaseInsensitive {
		return "i" + name
	}
	return name
}

// SearchFilter matches text, identifier and association properties:
// ?title=go, ?author=/authors/1, ?isbn[]=1&isbn[]=2. The property option of
// a Subset is the strategy.
type SearchFilter struct {
	base
	iris IdentifierResolver
}

// NewSearchFilter creates a search filter over properties. Every configured
// strategy must parse.
func NewSearchFilter(registry *schema.Registry, properties Properties, opts ...Option) (*SearchFilter, error) {
	for _, name := range properties.Names() {
		if _, err := ParseStrategy(properties.Option(name)); err != nil {
			return nil, fmt.Errorf("search filter property %s: %w", name, err)
		}
	}

	c := newConfig(opts)
	return &SearchFilter{
		base: newBase("search", registry, properties, c),
		iris: c.iris,
	}, nil
}

// Apply implements Filter. An unknown strategy fails with
// apierr.InvalidArgument.
func (f *SearchFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	for _, property := range fctx.keys() {
		if err := f.filterProperty(qb, names, property, fctx.Filters[property], query.InnerJoin); err != nil {
			return err
		}
	}
	return nil
}

// filterProperty searches one property. joinType is used for the joins of
// nested paths and to-many associations.
func (f *SearchFilter) filterProperty(qb *query.QueryBuilder, names *query.NameGenerator, property string, value interface{}, joinType query.JoinType) error {
	path := f.resolve(qb, property, value)
	if path == nil {
		return nil
	}
	strategy, err := ParseStrategy(f.properties.Option(property))
	if err != nil {
		return err
	}

	raw, ok := stringValues(value)
	if !ok {
		f.skip(property, value, "expected a value or a list of values")
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			f.skip(property, s, "empty value")
			continue
		}
		values = append(values, s)
	}
	if len(values) == 0 {
		return nil
	}

	if path.IsAssociation() {
		return f.filterAssociation(qb, names, path, values, joinType)
	}
	if !path.Field.Type.IsText() || path.Field.IsPrimary() {
		return f.filterTyped(qb, names, path, strategy, values, joinType)
	}
	return f.filterText(qb, names, path, strategy, values, joinType)
}

// filterText applies a strategy to a text column
func (f *SearchFilter) filterText(qb *query.QueryBuilder, names *query.NameGenerator, path *schema.PropertyPath, strategy Strategy, values []string, joinType query.JoinType) error {
	if len(values) > 1 && strategy.Mode != MatchExact {
		f.skip(path.Property, values, fmt.Sprintf("strategy %s accepts a single value", strategy))
		return nil
	}

	alias, err := f.alias(qb, names, path, joinType)
	if err != nil {
		return err
	}
	var field query.Operand = query.Field(alias, path.Leaf)
	if strategy.CaseInsensitive {
		field = query.Lower(field)
	}
	param := func() query.Operand {
		return query.Param(names.Parameter(path.Leaf))
	}
	bind := func(p query.Operand, v string) query.Operand {
		qb.SetParameter(p.(query.ParamRef).Name, v)
		if strategy.CaseInsensitive {
			return query.Lower(p)
		}
		return p
	}

	if len(values) > 1 {
		list := make([]interface{}, len(values))
		for i, v := range values {
			if strategy.CaseInsensitive {
				v = strings.ToLower(v)
			}
			list[i] = v
		}
		p := param()
		qb.SetParameter(p.(query.ParamRef).Name, list)
		qb.AndWhere(query.Cond(field, query.OpIn, p))
		return nil
	}

	v := values[0]
	switch strategy.Mode {
	case MatchExact:
		qb.AndWhere(query.Cond(field, query.OpEqual, bind(param(), v)))
	case MatchPartial:
		qb.AndWhere(query.Cond(field, query.OpLike, bind(param(), "%"+escapeLike(v)+"%")))
	case MatchStart:
		qb.AndWhere(query.Cond(field, query.OpLike, bind(param(), escapeLike(v)+"%")))
	case MatchEnd:
		qb.AndWhere(query.Cond(field, query.OpLike, bind(param(), "%"+escapeLike(v))))
	case MatchWordStart:
		qb.AndWhere(query.Or(
			query.Cond(field, query.OpLike, bind(param(), escapeLike(v)+"%")),
			query.Cond(field, query.OpLike, bind(param(), "% "+escapeLike(v)+"%")),
		))
	}
	return nil
}

// filterTyped matches identifiers and non-text columns by equality
func (f *SearchFilter) filterTyped(qb *query.QueryBuilder, names *query.NameGenerator, path *schema.PropertyPath, strategy Strategy, values []string, joinType query.JoinType) error {
	if strategy.Mode != MatchExact {
		f.skip(path.Property, values, fmt.Sprintf("strategy %s needs a text field", strategy))
		return nil
	}

	typed := make([]interface{}, 0, len(values))
	for _, v := range values {
		if path.Field.IsPrimary() {
			v = f.identifier(path.Property, v)
		}
		t, err := typedValue(path.Field.Type, v)
		if err != nil {
			f.skip(path.Property, v, err.Error())
			continue
		}
		typed = append(typed, t)
	}
	if len(typed) == 0 {
		return nil
	}

	alias, err := f.alias(qb, names, path, joinType)
	if err != nil {
		return err
	}
	f.equals(qb, names, query.Field(alias, path.Leaf), path.Leaf, typed)
	return nil
}

// filterAssociation matches an association by the identifiers of its
// targets. Values may be IRIs or raw identifiers.
func (f *SearchFilter) filterAssociation(qb *query.QueryBuilder, names *query.NameGenerator, path *schema.PropertyPath, values []string, joinType query.JoinType) error {
	rel := path.Association
	target, ok := qb.Registry().Get(rel.TargetResource)
	if !ok {
		return fmt.Errorf("association %s targets unknown resource %s", path.Property, rel.TargetResource)
	}
	pk, err := target.GetPrimaryKey()
	if err != nil {
		return err
	}

	typed := make([]interface{}, 0, len(values))
	for _, v := range values {
		id := f.identifier(path.Property, v)
		t, err := typedValue(pk.Type, id)
		if err != nil {
			f.skip(path.Property, v, err.Error())
			continue
		}
		typed = append(typed, t)
	}
	if len(typed) == 0 {
		return nil
	}

	alias, err := f.alias(qb, names, path, joinType)
	if err != nil {
		return err
	}
	ref := query.Field(alias, path.Leaf)
	if rel.Type != schema.RelationshipBelongsTo {
		joined, err := qb.JoinOnce(joinType, alias, path.Leaf, names)
		if err != nil {
			return fmt.Errorf("search filter cannot join %s: %w", path.Property, err)
		}
		ref = query.Field(joined, pk.Name)
	}
	f.equals(qb, names, ref, path.Leaf, typed)
	return nil
}

func (f *SearchFilter) equals(qb *query.QueryBuilder, names *query.NameGenerator, ref query.FieldRef, base string, values []interface{}) {
	param := names.Parameter(base)
	if len(values) == 1 {
		qb.AndWhere(query.Eq(ref, param))
		qb.SetParameter(param, values[0])
		return
	}
	qb.AndWhere(query.Cond(ref, query.OpIn, query.Param(param)))
	qb.SetParameter(param, values)
}

// identifier resolves an IRI, falling back to the raw value
func (f *SearchFilter) identifier(property, value string) string {
	if f.iris == nil || !strings.HasPrefix(value, "/") {
		return value
	}
	id, err := f.iris.IdentifierFromIRI(value)
	if err != nil {
		f.skip(property, value, "unresolvable IRI, using the raw value")
		return value
	}
	return id
}

// Description implements Filter
func (f *SearchFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for _, path := range f.described(resourceClass, func(*schema.PropertyPath) bool { return true }) {
		strategy := f.properties.Option(path.Property)
		if strategy == "" {
			strategy = "exact"
		}
		typ := typeName(path)
		out[path.Property] = Description{Property: path.Property, Type: typ, Strategy: strategy}
		out[path.Property+"[]"] = Description{Property: path.Property, Type: typ, Strategy: strategy, IsCollection: true}
	}
	return out
}

// typedValue converts a query value to the Go type of a column
func typedValue(spec *schema.TypeSpec, s string) (interface{}, error) {
	switch {
	case spec.BaseType == schema.TypeUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q", s)
		}
		return id.String(), nil
	case spec.IsInteger():
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", s)
		}
		return n, nil
	case spec.IsNumeric():
		n, ok := parseFloat(s)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return n, nil
	case spec.IsBool():
		b, ok := parseBool(s)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %q", s)
		}
		return b, nil
	case spec.IsTemporal():
		return parseDate(s)
	}
	return s, nil
}

// escapeLike escapes LIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
