// Package filter turns query-string parameters into query builder mutations.
//
// Filters are stateless singletons shared by every request. All per-request
// state travels through the arguments of Apply: the query builder being
// filtered, the name generator handing out join aliases and parameter names,
// and the parsed query values. Filters append joins, predicates, ordering and
// parameter bindings; they never interpolate user input into query text.
//
// Invalid values for a single property are skipped and logged at debug level.
// Structurally invalid input, such as a malformed between range, fails the
// request with apierr.InvalidArgument. Invalid configuration, such as an
// unknown search strategy, fails the constructor.
package filter

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// Filter is one query filter strategy
type Filter interface {
	// Apply adds the joins, predicates and bindings requested by fctx to qb
	Apply(qb *query.QueryBuilder, names *query.NameGenerator, resourceClass string, op *metadata.Operation, fctx Context) error
	// Description lists the query parameters the filter accepts, keyed by
	// parameter name
	Description(resourceClass string) map[string]Description
}

// Context carries the parsed query values of one request. Values are a
// string, a []string for repeated keys (a[]=x) or a nested
// map[string]interface{} for sub-keys (a[b]=c).
type Context struct {
	Filters map[string]interface{}
}

// NewContext wraps parsed query values
func NewContext(filters map[string]interface{}) Context {
	if filters == nil {
		filters = map[string]interface{}{}
	}
	return Context{Filters: filters}
}

// keys returns the top-level query keys in a stable order
func (c Context) keys() []string {
	keys := make([]string, 0, len(c.Filters))
	for k := range c.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Description documents one accepted query parameter
type Description struct {
	Property string `json:"property"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	// IsCollection is set when the parameter may repeat (a[]=x&a[]=y)
	IsCollection bool   `json:"is_collection,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
}

// Properties selects the properties a filter works on. The zero value and
// All() select every mapped property; Subset restricts the filter to the
// named ones and may carry a per-property option (search strategy, null
// management or default direction).
type Properties struct {
	names   []string
	options map[string]string
}

// All selects every mapped property
func All() Properties {
	return Properties{}
}

// Subset selects the named properties without options
func Subset(names ...string) Properties {
	p := Properties{names: make([]string, 0, len(names)), options: make(map[string]string, len(names))}
	for _, name := range names {
		if _, dup := p.options[name]; dup {
			continue
		}
		p.names = append(p.names, name)
		p.options[name] = ""
	}
	return p
}

// SubsetWith selects the keys of options, each with its option value
func SubsetWith(options map[string]string) Properties {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)

	p := Subset(names...)
	for name, option := range options {
		p.options[name] = option
	}
	return p
}

// IsAll reports whether every mapped property is selected
func (p Properties) IsAll() bool {
	return p.options == nil
}

// Names returns the selected properties. It is empty for All.
func (p Properties) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Contains reports whether property is selected
func (p Properties) Contains(property string) bool {
	if p.IsAll() {
		return true
	}
	_, ok := p.options[property]
	return ok
}

// Option returns the option configured for property
func (p Properties) Option(property string) string {
	return p.options[property]
}

// Option configures a filter
type Option func(*config)

type config struct {
	logger    *zap.Logger
	parameter string
	nulls     map[string]NullsComparison
	iris      IdentifierResolver
}

// WithLogger sets the logger receiving skipped-value events
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithParameterName changes the query key of filters reading a single
// top-level key, such as order or exists
func WithParameterName(name string) Option {
	return func(c *config) {
		c.parameter = name
	}
}

// WithNullsComparison sets where NULL values sort for property
func WithNullsComparison(property string, nulls NullsComparison) Option {
	return func(c *config) {
		if c.nulls == nil {
			c.nulls = make(map[string]NullsComparison)
		}
		c.nulls[property] = nulls
	}
}

// WithIRIResolver lets the search filter accept IRIs for association values
func WithIRIResolver(r IdentifierResolver) Option {
	return func(c *config) {
		c.iris = r
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// base holds what every property filter shares
type base struct {
	kind       string
	registry   *schema.Registry
	properties Properties
	logger     *zap.Logger
}

func newBase(kind string, registry *schema.Registry, properties Properties, c config) base {
	return base{
		kind:       kind,
		registry:   registry,
		properties: properties,
		logger:     c.logger.With(zap.String("filter", kind)),
	}
}

// resolve maps property onto the queried resource. It returns nil when the
// property is not selected or not mapped.
func (b *base) resolve(qb *query.QueryBuilder, property string, value interface{}) *schema.PropertyPath {
	if !b.properties.Contains(property) {
		return nil
	}
	path, err := qb.Registry().ResolvePath(qb.Resource().Name, property)
	if err != nil {
		b.skip(property, value, "property is not mapped")
		return nil
	}
	return path
}

// alias joins the associations of a nested path and returns the alias
// owning the leaf
func (b *base) alias(qb *query.QueryBuilder, names *query.NameGenerator, path *schema.PropertyPath, joinType query.JoinType) (string, error) {
	if !path.IsNested() {
		return qb.RootAlias(), nil
	}
	alias, err := qb.JoinPath(joinType, path.AssociationNames(), names)
	if err != nil {
		return "", fmt.Errorf("%s filter cannot join %s: %w", b.kind, path.Property, err)
	}
	return alias, nil
}

// skip records a value the filter ignores
func (b *base) skip(property string, value interface{}, reason string) {
	b.logger.Debug("skipping filter value",
		zap.String("property", property),
		zap.Any("value", value),
		zap.String("reason", reason),
	)
}

// described returns the selected properties of resourceClass that accept
// keep, in a stable order
func (b *base) described(resourceClass string, keep func(*schema.PropertyPath) bool) []*schema.PropertyPath {
	var candidates []string
	if b.properties.IsAll() {
		resource, ok := b.registry.Get(resourceClass)
		if !ok {
			return nil
		}
		candidates = append(resource.FieldNames(), resource.RelationshipNames()...)
	} else {
		candidates = b.properties.Names()
	}

	out := make([]*schema.PropertyPath, 0, len(candidates))
	for _, property := range candidates {
		path, err := b.registry.ResolvePath(resourceClass, property)
		if err != nil || !keep(path) {
			continue
		}
		out = append(out, path)
	}
	return out
}

// typeName returns the description type of a resolved path
func typeName(path *schema.PropertyPath) string {
	if path.IsAssociation() {
		return "string"
	}
	spec := path.Field.Type
	switch {
	case spec.IsBool():
		return "bool"
	case spec.IsInteger():
		return "int"
	case spec.IsNumeric():
		return "float"
	case spec.IsTemporal():
		return "time"
	default:
		return "string"
	}
}

// singleValue extracts one string from a query value
func singleValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []string:
		if len(v) == 1 {
			return v[0], true
		}
	case []interface{}:
		if len(v) == 1 {
			s, ok := v[0].(string)
			return s, ok
		}
	}
	return "", false
}

// stringValues extracts every string of a query value
func stringValues(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// subValues returns the sub-keys of a nested query value
func subValues(value interface{}) (map[string]interface{}, bool) {
	m, ok := value.(map[string]interface{})
	return m, ok
}

// parseBool accepts exactly true, 1, false and 0
func parseBool(s string) (bool, bool) {
	switch s {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
