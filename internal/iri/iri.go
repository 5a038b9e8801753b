// Package iri converts between items and the IRIs naming them.
//
// The converter routes IRIs through a chi mux holding one GET route per item
// operation, so matching follows the same rules as request routing.
package iri

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// ItemLoader loads the item an item operation names
type ItemLoader interface {
	LoadItem(ctx context.Context, ref *metadata.OperationRef, uriVariables map[string]string) (interface{}, error)
}

// Match is the result of routing an IRI
type Match struct {
	Ref          *metadata.OperationRef
	UriVariables map[string]string
}

// Converter resolves IRIs to items and generates IRIs for items and classes
type Converter struct {
	index      *metadata.Index
	classes    *metadata.ClassRegistry
	properties metadata.PropertyMetadataFactory
	loader     ItemLoader
	baseURL    string
	logger     *zap.Logger

	mux      *chi.Mux
	patterns map[string]*metadata.OperationRef
}

// Option configures a Converter
type Option func(*Converter)

// WithItemLoader enables ItemFromIRI
func WithItemLoader(l ItemLoader) Option {
	return func(c *Converter) {
		c.loader = l
	}
}

// WithBaseURL makes generated IRIs absolute URLs under base
func WithBaseURL(base string) Option {
	return func(c *Converter) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithLogger sets the converter logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		c.logger = l
	}
}

// NewConverter registers the item operations of index
func NewConverter(index *metadata.Index, classes *metadata.ClassRegistry, properties metadata.PropertyMetadataFactory, opts ...Option) *Converter {
	c := &Converter{
		index:      index,
		classes:    classes,
		properties: properties,
		mux:        chi.NewRouter(),
		patterns:   make(map[string]*metadata.OperationRef),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Named("iri")

	noop := func(http.ResponseWriter, *http.Request) {}
	for _, ref := range index.OperationsByMethod(http.MethodGet) {
		if ref.Operation.Kind != metadata.KindGet {
			continue
		}
		pattern := ref.Operation.UriTemplate
		if _, dup := c.patterns[pattern]; dup {
			continue
		}
		c.patterns[pattern] = ref
		c.mux.Get(pattern, noop)
	}
	return c
}

// Match routes iri to its item operation. Absolute URLs and query strings
// are accepted; only the path is matched.
func (c *Converter) Match(iri string) (*Match, error) {
	u, err := url.Parse(iri)
	if err != nil || u.Path == "" {
		return nil, apierr.IRINotFound(iri)
	}

	// route the escaped path so encoded slashes stay inside one variable
	rctx := chi.NewRouteContext()
	if !c.mux.Match(rctx, http.MethodGet, u.EscapedPath()) {
		c.logger.Debug("no item route matches iri", zap.String("iri", iri))
		return nil, apierr.IRINotFound(iri)
	}
	ref, ok := c.patterns[rctx.RoutePattern()]
	if !ok {
		return nil, apierr.IRINotFound(iri)
	}

	vars := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		value, err := url.PathUnescape(rctx.URLParams.Values[i])
		if err != nil {
			return nil, apierr.IRINotFound(iri)
		}
		vars[key] = value
	}
	return &Match{Ref: ref, UriVariables: vars}, nil
}

// IdentifierFromIRI returns the identifier an IRI carries. Composite
// identifiers are rendered as name=value pairs joined by semicolons.
func (c *Converter) IdentifierFromIRI(iri string) (string, error) {
	m, err := c.Match(iri)
	if err != nil {
		return "", err
	}
	variables := m.Ref.Operation.Variables()
	if len(variables) == 1 {
		return m.UriVariables[variables[0]], nil
	}
	parts := make([]string, 0, len(variables))
	for _, name := range variables {
		parts = append(parts, name+"="+m.UriVariables[name])
	}
	return strings.Join(parts, ";"), nil
}

// ItemFromIRI loads the item named by iri. A missing item is reported as
// apierr.ItemNotFoundError carrying the IRI.
func (c *Converter) ItemFromIRI(ctx context.Context, iri string) (interface{}, error) {
	if c.loader == nil {
		return nil, apierr.Configuration("no item loader configured to resolve %q", iri)
	}
	m, err := c.Match(iri)
	if err != nil {
		return nil, err
	}
	item, err := c.loader.LoadItem(ctx, m.Ref, m.UriVariables)
	if err != nil {
		if errors.Is(err, apierr.ErrItemNotFound) {
			return nil, apierr.IRINotFound(iri)
		}
		return nil, fmt.Errorf("loading %s: %w", iri, err)
	}
	return item, nil
}

// IRIFromResourceClass returns the collection IRI of class
func (c *Converter) IRIFromResourceClass(class string) (string, error) {
	ref, ok := c.index.CollectionOperation(class)
	if !ok {
		return "", apierr.OperationNotFound(class, metadata.KindGetCollection.String())
	}
	return c.expand(ref.Operation.UriTemplate, nil)
}

// IRIFromItem returns the IRI of a registered item
func (c *Converter) IRIFromItem(ctx context.Context, item interface{}) (string, error) {
	class, ok := c.classes.ClassOf(item)
	if !ok {
		return "", apierr.InvalidArgument("cannot generate an IRI for an item of type %T", item)
	}
	ref, ok := c.index.ItemOperation(class)
	if !ok {
		return "", apierr.OperationNotFound(class, metadata.KindGet.String())
	}
	vars, err := c.UriVariables(ctx, class, ref.Operation, item)
	if err != nil {
		return "", err
	}
	return c.expand(ref.Operation.UriTemplate, vars)
}

// UriVariables reads the identifier values op needs from item
func (c *Converter) UriVariables(ctx context.Context, class string, op *metadata.Operation, item interface{}) (map[string]string, error) {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, apierr.InvalidArgument("cannot generate an IRI for a nil %s", class)
		}
		v = v.Elem()
	}

	vars := make(map[string]string, len(op.UriVariables))
	for _, link := range op.UriVariables {
		identifiers := link.Identifiers
		if len(identifiers) == 0 {
			identifiers = []string{link.Parameter}
		}
		parts := make([]string, 0, len(identifiers))
		for _, name := range identifiers {
			value, err := c.identifierValue(ctx, class, name, v)
			if err != nil {
				return nil, err
			}
			if len(identifiers) == 1 {
				parts = append(parts, value)
			} else {
				parts = append(parts, name+"="+value)
			}
		}
		vars[link.Parameter] = strings.Join(parts, ";")
	}
	return vars, nil
}

func (c *Converter) identifierValue(ctx context.Context, class, property string, v reflect.Value) (string, error) {
	p, err := c.properties.Create(ctx, class, property, metadata.PropertyOptions{})
	if err != nil {
		return "", err
	}
	field, err := v.FieldByIndexErr(p.FieldIndex)
	if err != nil {
		return "", apierr.InvalidArgument("cannot read identifier %s of %s: %v", property, class, err)
	}
	for field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return "", apierr.InvalidArgument("identifier %s of %s is not set", property, class)
		}
		field = field.Elem()
	}
	if field.IsZero() {
		return "", apierr.InvalidArgument("identifier %s of %s is not set", property, class)
	}
	return fmt.Sprint(field.Interface()), nil
}

// expand substitutes vars into a uri template and prepends the base URL
func (c *Converter) expand(template string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.WriteString(c.baseURL)
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", apierr.Configuration("unterminated variable in uri template %q", template)
		}
		b.WriteString(rest[:start])
		name := rest[start+1 : start+end]
		if colon := strings.IndexByte(name, ':'); colon >= 0 {
			name = name[:colon]
		}
		value, ok := vars[name]
		if !ok {
			return "", apierr.InvalidArgument("missing value for uri variable %q of %q", name, template)
		}
		b.WriteString(url.PathEscape(value))
		rest = rest[start+end+1:]
	}
	return b.String(), nil
}
