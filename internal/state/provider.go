package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// Option configures a provider
type Option func(*options)

type options struct {
	logger     *zap.Logger
	pagination PaginationOptions
}

// WithLogger sets the provider logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPaginationOptions changes the pagination query parameters
func WithPaginationOptions(p PaginationOptions) Option {
	return func(o *options) {
		o.pagination = p
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

// CollectionProvider loads the items of collection operations
type CollectionProvider struct {
	registry   *schema.Registry
	db         query.Queryer
	filters    *filter.Locator
	hydrator   *Hydrator
	pagination Pagination
	logger     *zap.Logger
}

// NewCollectionProvider creates a collection provider. filters may be nil
// when no operation declares filters.
func NewCollectionProvider(registry *schema.Registry, db query.Queryer, filters *filter.Locator, hydrator *Hydrator, opts ...Option) *CollectionProvider {
	o := newOptions(opts)
	return &CollectionProvider{
		registry:   registry,
		db:         db,
		filters:    filters,
		hydrator:   hydrator,
		pagination: NewPagination(o.pagination),
		logger:     o.logger.Named("collection_provider"),
	}
}

// Pagination returns the pagination resolver
func (p *CollectionProvider) Pagination() Pagination {
	return p.pagination
}

// Provide implements Provider and returns a *Paginator
func (p *CollectionProvider) Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error) {
	op := ref.Operation
	page, err := p.pagination.Resolve(op, req.Filters)
	if err != nil {
		return nil, err
	}

	qb, err := query.NewQueryBuilder(p.registry, ref.Class, p.db)
	if err != nil {
		return nil, apierr.Configuration("cannot query %s: %v", ref.Class, err)
	}
	names := query.NewNameGenerator()

	if err := applyLinks(qb, names, ref.Class, op, req.UriVariables); err != nil {
		return nil, err
	}
	if p.filters != nil && len(op.Filters) > 0 {
		if err := p.filters.Apply(qb, names, ref.Class, op, req.Filters); err != nil {
			return nil, err
		}
	}
	if len(qb.OrderBys()) == 0 {
		if err := applyDefaultOrder(qb, names, op.Order); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("collection query",
		zap.String("class", ref.Class),
		zap.String("operation", op.Name),
		zap.String("dql", qb.DQL()),
	)

	result := &Paginator{CurrentPage: page.Page, ItemsPerPage: page.Limit, Paginated: page.Enabled}
	if page.Enabled {
		total, err := qb.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", ref.Class, err)
		}
		result.TotalItems = total
		if page.Limit == 0 {
			result.Items = []interface{}{}
			return result, nil
		}
		qb.Limit(page.Limit).Offset(page.Offset)
	}

	rows, err := qb.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ref.Class, err)
	}
	items, err := p.hydrator.HydrateAll(ctx, ref.Class, rows)
	if err != nil {
		return nil, err
	}
	result.Items = items
	if !page.Enabled {
		result.TotalItems = len(items)
		result.ItemsPerPage = len(items)
	}
	return result, nil
}

// ItemProvider loads the item named by the uri variables of a request
type ItemProvider struct {
	registry *schema.Registry
	db       query.Queryer
	hydrator *Hydrator
	logger   *zap.Logger
}

// NewItemProvider creates an item provider
func NewItemProvider(registry *schema.Registry, db query.Queryer, hydrator *Hydrator, opts ...Option) *ItemProvider {
	o := newOptions(opts)
	return &ItemProvider{
		registry: registry,
		db:       db,
		hydrator: hydrator,
		logger:   o.logger.Named("item_provider"),
	}
}

// Provide implements Provider. A missing item or an identifier that
// cannot match any item is apierr.ItemNotFound.
func (p *ItemProvider) Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error) {
	qb, err := query.NewQueryBuilder(p.registry, ref.Class, p.db)
	if err != nil {
		return nil, apierr.Configuration("cannot query %s: %v", ref.Class, err)
	}
	if err := applyLinks(qb, query.NewNameGenerator(), ref.Class, ref.Operation, req.UriVariables); err != nil {
		return nil, err
	}

	row, err := qb.First(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.ItemNotFound(ref.Class)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ref.Class, err)
	}
	return p.hydrator.Hydrate(ctx, ref.Class, row)
}

// LoadItem resolves IRIs to items
func (p *ItemProvider) LoadItem(ctx context.Context, ref *metadata.OperationRef, uriVariables map[string]string) (interface{}, error) {
	return p.Provide(ctx, ref, Request{UriVariables: uriVariables})
}

// applyLinks restricts qb to the uri variables of op. A variable of the
// queried class matches its identifiers; a variable of another class
// matches the association named by ToProperty.
func applyLinks(qb *query.QueryBuilder, names *query.NameGenerator, class string, op *metadata.Operation, vars map[string]string) error {
	for _, link := range op.UriVariables {
		value, ok := vars[link.Parameter]
		if !ok {
			return apierr.Configuration("operation %s has no value for uri variable %s", op.Name, link.Parameter)
		}

		if link.FromClass != "" && link.FromClass != class {
			if link.ToProperty == "" {
				return apierr.Configuration("link %s of %s needs a to_property", link.Parameter, op.Name)
			}
			if err := linkAssociation(qb, names, class, link, value); err != nil {
				return err
			}
			continue
		}

		identifiers := link.Identifiers
		if len(identifiers) == 0 {
			identifiers = []string{link.Parameter}
		}
		values, err := splitIdentifiers(identifiers, value)
		if err != nil {
			return apierr.ItemNotFound(class)
		}
		for _, id := range identifiers {
			path, err := qb.Registry().ResolvePath(class, id)
			if err != nil || !path.IsField() {
				return apierr.Configuration("identifier %s of %s is not a mapped field", id, class)
			}
			typed, err := identifierValue(path.Field.Type, values[id])
			if err != nil {
				return apierr.ItemNotFound(class)
			}
			param := names.Parameter(id)
			qb.AndWhere(query.Eq(query.Field(qb.RootAlias(), id), param))
			qb.SetParameter(param, typed)
		}
	}
	return nil
}

func linkAssociation(qb *query.QueryBuilder, names *query.NameGenerator, class string, link metadata.Link, value string) error {
	path, err := qb.Registry().ResolvePath(class, link.ToProperty)
	if err != nil || !path.IsAssociation() || path.Association.Type != schema.RelationshipBelongsTo || path.IsNested() {
		return apierr.Configuration("%s.%s is not a belongs_to association", class, link.ToProperty)
	}
	pk, err := qb.Registry().Identifier(path.Association.TargetResource)
	if err != nil {
		return apierr.Configuration("association %s.%s: %v", class, link.ToProperty, err)
	}
	typed, err := identifierValue(pk.Type, value)
	if err != nil {
		return apierr.ItemNotFound(link.FromClass)
	}
	param := names.Parameter(link.ToProperty)
	qb.AndWhere(query.Eq(query.Field(qb.RootAlias(), link.ToProperty), param))
	qb.SetParameter(param, typed)
	return nil
}

// splitIdentifiers maps identifier names to values. A composite value is
// written a=1;b=2.
func splitIdentifiers(identifiers []string, value string) (map[string]string, error) {
	if len(identifiers) == 1 {
		return map[string]string{identifiers[0]: value}, nil
	}
	out := make(map[string]string, len(identifiers))
	for _, part := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed composite identifier %q", value)
		}
		out[k] = v
	}
	for _, id := range identifiers {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("composite identifier %q misses %s", value, id)
		}
	}
	return out, nil
}

// identifierValue types an identifier read from a path
func identifierValue(spec *schema.TypeSpec, s string) (interface{}, error) {
	switch {
	case spec.BaseType == schema.TypeUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case spec.IsInteger():
		return strconv.ParseInt(s, 10, 64)
	case spec.IsNumeric():
		return strconv.ParseFloat(s, 64)
	}
	return s, nil
}

// applyDefaultOrder adds the order clauses an operation declares
func applyDefaultOrder(qb *query.QueryBuilder, names *query.NameGenerator, order []metadata.OrderClause) error {
	for _, clause := range order {
		path, err := qb.Registry().ResolvePath(qb.Resource().Name, clause.Property)
		if err != nil {
			return apierr.Configuration("default order on unmapped property %s: %v", clause.Property, err)
		}
		alias := qb.RootAlias()
		if path.IsNested() {
			alias, err = qb.JoinPath(query.LeftJoin, path.AssociationNames(), names)
			if err != nil {
				return err
			}
		}
		direction := strings.ToUpper(clause.Direction)
		if direction != "DESC" {
			direction = "ASC"
		}
		qb.AddOrderBy(query.Field(alias, path.Leaf), direction)
	}
	return nil
}
