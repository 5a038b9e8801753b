// Package query provides the request-scoped query builder the filter engine
// mutates. Predicates are kept as expression values so the builder can render
// them both in a DQL-like form (o.dummyDate >= :dummyDate_after) and as
// parameterized SQL for database/sql.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// DefaultRootAlias is the alias of the queried resource
const DefaultRootAlias = "o"

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NullsOrder controls where NULL values sort
type NullsOrder int

const (
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// OrderBy is one ORDER BY term
type OrderBy struct {
	Expr      FieldRef
	Direction string
	Nulls     NullsOrder
}

// QueryBuilder accumulates joins, predicates, ordering and parameters for
// one resource query
type QueryBuilder struct {
	registry  *schema.Registry
	resource  *schema.ResourceSchema
	db        Queryer
	rootAlias string

	aliases    map[string]string // alias -> resource name
	joins      []*Join
	where      *PredicateGroup
	orderBy    []OrderBy
	params     map[string]interface{}
	paramOrder []string
	limit      *int
	offset     *int
}

// NewQueryBuilder creates a new query builder for the given resource
func NewQueryBuilder(registry *schema.Registry, resourceName string, db Queryer) (*QueryBuilder, error) {
	resource, ok := registry.Get(resourceName)
	if !ok {
		return nil, fmt.Errorf("resource %s is not mapped", resourceName)
	}
	return &QueryBuilder{
		registry:  registry,
		resource:  resource,
		db:        db,
		rootAlias: DefaultRootAlias,
		aliases:   map[string]string{DefaultRootAlias: resource.Name},
		joins:     make([]*Join, 0),
		where:     NewPredicateGroup(false),
		orderBy:   make([]OrderBy, 0),
		params:    make(map[string]interface{}),
	}, nil
}

// RootAlias returns the alias of the queried resource
func (qb *QueryBuilder) RootAlias() string {
	return qb.rootAlias
}

// Resource returns the schema of the queried resource
func (qb *QueryBuilder) Resource() *schema.ResourceSchema {
	return qb.resource
}

// Registry returns the class metadata registry the builder resolves against
func (qb *QueryBuilder) Registry() *schema.Registry {
	return qb.registry
}

// ResourceForAlias returns the resource bound to an alias
func (qb *QueryBuilder) ResourceForAlias(alias string) (*schema.ResourceSchema, bool) {
	name, ok := qb.aliases[alias]
	if !ok {
		return nil, false
	}
	return qb.registry.Get(name)
}

// AndWhere adds predicates combined with AND to the WHERE clause
func (qb *QueryBuilder) AndWhere(predicates ...Predicate) *QueryBuilder {
	for _, p := range predicates {
		qb.where.Add(p)
	}
	return qb
}

// OrWhere combines the current WHERE clause with the given predicates using OR
func (qb *QueryBuilder) OrWhere(predicates ...Predicate) *QueryBuilder {
	added := And(predicates...)
	if added.Empty() {
		return qb
	}
	if qb.where.Empty() {
		qb.where = added
		return qb
	}
	qb.where = And(Or(qb.where, added))
	return qb
}

// WherePredicate returns the current WHERE clause
func (qb *QueryBuilder) WherePredicate() *PredicateGroup {
	return qb.where
}

// SetParameter binds a value to a named parameter
func (qb *QueryBuilder) SetParameter(name string, value interface{}) *QueryBuilder {
	if _, exists := qb.params[name]; !exists {
		qb.paramOrder = append(qb.paramOrder, name)
	}
	qb.params[name] = value
	return qb
}

// Parameter returns the value bound to name
func (qb *QueryBuilder) Parameter(name string) (interface{}, bool) {
	v, ok := qb.params[name]
	return v, ok
}

// Parameters returns a copy of the bound parameters
func (qb *QueryBuilder) Parameters() map[string]interface{} {
	out := make(map[string]interface{}, len(qb.params))
	for k, v := range qb.params {
		out[k] = v
	}
	return out
}

// ParameterNames returns bound parameter names in binding order
func (qb *QueryBuilder) ParameterNames() []string {
	names := make([]string, len(qb.paramOrder))
	copy(names, qb.paramOrder)
	return names
}

// AddOrderBy adds an ORDER BY term. Unknown directions fall back to ASC.
func (qb *QueryBuilder) AddOrderBy(expr FieldRef, direction string, nulls ...NullsOrder) *QueryBuilder {
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	order := OrderBy{Expr: expr, Direction: dir}
	if len(nulls) > 0 {
		order.Nulls = nulls[0]
	}
	qb.orderBy = append(qb.orderBy, order)
	return qb
}

// OrderBys returns the ORDER BY terms
func (qb *QueryBuilder) OrderBys() []OrderBy {
	out := make([]OrderBy, len(qb.orderBy))
	copy(out, qb.orderBy)
	return out
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = &n
	return qb
}

// DQL renders the query in its object form, e.g.
// "SELECT o FROM Dummy o WHERE o.dummyDate >= :dummyDate_after"
func (qb *QueryBuilder) DQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", qb.rootAlias, qb.resource.Name, qb.rootAlias)

	for _, join := range qb.joins {
		fmt.Fprintf(&b, " %s JOIN %s.%s %s", join.Type, join.Parent, join.Association, join.Alias)
	}

	if !qb.where.Empty() {
		b.WriteString(" WHERE ")
		b.WriteString(qb.where.dql())
	}

	if len(qb.orderBy) > 0 {
		terms := make([]string, len(qb.orderBy))
		for i, o := range qb.orderBy {
			terms[i] = o.Expr.dql() + " " + o.Direction + nullsSuffix(o.Nulls)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	return b.String()
}

// ToSQL generates the SQL query and parameter bindings
func (qb *QueryBuilder) ToSQL() (string, []interface{}, error) {
	r := newRenderer(qb)

	selectClause := "SELECT "
	if qb.HasToManyJoin() {
		selectClause += "DISTINCT "
	}
	selectClause += qb.rootAlias + ".*"

	body, err := qb.fromWhere(r)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString(selectClause)
	b.WriteString(body)

	if len(qb.orderBy) > 0 {
		terms := make([]string, len(qb.orderBy))
		for i, o := range qb.orderBy {
			col, err := o.Expr.sql(r)
			if err != nil {
				return "", nil, fmt.Errorf("failed to build order by: %w", err)
			}
			terms[i] = col + " " + o.Direction + nullsSuffix(o.Nulls)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if qb.limit != nil {
		fmt.Fprintf(&b, " LIMIT %s", r.bind(*qb.limit))
	}
	if qb.offset != nil {
		fmt.Fprintf(&b, " OFFSET %s", r.bind(*qb.offset))
	}

	return b.String(), r.args, nil
}

// CountSQL generates the counting query, ignoring ordering and pagination
func (qb *QueryBuilder) CountSQL() (string, []interface{}, error) {
	r := newRenderer(qb)
	body, err := qb.fromWhere(r)
	if err != nil {
		return "", nil, err
	}

	selectClause := "SELECT COUNT(*)"
	if qb.HasToManyJoin() {
		pk, err := qb.resource.GetPrimaryKey()
		if err != nil {
			return "", nil, err
		}
		selectClause = fmt.Sprintf("SELECT COUNT(DISTINCT %s.%s)", qb.rootAlias, pk.ColumnName())
	}
	return selectClause + body, r.args, nil
}

// fromWhere renders FROM, JOIN and WHERE
func (qb *QueryBuilder) fromWhere(r *renderer) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, " FROM %s %s", qb.resource.TableName, qb.rootAlias)

	for _, join := range qb.joins {
		s, err := r.join(join)
		if err != nil {
			return "", fmt.Errorf("failed to build join %s: %w", join.Alias, err)
		}
		b.WriteString(s)
	}

	if !qb.where.Empty() {
		s, err := qb.where.sql(r)
		if err != nil {
			return "", fmt.Errorf("failed to build condition: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(s)
	}
	return b.String(), nil
}

// All executes the query and returns all matching rows
func (qb *QueryBuilder) All(ctx context.Context) ([]map[string]interface{}, error) {
	if qb.db == nil {
		return nil, fmt.Errorf("query builder for %s has no database", qb.resource.Name)
	}

	sqlStr, args, err := qb.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	rows, err := qb.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return results, nil
}

// First executes the query and returns the first matching row
func (qb *QueryBuilder) First(ctx context.Context) (map[string]interface{}, error) {
	qb.Limit(1)
	results, err := qb.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// Count executes the counting query
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	if qb.db == nil {
		return 0, fmt.Errorf("query builder for %s has no database", qb.resource.Name)
	}

	sqlStr, args, err := qb.CountSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL: %w", err)
	}

	var count int
	if err := qb.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	return count, nil
}

// Clone creates an independent copy of the query builder
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := &QueryBuilder{
		registry:   qb.registry,
		resource:   qb.resource,
		db:         qb.db,
		rootAlias:  qb.rootAlias,
		aliases:    make(map[string]string, len(qb.aliases)),
		joins:      make([]*Join, len(qb.joins)),
		where:      &PredicateGroup{Parts: append([]Predicate(nil), qb.where.Parts...), Or: qb.where.Or},
		orderBy:    make([]OrderBy, len(qb.orderBy)),
		params:     make(map[string]interface{}, len(qb.params)),
		paramOrder: make([]string, len(qb.paramOrder)),
	}

	for k, v := range qb.aliases {
		clone.aliases[k] = v
	}
	for i, j := range qb.joins {
		cp := *j
		clone.joins[i] = &cp
	}
	copy(clone.orderBy, qb.orderBy)
	for k, v := range qb.params {
		clone.params[k] = v
	}
	copy(clone.paramOrder, qb.paramOrder)

	if qb.limit != nil {
		limit := *qb.limit
		clone.limit = &limit
	}
	if qb.offset != nil {
		offset := *qb.offset
		clone.offset = &offset
	}
	return clone
}

func nullsSuffix(n NullsOrder) string {
	switch n {
	case NullsFirst:
		return " NULLS FIRST"
	case NullsLast:
		return " NULLS LAST"
	default:
		return ""
	}
}

// scanRows scans SQL rows into a slice of maps
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// isValidIdentifier checks if a string is a valid SQL identifier
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
