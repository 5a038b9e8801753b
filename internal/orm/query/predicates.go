package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
	OpIsEmpty
	OpIsNotEmpty
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	case OpIsEmpty:
		return "IS EMPTY"
	case OpIsNotEmpty:
		return "IS NOT EMPTY"
	default:
		return "UNKNOWN"
	}
}

// unary reports whether the operator takes no right-hand operand
func (o Operator) unary() bool {
	switch o {
	case OpIsNull, OpIsNotNull, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// arity returns the number of right-hand operands the operator expects
func (o Operator) arity() int {
	switch {
	case o.unary():
		return 0
	case o == OpBetween:
		return 2
	default:
		return 1
	}
}

// Operand is one side of a condition
type Operand interface {
	dql() string
	sql(r *renderer) (string, error)
	rename(aliases map[string]string) Operand
}

// FieldRef references a mapped property (field or association) through an alias
type FieldRef struct {
	Alias string
	Field string
}

// Field builds a FieldRef
func Field(alias, field string) FieldRef {
	return FieldRef{Alias: alias, Field: field}
}

func (f FieldRef) dql() string {
	return f.Alias + "." + f.Field
}

func (f FieldRef) sql(r *renderer) (string, error) {
	column, err := r.column(f)
	if err != nil {
		return "", err
	}
	return f.Alias + "." + column, nil
}

func (f FieldRef) rename(aliases map[string]string) Operand {
	if to, ok := aliases[f.Alias]; ok {
		return FieldRef{Alias: to, Field: f.Field}
	}
	return f
}

// ParamRef references a bound parameter by name
type ParamRef struct {
	Name string
}

// Param builds a ParamRef
func Param(name string) ParamRef {
	return ParamRef{Name: name}
}

func (p ParamRef) dql() string {
	return ":" + p.Name
}

func (p ParamRef) sql(r *renderer) (string, error) {
	return r.placeholder(p.Name)
}

func (p ParamRef) rename(map[string]string) Operand {
	return p
}

// LowerExpr wraps an operand in LOWER()
type LowerExpr struct {
	Inner Operand
}

// Lower builds a LowerExpr
func Lower(inner Operand) LowerExpr {
	return LowerExpr{Inner: inner}
}

func (l LowerExpr) dql() string {
	return "LOWER(" + l.Inner.dql() + ")"
}

func (l LowerExpr) sql(r *renderer) (string, error) {
	inner, err := l.Inner.sql(r)
	if err != nil {
		return "", err
	}
	return "LOWER(" + inner + ")", nil
}

func (l LowerExpr) rename(aliases map[string]string) Operand {
	return LowerExpr{Inner: l.Inner.rename(aliases)}
}

// Predicate is a boolean expression usable in a WHERE clause
type Predicate interface {
	dql() string
	sql(r *renderer) (string, error)
	rename(aliases map[string]string) Predicate
}

// Condition represents a WHERE condition
type Condition struct {
	Left     Operand
	Operator Operator
	Right    []Operand
}

// Cond builds a Condition
func Cond(left Operand, op Operator, right ...Operand) *Condition {
	return &Condition{Left: left, Operator: op, Right: right}
}

// Eq builds an equality condition between a property and a parameter
func Eq(left Operand, param string) *Condition {
	return Cond(left, OpEqual, Param(param))
}

// IsNull builds an IS NULL condition
func IsNull(left Operand) *Condition {
	return Cond(left, OpIsNull)
}

// IsNotNull builds an IS NOT NULL condition
func IsNotNull(left Operand) *Condition {
	return Cond(left, OpIsNotNull)
}

// Validate checks the operand count for the operator
func (c *Condition) Validate() error {
	if c.Left == nil {
		return fmt.Errorf("condition has no left operand")
	}
	if want := c.Operator.arity(); len(c.Right) != want {
		return fmt.Errorf("%s operator requires %d operand(s), got %d", c.Operator, want, len(c.Right))
	}
	return nil
}

func (c *Condition) dql() string {
	left := c.Left.dql()
	switch {
	case c.Operator.unary():
		return fmt.Sprintf("%s %s", left, c.Operator)
	case c.Operator == OpBetween && len(c.Right) == 2:
		return fmt.Sprintf("%s BETWEEN %s AND %s", left, c.Right[0].dql(), c.Right[1].dql())
	case (c.Operator == OpIn || c.Operator == OpNotIn) && len(c.Right) == 1:
		return fmt.Sprintf("%s %s (%s)", left, c.Operator, c.Right[0].dql())
	case len(c.Right) == 1:
		return fmt.Sprintf("%s %s %s", left, c.Operator, c.Right[0].dql())
	default:
		return fmt.Sprintf("%s %s ?", left, c.Operator)
	}
}

func (c *Condition) sql(r *renderer) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	switch c.Operator {
	case OpIsNull, OpIsNotNull, OpIsEmpty, OpIsNotEmpty:
		return r.nullness(c)
	}

	left, err := c.Left.sql(r)
	if err != nil {
		return "", err
	}

	switch c.Operator {
	case OpBetween:
		low, err := c.Right[0].sql(r)
		if err != nil {
			return "", err
		}
		high, err := c.Right[1].sql(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", left, low, high), nil

	case OpIn, OpNotIn:
		list, empty, err := r.list(c.Right[0])
		if err != nil {
			return "", err
		}
		if empty {
			// IN with an empty list is always false, NOT IN always true
			if c.Operator == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		return fmt.Sprintf("%s %s (%s)", left, c.Operator, list), nil

	default:
		right, err := c.Right[0].sql(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, c.Operator, right), nil
	}
}

func (c *Condition) rename(aliases map[string]string) Predicate {
	right := make([]Operand, len(c.Right))
	for i, op := range c.Right {
		right[i] = op.rename(aliases)
	}
	return &Condition{Left: c.Left.rename(aliases), Operator: c.Operator, Right: right}
}

// PredicateGroup represents a group of predicates combined with AND/OR
type PredicateGroup struct {
	Parts []Predicate
	Or    bool // true for OR, false for AND
}

// NewPredicateGroup creates a new predicate group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{
		Parts: make([]Predicate, 0),
		Or:    or,
	}
}

// And combines predicates with AND
func And(parts ...Predicate) *PredicateGroup {
	return &PredicateGroup{Parts: compact(false, parts)}
}

// Or combines predicates with OR
func Or(parts ...Predicate) *PredicateGroup {
	return &PredicateGroup{Parts: compact(true, parts), Or: true}
}

// compact drops empty groups, unwraps single-member groups and flattens
// groups sharing the connector
func compact(or bool, parts []Predicate) []Predicate {
	out := make([]Predicate, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		g, ok := p.(*PredicateGroup)
		if !ok {
			out = append(out, p)
			continue
		}
		switch {
		case g.Empty():
		case len(g.Parts) == 1:
			out = append(out, compact(or, g.Parts)...)
		case g.Or == or:
			out = append(out, g.Parts...)
		default:
			out = append(out, g)
		}
	}
	return out
}

// Add appends a predicate to the group
func (pg *PredicateGroup) Add(p Predicate) {
	pg.Parts = append(pg.Parts, compact(pg.Or, []Predicate{p})...)
}

// Empty reports whether the group holds no predicate
func (pg *PredicateGroup) Empty() bool {
	return len(pg.Parts) == 0
}

func (pg *PredicateGroup) connector() string {
	if pg.Or {
		return " OR "
	}
	return " AND "
}

func (pg *PredicateGroup) dql() string {
	parts := make([]string, 0, len(pg.Parts))
	for _, p := range pg.Parts {
		parts = append(parts, wrap(p, p.dql()))
	}
	return strings.Join(parts, pg.connector())
}

func (pg *PredicateGroup) sql(r *renderer) (string, error) {
	parts := make([]string, 0, len(pg.Parts))
	for _, p := range pg.Parts {
		s, err := p.sql(r)
		if err != nil {
			return "", err
		}
		parts = append(parts, wrap(p, s))
	}
	return strings.Join(parts, pg.connector()), nil
}

func (pg *PredicateGroup) rename(aliases map[string]string) Predicate {
	parts := make([]Predicate, len(pg.Parts))
	for i, p := range pg.Parts {
		parts[i] = p.rename(aliases)
	}
	return &PredicateGroup{Parts: parts, Or: pg.Or}
}

// wrap parenthesizes nested groups with more than one member
func wrap(p Predicate, s string) string {
	if g, ok := p.(*PredicateGroup); ok && len(g.Parts) > 1 {
		return "(" + s + ")"
	}
	return s
}

// ValidateOperator validates that an operator is compatible with a field type
func ValidateOperator(op Operator, fieldType string) error {
	switch op {
	case OpLike, OpILike:
		if fieldType != "string" && fieldType != "text" && fieldType != "enum" {
			return fmt.Errorf("operator %s only works with text fields", op.String())
		}
	case OpBetween:
		if fieldType != "int" && fieldType != "bigint" && fieldType != "float" && fieldType != "decimal" && fieldType != "timestamp" && fieldType != "date" {
			return fmt.Errorf("operator %s only works with numeric or date fields", op.String())
		}
	}
	return nil
}
