package query

import "fmt"

// Scope is an isolated predicate scope forked from a builder. Filters apply
// into Scope.Builder() as they would into the real builder; Result returns
// what they produced as a value that the parent can merge.
type Scope struct {
	qb        *QueryBuilder
	baseJoins int
}

// ScopeResult is the value produced by a scope: one predicate plus the joins
// and parameter bindings it needs
type ScopeResult struct {
	Predicate  Predicate
	Joins      []*Join
	Parameters map[string]interface{}
	ParamOrder []string
}

// Empty reports whether the scope produced no predicate
func (r ScopeResult) Empty() bool {
	if r.Predicate == nil {
		return true
	}
	g, ok := r.Predicate.(*PredicateGroup)
	return ok && g.Empty()
}

// NewScope forks parent. Existing joins are visible so nested paths reuse
// aliases, but the WHERE clause, parameters and ordering start empty.
func NewScope(parent *QueryBuilder) *Scope {
	fork := &QueryBuilder{
		registry:  parent.registry,
		resource:  parent.resource,
		db:        parent.db,
		rootAlias: parent.rootAlias,
		aliases:   make(map[string]string, len(parent.aliases)),
		joins:     make([]*Join, len(parent.joins)),
		where:     NewPredicateGroup(false),
		orderBy:   make([]OrderBy, 0),
		params:    make(map[string]interface{}),
	}
	for k, v := range parent.aliases {
		fork.aliases[k] = v
	}
	copy(fork.joins, parent.joins)
	return &Scope{qb: fork, baseJoins: len(parent.joins)}
}

// Builder returns the builder filters write into
func (s *Scope) Builder() *QueryBuilder {
	return s.qb
}

// Result captures the predicate, new joins and bindings of the scope
func (s *Scope) Result() ScopeResult {
	joins := make([]*Join, 0, len(s.qb.joins)-s.baseJoins)
	for _, j := range s.qb.joins[s.baseJoins:] {
		cp := *j
		joins = append(joins, &cp)
	}

	var predicate Predicate
	switch len(s.qb.where.Parts) {
	case 0:
	case 1:
		predicate = s.qb.where.Parts[0]
	default:
		predicate = And(s.qb.where.Parts...)
	}

	return ScopeResult{
		Predicate:  predicate,
		Joins:      joins,
		Parameters: s.qb.Parameters(),
		ParamOrder: s.qb.ParameterNames(),
	}
}

// MergeOr merges scope results under one OR predicate. Joins a scope made
// for an association path the builder already joins are dropped and their
// aliases rewritten to the existing ones.
func (qb *QueryBuilder) MergeOr(results ...ScopeResult) error {
	return qb.merge(true, results)
}

// MergeAnd merges scope results combined with AND
func (qb *QueryBuilder) MergeAnd(results ...ScopeResult) error {
	return qb.merge(false, results)
}

func (qb *QueryBuilder) merge(or bool, results []ScopeResult) error {
	branches := make([]Predicate, 0, len(results))

	for _, result := range results {
		if result.Empty() {
			continue
		}

		renames := make(map[string]string)
		for _, j := range result.Joins {
			parent := j.Parent
			if to, ok := renames[parent]; ok {
				parent = to
			}
			if existing, ok := qb.FindJoin(parent, j.Association); ok {
				if existing.Alias != j.Alias {
					renames[j.Alias] = existing.Alias
				}
				continue
			}
			if _, taken := qb.aliases[j.Alias]; taken {
				return fmt.Errorf("alias %s is already bound to another join", j.Alias)
			}
			cp := *j
			cp.Parent = parent
			qb.joins = append(qb.joins, &cp)
			qb.aliases[cp.Alias] = cp.Target
		}

		order := result.ParamOrder
		if len(order) != len(result.Parameters) {
			order = sortedKeys(result.Parameters)
		}
		for _, name := range order {
			value := result.Parameters[name]
			if existing, ok := qb.params[name]; ok && !equalValues(existing, value) {
				return fmt.Errorf("parameter %s is bound twice with different values", name)
			}
			qb.SetParameter(name, value)
		}

		if len(renames) > 0 {
			branches = append(branches, result.Predicate.rename(renames))
		} else {
			branches = append(branches, result.Predicate)
		}
	}

	if len(branches) == 0 {
		return nil
	}
	if or {
		qb.AndWhere(Or(branches...))
	} else {
		qb.AndWhere(And(branches...))
	}
	return nil
}

func equalValues(a, b interface{}) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}
