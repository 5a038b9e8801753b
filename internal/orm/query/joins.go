package query

import (
	"fmt"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the string representation of the join type
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	default:
		return "INNER"
	}
}

// Join is an association join from a parent alias
type Join struct {
	Type         JoinType
	Parent       string
	Association  string
	Alias        string
	Target       string
	Relationship *schema.Relationship
}

// Join adds a join of association from parentAlias under alias
func (qb *QueryBuilder) Join(joinType JoinType, parentAlias, association, alias string) error {
	if !isValidIdentifier(alias) {
		return fmt.Errorf("invalid join alias %q", alias)
	}
	if _, taken := qb.aliases[alias]; taken {
		return fmt.Errorf("alias %s is already in use", alias)
	}

	parent, ok := qb.ResourceForAlias(parentAlias)
	if !ok {
		return fmt.Errorf("unknown alias %s", parentAlias)
	}
	rel, ok := parent.Relationships[association]
	if !ok {
		return fmt.Errorf("%s.%s is not an association", parent.Name, association)
	}
	if !qb.registry.Exists(rel.TargetResource) {
		return fmt.Errorf("association %s.%s targets unknown resource %s", parent.Name, association, rel.TargetResource)
	}

	qb.joins = append(qb.joins, &Join{
		Type:         joinType,
		Parent:       parentAlias,
		Association:  association,
		Alias:        alias,
		Target:       rel.TargetResource,
		Relationship: rel,
	})
	qb.aliases[alias] = rel.TargetResource
	return nil
}

// LeftJoin adds a LEFT JOIN
func (qb *QueryBuilder) LeftJoin(parentAlias, association, alias string) error {
	return qb.Join(LeftJoin, parentAlias, association, alias)
}

// InnerJoin adds an INNER JOIN
func (qb *QueryBuilder) InnerJoin(parentAlias, association, alias string) error {
	return qb.Join(InnerJoin, parentAlias, association, alias)
}

// FindJoin returns the join of association from parentAlias, if any
func (qb *QueryBuilder) FindJoin(parentAlias, association string) (*Join, bool) {
	for _, j := range qb.joins {
		if j.Parent == parentAlias && j.Association == association {
			return j, true
		}
	}
	return nil, false
}

// JoinOnce joins association from parentAlias unless it is already joined,
// in which case the existing alias is returned
func (qb *QueryBuilder) JoinOnce(joinType JoinType, parentAlias, association string, names *NameGenerator) (string, error) {
	if existing, ok := qb.FindJoin(parentAlias, association); ok {
		return existing.Alias, nil
	}
	alias := names.Alias(association)
	if err := qb.Join(joinType, parentAlias, association, alias); err != nil {
		return "", err
	}
	return alias, nil
}

// JoinPath joins every association of a nested path from the root alias and
// returns the alias owning the leaf
func (qb *QueryBuilder) JoinPath(joinType JoinType, associations []string, names *NameGenerator) (string, error) {
	alias := qb.rootAlias
	for _, association := range associations {
		next, err := qb.JoinOnce(joinType, alias, association, names)
		if err != nil {
			return "", err
		}
		alias = next
	}
	return alias, nil
}

// Joins returns the joins in insertion order
func (qb *QueryBuilder) Joins() []*Join {
	out := make([]*Join, len(qb.joins))
	copy(out, qb.joins)
	return out
}

// HasToManyJoin reports whether any join can multiply root rows
func (qb *QueryBuilder) HasToManyJoin() bool {
	for _, j := range qb.joins {
		if j.Relationship.IsToMany() {
			return true
		}
	}
	return false
}

// joinSQL renders a join clause
func joinSQL(join *Join, parent, target *schema.ResourceSchema) (string, error) {
	parentPK, err := parent.GetPrimaryKey()
	if err != nil {
		return "", err
	}
	targetPK, err := target.GetPrimaryKey()
	if err != nil {
		return "", err
	}

	rel := join.Relationship
	switch rel.Type {
	case schema.RelationshipBelongsTo:
		return fmt.Sprintf(" %s JOIN %s %s ON %s.%s = %s.%s",
			join.Type, target.TableName, join.Alias,
			join.Alias, targetPK.ColumnName(),
			join.Parent, rel.ForeignKeyColumn(parent.Name),
		), nil

	case schema.RelationshipHasOne, schema.RelationshipHasMany:
		return fmt.Sprintf(" %s JOIN %s %s ON %s.%s = %s.%s",
			join.Type, target.TableName, join.Alias,
			join.Alias, rel.ForeignKeyColumn(parent.Name),
			join.Parent, parentPK.ColumnName(),
		), nil

	case schema.RelationshipHasManyThrough:
		if rel.JoinTable == "" {
			return "", fmt.Errorf("association %s has no join table", join.Association)
		}
		through := join.Alias + "_jt"
		assocKey, inverseKey := throughKeys(rel, parent.Name, target.Name)
		return fmt.Sprintf(" %s JOIN %s %s ON %s.%s = %s.%s %s JOIN %s %s ON %s.%s = %s.%s",
			join.Type, rel.JoinTable, through,
			through, assocKey,
			join.Parent, parentPK.ColumnName(),
			join.Type, target.TableName, join.Alias,
			join.Alias, targetPK.ColumnName(),
			through, inverseKey,
		), nil
	}
	return "", fmt.Errorf("unsupported relationship type %s", rel.Type)
}

// throughKeys returns the join table columns pointing at the owner and the target
func throughKeys(rel *schema.Relationship, owner, target string) (string, string) {
	assocKey := rel.AssociationKey
	if assocKey == "" {
		assocKey = schema.ToSnakeCase(owner) + "_id"
	}
	inverseKey := rel.InverseKey
	if inverseKey == "" {
		inverseKey = schema.ToSnakeCase(target) + "_id"
	}
	return assocKey, inverseKey
}
