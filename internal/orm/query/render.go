package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// renderer turns expression values into positional SQL. A named parameter
// used twice binds once.
type renderer struct {
	qb      *QueryBuilder
	args    []interface{}
	indexes map[string]string
}

func newRenderer(qb *QueryBuilder) *renderer {
	return &renderer{
		qb:      qb,
		args:    make([]interface{}, 0, len(qb.params)),
		indexes: make(map[string]string),
	}
}

// bind appends a raw value and returns its placeholder
func (r *renderer) bind(v interface{}) string {
	r.args = append(r.args, v)
	return fmt.Sprintf("$%d", len(r.args))
}

func (r *renderer) placeholder(name string) (string, error) {
	if ph, ok := r.indexes[name]; ok {
		return ph, nil
	}
	v, ok := r.qb.params[name]
	if !ok {
		return "", fmt.Errorf("parameter %s is not bound", name)
	}
	ph := r.bind(v)
	r.indexes[name] = ph
	return ph, nil
}

// list expands a slice-valued parameter into a placeholder list
func (r *renderer) list(op Operand) (string, bool, error) {
	p, ok := op.(ParamRef)
	if !ok {
		s, err := op.sql(r)
		return s, false, err
	}
	if ph, ok := r.indexes[p.Name]; ok {
		return ph, false, nil
	}
	v, ok := r.qb.params[p.Name]
	if !ok {
		return "", false, fmt.Errorf("parameter %s is not bound", p.Name)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		ph := r.bind(v)
		r.indexes[p.Name] = ph
		return ph, false, nil
	}
	if rv.Len() == 0 {
		return "", true, nil
	}

	placeholders := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		placeholders[i] = r.bind(rv.Index(i).Interface())
	}
	list := strings.Join(placeholders, ", ")
	r.indexes[p.Name] = list
	return list, false, nil
}

// column maps a property reference to its column
func (r *renderer) column(f FieldRef) (string, error) {
	resource, ok := r.qb.ResourceForAlias(f.Alias)
	if !ok {
		return "", fmt.Errorf("unknown alias %s", f.Alias)
	}
	if field, ok := resource.Fields[f.Field]; ok {
		return field.ColumnName(), nil
	}
	if rel, ok := resource.Relationships[f.Field]; ok {
		if rel.Type == schema.RelationshipBelongsTo {
			return rel.ForeignKeyColumn(resource.Name), nil
		}
		return "", fmt.Errorf("%s.%s is an inverse association and has no column", resource.Name, f.Field)
	}
	return "", fmt.Errorf("%s.%s is not mapped", resource.Name, f.Field)
}

// nullness renders IS [NOT] NULL and IS [NOT] EMPTY. Associations without a
// local column become an EXISTS subquery.
func (r *renderer) nullness(c *Condition) (string, error) {
	ref, ok := c.Left.(FieldRef)
	if !ok {
		left, err := c.Left.sql(r)
		if err != nil {
			return "", err
		}
		if c.Operator == OpIsEmpty || c.Operator == OpIsNotEmpty {
			return "", fmt.Errorf("%s requires an association", c.Operator)
		}
		return fmt.Sprintf("%s %s", left, c.Operator), nil
	}

	resource, ok := r.qb.ResourceForAlias(ref.Alias)
	if !ok {
		return "", fmt.Errorf("unknown alias %s", ref.Alias)
	}

	rel, isAssoc := resource.Relationships[ref.Field]
	if !isAssoc || rel.Type == schema.RelationshipBelongsTo {
		if c.Operator == OpIsEmpty || c.Operator == OpIsNotEmpty {
			return "", fmt.Errorf("%s.%s is not a collection", resource.Name, ref.Field)
		}
		col, err := r.column(ref)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s %s", ref.Alias, col, c.Operator), nil
	}

	sub, err := r.existsSubquery(ref.Alias, resource, rel)
	if err != nil {
		return "", err
	}
	if c.Operator == OpIsNull || c.Operator == OpIsEmpty {
		return "NOT EXISTS (" + sub + ")", nil
	}
	return "EXISTS (" + sub + ")", nil
}

func (r *renderer) existsSubquery(alias string, owner *schema.ResourceSchema, rel *schema.Relationship) (string, error) {
	pk, err := owner.GetPrimaryKey()
	if err != nil {
		return "", err
	}
	target, ok := r.qb.registry.Get(rel.TargetResource)
	if !ok {
		return "", fmt.Errorf("unknown resource %s", rel.TargetResource)
	}

	if rel.Type == schema.RelationshipHasManyThrough {
		assocKey, _ := throughKeys(rel, owner.Name, target.Name)
		return fmt.Sprintf("SELECT 1 FROM %s WHERE %s.%s = %s.%s",
			rel.JoinTable, rel.JoinTable, assocKey, alias, pk.ColumnName()), nil
	}
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s.%s = %s.%s",
		target.TableName, target.TableName, rel.ForeignKeyColumn(owner.Name), alias, pk.ColumnName()), nil
}

func (r *renderer) join(j *Join) (string, error) {
	parent, ok := r.qb.ResourceForAlias(j.Parent)
	if !ok {
		return "", fmt.Errorf("unknown alias %s", j.Parent)
	}
	target, ok := r.qb.registry.Get(j.Target)
	if !ok {
		return "", fmt.Errorf("unknown resource %s", j.Target)
	}
	return joinSQL(j, parent, target)
}
