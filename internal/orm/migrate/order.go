package migrate

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// reference is a foreign key column held by a table
type reference struct {
	column   string
	target   string
	nullable bool
}

// references lists the foreign key columns of every resource table: its
// belongs_to associations, then the keys of has_one and has_many
// associations targeting it that it does not map itself
func references(schemas *schema.Registry) map[string][]reference {
	out := make(map[string][]reference)
	has := func(name, column string) bool {
		for _, ref := range out[name] {
			if ref.column == column {
				return true
			}
		}
		return false
	}

	names := schemas.List()
	for _, name := range names {
		rs, _ := schemas.Get(name)
		for _, relName := range rs.RelationshipNames() {
			rel := rs.Relationships[relName]
			if rel.Type == schema.RelationshipBelongsTo {
				out[name] = append(out[name], reference{column: rel.ForeignKeyColumn(name), target: rel.TargetResource, nullable: rel.Nullable})
			}
		}
	}
	for _, name := range names {
		rs, _ := schemas.Get(name)
		for _, relName := range rs.RelationshipNames() {
			rel := rs.Relationships[relName]
			if rel.Type != schema.RelationshipHasOne && rel.Type != schema.RelationshipHasMany {
				continue
			}
			column := rel.ForeignKeyColumn(name)
			if !has(rel.TargetResource, column) {
				out[rel.TargetResource] = append(out[rel.TargetResource], reference{column: column, target: name, nullable: true})
			}
		}
	}
	return out
}

// Order returns the registered resources so that every table referenced by
// a foreign key precedes the table holding it. Independent resources keep
// registration order and self references are ignored.
func Order(schemas *schema.Registry) ([]string, error) {
	names := schemas.List()
	refs := references(schemas)
	deps := make(map[string]map[string]bool, len(names))
	for _, name := range names {
		deps[name] = make(map[string]bool)
		for _, ref := range refs[name] {
			if ref.target != name && schemas.Exists(ref.target) {
				deps[name][ref.target] = true
			}
		}
	}

	done := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for len(out) < len(names) {
		progressed := false
		for _, name := range names {
			if done[name] || !satisfied(deps[name], done) {
				continue
			}
			done[name] = true
			out = append(out, name)
			progressed = true
		}
		if !progressed {
			var cycle []string
			for _, name := range names {
				if !done[name] {
					cycle = append(cycle, name)
				}
			}
			return nil, fmt.Errorf("circular foreign keys between %s", strings.Join(cycle, ", "))
		}
	}
	return out, nil
}

func satisfied(deps, done map[string]bool) bool {
	for dep := range deps {
		if !done[dep] {
			return false
		}
	}
	return true
}
