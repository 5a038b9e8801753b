package schema

import (
	"fmt"
	"strings"
)

// AssociationStep is one traversed association of a nested property path
type AssociationStep struct {
	Name         string
	Source       string
	Target       string
	Relationship *Relationship
}

// PropertyPath is the resolved form of a possibly nested property such as
// "relatedDummy.thirdLevel.level". A path always resolves to a leaf plus the
// ordered associations walked to reach it.
type PropertyPath struct {
	Property     string
	Root         string
	Associations []AssociationStep

	// Leaf is the name of the last segment
	Leaf string
	// LeafResource is the resource owning the leaf
	LeafResource string
	// Field is set when the leaf is a mapped column
	Field *Field
	// Association is set when the leaf itself is an association
	Association *Relationship
}

// IsNested reports whether the path traverses at least one association
func (p *PropertyPath) IsNested() bool {
	return len(p.Associations) > 0
}

// IsField reports whether the leaf is a mapped column
func (p *PropertyPath) IsField() bool {
	return p.Field != nil
}

// IsAssociation reports whether the leaf is an association
func (p *PropertyPath) IsAssociation() bool {
	return p.Association != nil
}

// AssociationNames returns the names of the traversed associations in order
func (p *PropertyPath) AssociationNames() []string {
	names := make([]string, len(p.Associations))
	for i, step := range p.Associations {
		names[i] = step.Name
	}
	return names
}

// SplitPropertyPath splits "a.b.c" into the associations ["a", "b"] and the
// leaf "c"
func SplitPropertyPath(property string) ([]string, string) {
	parts := strings.Split(property, ".")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// IsNestedProperty reports whether the property contains a dot
func IsNestedProperty(property string) bool {
	return strings.Contains(property, ".")
}

// ResolvePath walks property from root through the association chain and
// returns the resolved path, or an error when any segment is unmapped
func (r *Registry) ResolvePath(root, property string) (*PropertyPath, error) {
	if property == "" {
		return nil, fmt.Errorf("empty property path on %s", root)
	}

	current, ok := r.Get(root)
	if !ok {
		return nil, fmt.Errorf("resource %s not found", root)
	}

	associations, leaf := SplitPropertyPath(property)
	path := &PropertyPath{
		Property:     property,
		Root:         root,
		Associations: make([]AssociationStep, 0, len(associations)),
		Leaf:         leaf,
	}

	for _, name := range associations {
		if name == "" {
			return nil, fmt.Errorf("invalid property path %q on %s", property, root)
		}
		rel, ok := current.Relationships[name]
		if !ok {
			return nil, fmt.Errorf("%s.%s is not an association", current.Name, name)
		}
		target, ok := r.Get(rel.TargetResource)
		if !ok {
			return nil, fmt.Errorf("association %s.%s targets unknown resource %s", current.Name, name, rel.TargetResource)
		}
		path.Associations = append(path.Associations, AssociationStep{
			Name:         name,
			Source:       current.Name,
			Target:       target.Name,
			Relationship: rel,
		})
		current = target
	}

	path.LeafResource = current.Name
	if field, ok := current.Fields[leaf]; ok {
		path.Field = field
		return path, nil
	}
	if rel, ok := current.Relationships[leaf]; ok {
		path.Association = rel
		return path, nil
	}
	return nil, fmt.Errorf("%s.%s is not mapped", current.Name, leaf)
}

// IsPropertyMapped reports whether property resolves on root. Associations
// as leaves only count when allowAssociation is true.
func (r *Registry) IsPropertyMapped(root, property string, allowAssociation bool) bool {
	path, err := r.ResolvePath(root, property)
	if err != nil {
		return false
	}
	return path.IsField() || (allowAssociation && path.IsAssociation())
}
