package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all resource schemas in the application.
// It plays the role of the manager registry: given a class name it yields
// field names, association targets, nullability and cardinality.
type Registry struct {
	schemas map[string]*ResourceSchema
	order   []string
	mu      sync.RWMutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*ResourceSchema),
	}
}

// Register registers a new resource schema
func (r *Registry) Register(schema *ResourceSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("resource %s is already registered", schema.Name)
	}

	if err := validateStructural(schema); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", schema.Name, err)
	}

	r.schemas[schema.Name] = schema
	r.order = append(r.order, schema.Name)
	return nil
}

// MustRegister registers schemas and panics on failure
func (r *Registry) MustRegister(schemas ...*ResourceSchema) *Registry {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Get retrieves a resource schema by name
func (r *Registry) Get(name string) (*ResourceSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, exists := r.schemas[name]
	return schema, exists
}

// List returns resource names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Exists checks if a resource schema exists
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.schemas[name]
	return exists
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// ValidateAll checks that every relationship targets a registered resource
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		schema := r.schemas[name]
		for _, relName := range schema.RelationshipNames() {
			rel := schema.Relationships[relName]
			if _, ok := r.schemas[rel.TargetResource]; !ok {
				return fmt.Errorf("relationship %s.%s targets unknown resource %s", name, relName, rel.TargetResource)
			}
			if rel.Type == RelationshipHasManyThrough && rel.JoinTable == "" {
				return fmt.Errorf("relationship %s.%s is has_many_through but declares no join table", name, relName)
			}
		}
	}
	return nil
}

// GetFields returns all fields for a resource
func (r *Registry) GetFields(resourceName string) (map[string]*Field, error) {
	schema, exists := r.Get(resourceName)
	if !exists {
		return nil, fmt.Errorf("resource %s not found", resourceName)
	}
	return schema.Fields, nil
}

// GetRelationships returns all relationships for a resource
func (r *Registry) GetRelationships(resourceName string) (map[string]*Relationship, error) {
	schema, exists := r.Get(resourceName)
	if !exists {
		return nil, fmt.Errorf("resource %s not found", resourceName)
	}
	return schema.Relationships, nil
}

// HasField reports whether resourceName maps field as a column
func (r *Registry) HasField(resourceName, field string) bool {
	schema, ok := r.Get(resourceName)
	return ok && schema.HasField(field)
}

// HasAssociation reports whether resourceName maps field as an association
func (r *Registry) HasAssociation(resourceName, field string) bool {
	schema, ok := r.Get(resourceName)
	return ok && schema.HasRelationship(field)
}

// Identifier returns the primary key field of a resource
func (r *Registry) Identifier(resourceName string) (*Field, error) {
	schema, ok := r.Get(resourceName)
	if !ok {
		return nil, fmt.Errorf("resource %s not found", resourceName)
	}
	return schema.GetPrimaryKey()
}

// validateStructural checks a schema in isolation; cross-resource checks
// live in ValidateAll so forward references are allowed at registration
func validateStructural(schema *ResourceSchema) error {
	if schema.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if schema.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	for name, field := range schema.Fields {
		if field.Type == nil {
			return fmt.Errorf("field %s has no type", name)
		}
		if !isValidIdentifier(field.ColumnName()) {
			return fmt.Errorf("field %s maps to invalid column %q", name, field.ColumnName())
		}
	}
	for name, rel := range schema.Relationships {
		if rel.TargetResource == "" {
			return fmt.Errorf("relationship %s has no target resource", name)
		}
		if schema.HasField(name) {
			return fmt.Errorf("relationship %s shadows a field with the same name", name)
		}
	}
	if _, err := schema.GetPrimaryKey(); err != nil {
		return err
	}
	return nil
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

func sortStrings(s []string) {
	sort.Strings(s)
}
