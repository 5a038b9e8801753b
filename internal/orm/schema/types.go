// Package schema provides the persistence-side class metadata consumed by the
// filter engine and the state providers. A ResourceSchema describes how one
// resource class maps to a table: its fields, their types and nullability, and
// the associations it holds to other resource classes.
package schema

import (
	"fmt"
	"strings"
)

// PrimitiveType represents the built-in column types
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate
	TypeTime

	// Unique identifiers
	TypeUUID

	// JSON types
	TypeJSON

	// Enum
	TypeEnum
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch strings.ToLower(s) {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int", "integer":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "time":
		return TypeTime, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	case "enum":
		return TypeEnum, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// TypeSpec represents a column type with nullability
type TypeSpec struct {
	BaseType   PrimitiveType
	Nullable   bool
	EnumValues []string
}

// String returns a string representation of the TypeSpec
func (t *TypeSpec) String() string {
	s := t.BaseType.String()
	if t.Nullable {
		return s + "?"
	}
	return s + "!"
}

// IsNumeric returns true if the type is a numeric type
func (t *TypeSpec) IsNumeric() bool {
	return t.BaseType == TypeInt ||
		t.BaseType == TypeBigInt ||
		t.BaseType == TypeFloat ||
		t.BaseType == TypeDecimal
}

// IsInteger returns true for integral numeric types
func (t *TypeSpec) IsInteger() bool {
	return t.BaseType == TypeInt || t.BaseType == TypeBigInt
}

// IsText returns true if the type is a text type
func (t *TypeSpec) IsText() bool {
	return t.BaseType == TypeString ||
		t.BaseType == TypeText ||
		t.BaseType == TypeEnum
}

// IsTemporal returns true for date and time types
func (t *TypeSpec) IsTemporal() bool {
	return t.BaseType == TypeTimestamp ||
		t.BaseType == TypeDate ||
		t.BaseType == TypeTime
}

// IsBool returns true for boolean columns
func (t *TypeSpec) IsBool() bool {
	return t.BaseType == TypeBool
}

// Field represents a mapped column of a resource
type Field struct {
	Name        string
	Column      string
	Type        *TypeSpec
	Annotations []Annotation
}

// Annotation represents field annotations like @primary or @unique
type Annotation struct {
	Name string
	Args []interface{}
}

// IsPrimary reports whether the field carries the @primary annotation
func (f *Field) IsPrimary() bool {
	for _, a := range f.Annotations {
		if a.Name == "primary" {
			return true
		}
	}
	return false
}

// ColumnName returns the column backing the field
func (f *Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return toSnakeCase(f.Name)
}

// RelationType represents the type of relationship
type RelationType int

const (
	RelationshipBelongsTo RelationType = iota
	RelationshipHasMany
	RelationshipHasManyThrough
	RelationshipHasOne
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationshipBelongsTo:
		return "belongs_to"
	case RelationshipHasMany:
		return "has_many"
	case RelationshipHasManyThrough:
		return "has_many_through"
	case RelationshipHasOne:
		return "has_one"
	default:
		return "unknown"
	}
}

// IsToMany reports whether the relationship targets a collection
func (r RelationType) IsToMany() bool {
	return r == RelationshipHasMany || r == RelationshipHasManyThrough
}

// Relationship represents an association between resources.
//
// For belongs_to the foreign key lives on the owning table; for has_one and
// has_many it lives on the target table; has_many_through goes through
// JoinTable where AssociationKey points at the owner and InverseKey at the
// target.
type Relationship struct {
	Type           RelationType
	TargetResource string
	FieldName      string
	Nullable       bool

	ForeignKey string

	JoinTable      string
	AssociationKey string
	InverseKey     string
}

// IsToMany reports whether the relationship targets a collection
func (r *Relationship) IsToMany() bool {
	return r.Type.IsToMany()
}

// ForeignKeyColumn returns the foreign key column for the relationship,
// falling back to naming conventions relative to the owning resource
func (r *Relationship) ForeignKeyColumn(owner string) string {
	if r.ForeignKey != "" {
		return r.ForeignKey
	}
	switch r.Type {
	case RelationshipBelongsTo:
		return toSnakeCase(r.FieldName) + "_id"
	default:
		return toSnakeCase(owner) + "_id"
	}
}

// ResourceSchema represents the complete persistence mapping for a resource
type ResourceSchema struct {
	Name      string
	TableName string

	Fields        map[string]*Field
	Relationships map[string]*Relationship

	fieldOrder        []string
	relationshipOrder []string
}

// NewResourceSchema creates a new ResourceSchema
func NewResourceSchema(name string) *ResourceSchema {
	return &ResourceSchema{
		Name:          name,
		Fields:        make(map[string]*Field),
		Relationships: make(map[string]*Relationship),
		TableName:     pluralize(toSnakeCase(name)),
	}
}

// AddField adds a field, keeping declaration order
func (r *ResourceSchema) AddField(field *Field) *ResourceSchema {
	if _, exists := r.Fields[field.Name]; !exists {
		r.fieldOrder = append(r.fieldOrder, field.Name)
	}
	r.Fields[field.Name] = field
	return r
}

// AddRelationship adds a relationship, keeping declaration order
func (r *ResourceSchema) AddRelationship(rel *Relationship) *ResourceSchema {
	if _, exists := r.Relationships[rel.FieldName]; !exists {
		r.relationshipOrder = append(r.relationshipOrder, rel.FieldName)
	}
	r.Relationships[rel.FieldName] = rel
	return r
}

// FieldNames returns mapped field names in declaration order
func (r *ResourceSchema) FieldNames() []string {
	return r.orderedKeys(r.fieldOrder, len(r.Fields), func(name string) bool {
		_, ok := r.Fields[name]
		return ok
	}, func() []string {
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		return names
	})
}

// RelationshipNames returns association names in declaration order
func (r *ResourceSchema) RelationshipNames() []string {
	return r.orderedKeys(r.relationshipOrder, len(r.Relationships), func(name string) bool {
		_, ok := r.Relationships[name]
		return ok
	}, func() []string {
		names := make([]string, 0, len(r.Relationships))
		for name := range r.Relationships {
			names = append(names, name)
		}
		return names
	})
}

// orderedKeys merges the recorded declaration order with keys inserted
// directly into the maps
func (r *ResourceSchema) orderedKeys(order []string, total int, exists func(string) bool, all func() []string) []string {
	result := make([]string, 0, total)
	seen := make(map[string]bool, total)
	for _, name := range order {
		if exists(name) && !seen[name] {
			result = append(result, name)
			seen[name] = true
		}
	}
	if len(result) == total {
		return result
	}
	extra := make([]string, 0)
	for _, name := range all() {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sortStrings(extra)
	return append(result, extra...)
}

// GetPrimaryKey returns the primary key field
func (r *ResourceSchema) GetPrimaryKey() (*Field, error) {
	for _, name := range r.FieldNames() {
		if r.Fields[name].IsPrimary() {
			return r.Fields[name], nil
		}
	}
	if field, ok := r.Fields["id"]; ok {
		return field, nil
	}
	return nil, fmt.Errorf("resource %s has no primary key", r.Name)
}

// HasField returns true if the resource has a field with the given name
func (r *ResourceSchema) HasField(name string) bool {
	_, exists := r.Fields[name]
	return exists
}

// HasRelationship returns true if the resource has a relationship with the given name
func (r *ResourceSchema) HasRelationship(name string) bool {
	_, exists := r.Relationships[name]
	return exists
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// Add underscore on a camelCase boundary or at the end of an
			// acronym ("HTTPServer" -> "http_server")
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// ToSnakeCase exposes the column naming convention to other packages
func ToSnakeCase(s string) string {
	return toSnakeCase(s)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") ||
		strings.HasSuffix(s, "ch") ||
		strings.HasSuffix(s, "sh") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])) {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}

// Pluralize exposes the table naming convention to other packages
func Pluralize(s string) string {
	return pluralize(s)
}
