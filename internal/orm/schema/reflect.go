package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

var timeType = reflect.TypeOf(time.Time{})

// FromStruct derives the persistence mapping of a struct. The resource is
// named after the Go type and fields are named like their json properties.
//
// The db tag sets the column and flags: `db:"isbn_13"`, `db:",primary"`,
// `db:"-"` skips the field, `db:",unique"` and `db:",index"` request an
// index. Pointers to scalars are nullable columns, a struct or pointer to
// struct is a belongs_to association whose tag names the foreign key and a
// slice of structs is a has_many association. The field named "id" is the
// primary key when no field is flagged.
func FromStruct(v interface{}) (*ResourceSchema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %T is not a struct", v)
	}

	rs := NewResourceSchema(t.Name())
	hasPrimary := false
	var walk func(t reflect.Type) error
	walk = func(t reflect.Type) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, skip := propertyName(f)
			if skip {
				continue
			}
			if f.Anonymous && name == "" && deref(f.Type).Kind() == reflect.Struct {
				if err := walk(deref(f.Type)); err != nil {
					return err
				}
				continue
			}
			if !f.IsExported() {
				continue
			}
			column, flags := dbTag(f)
			if column == "-" {
				continue
			}

			if rel := relationshipOf(f.Type); rel != nil {
				rel.FieldName = name
				rel.ForeignKey = column
				rs.AddRelationship(rel)
				continue
			}

			spec, err := typeSpecOf(f.Type)
			if err != nil {
				return fmt.Errorf("schema: %s.%s: %w", rs.Name, f.Name, err)
			}
			field := &Field{Name: name, Column: column, Type: spec}
			if flags["primary"] {
				field.Annotations = append(field.Annotations, Annotation{Name: "primary"})
				hasPrimary = true
			}
			for _, flag := range []string{"unique", "index"} {
				if flags[flag] {
					field.Annotations = append(field.Annotations, Annotation{Name: flag})
				}
			}
			rs.AddField(field)
		}
		return nil
	}
	if err := walk(t); err != nil {
		return nil, err
	}

	if !hasPrimary {
		if id, ok := rs.Fields["id"]; ok {
			id.Annotations = append(id.Annotations, Annotation{Name: "primary"})
		}
	}
	return rs, nil
}

// MustFromStruct is FromStruct panicking on error
func MustFromStruct(v interface{}) *ResourceSchema {
	rs, err := FromStruct(v)
	if err != nil {
		panic(err)
	}
	return rs
}

func relationshipOf(t reflect.Type) *Relationship {
	switch {
	case t.Kind() == reflect.Slice && isEntity(deref(t.Elem())):
		return &Relationship{Type: RelationshipHasMany, TargetResource: deref(t.Elem()).Name()}
	case isEntity(deref(t)):
		return &Relationship{Type: RelationshipBelongsTo, TargetResource: deref(t).Name(), Nullable: t.Kind() == reflect.Ptr}
	}
	return nil
}

// isEntity reports whether t maps to another table rather than a column
func isEntity(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != timeType && t.Name() != ""
}

func typeSpecOf(t reflect.Type) (*TypeSpec, error) {
	spec := &TypeSpec{}
	if t.Kind() == reflect.Ptr {
		spec.Nullable = true
		t = t.Elem()
	}
	switch {
	case t == timeType:
		spec.BaseType = TypeTimestamp
		return spec, nil
	case t.Kind() == reflect.Array && t.Len() == 16 && t.Name() == "UUID":
		spec.BaseType = TypeUUID
		return spec, nil
	}

	switch t.Kind() {
	case reflect.String:
		spec.BaseType = TypeString
	case reflect.Bool:
		spec.BaseType = TypeBool
	case reflect.Int64, reflect.Uint64:
		spec.BaseType = TypeBigInt
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		spec.BaseType = TypeInt
	case reflect.Float32, reflect.Float64:
		spec.BaseType = TypeFloat
	case reflect.Map, reflect.Slice, reflect.Struct, reflect.Interface:
		spec.BaseType = TypeJSON
		spec.Nullable = true
	default:
		return nil, fmt.Errorf("unsupported kind %s", t.Kind())
	}
	return spec, nil
}

// propertyName follows the json tag; untagged fields use their lower camel
// case Go name
func propertyName(f reflect.StructField) (string, bool) {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", true
		}
		if name != "" {
			return name, false
		}
	}
	if f.Anonymous {
		return "", false
	}
	runes := []rune(f.Name)
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes), false
}

func dbTag(f reflect.StructField) (string, map[string]bool) {
	parts := strings.Split(f.Tag.Get("db"), ",")
	flags := make(map[string]bool, len(parts)-1)
	for _, p := range parts[1:] {
		flags[strings.TrimSpace(p)] = true
	}
	return strings.TrimSpace(parts[0]), flags
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
