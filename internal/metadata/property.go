package metadata

import (
	"context"
	"encoding"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/logging"
)

// Builtin type names of property values
const (
	BuiltinString = "string"
	BuiltinInt    = "int"
	BuiltinFloat  = "float"
	BuiltinBool   = "bool"
	BuiltinTime   = "time"
	BuiltinObject = "object"
	BuiltinArray  = "array"
)

// Type describes the value of a property
type Type struct {
	Builtin    string `json:"builtin"`
	Nullable   bool   `json:"nullable,omitempty"`
	Collection bool   `json:"collection,omitempty"`
	// Class is the registered class of object values
	Class string `json:"class,omitempty"`
}

// Property is the metadata of one property of a class. Nil flags are unset
// until DefaultPropertyStage runs.
type Property struct {
	Name         string   `json:"name"`
	GoName       string   `json:"go_name"`
	FieldIndex   []int    `json:"field_index"`
	Types        []Type   `json:"types,omitempty"`
	Readable     *bool    `json:"readable,omitempty"`
	Writable     *bool    `json:"writable,omitempty"`
	ReadableLink *bool    `json:"readable_link,omitempty"`
	WritableLink *bool    `json:"writable_link,omitempty"`
	Identifier   *bool    `json:"identifier,omitempty"`
	Required     *bool    `json:"required,omitempty"`
	Description  string   `json:"description,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}

// IsReadable reports whether the property is normalized
func (p *Property) IsReadable() bool { return p.Readable == nil || *p.Readable }

// IsWritable reports whether the property is denormalized
func (p *Property) IsWritable() bool { return p.Writable == nil || *p.Writable }

// IsReadableLink reports whether related objects are embedded rather than
// reduced to their IRI
func (p *Property) IsReadableLink() bool { return p.ReadableLink != nil && *p.ReadableLink }

// IsWritableLink reports whether nested objects are accepted on write
func (p *Property) IsWritableLink() bool { return p.WritableLink != nil && *p.WritableLink }

// IsIdentifier reports whether the property identifies the item
func (p *Property) IsIdentifier() bool { return p.Identifier != nil && *p.Identifier }

// IsRequired reports whether the property must be present on create
func (p *Property) IsRequired() bool { return p.Required != nil && *p.Required }

// Type returns the first type, or the zero Type
func (p *Property) Type() Type {
	if len(p.Types) == 0 {
		return Type{}
	}
	return p.Types[0]
}

// IsNullable reports whether any type accepts null
func (p *Property) IsNullable() bool {
	for _, t := range p.Types {
		if t.Nullable {
			return true
		}
	}
	return false
}

// RelatedClass returns the registered class of an association property
func (p *Property) RelatedClass() (string, bool) {
	t := p.Type()
	return t.Class, t.Class != ""
}

// PropertyOptions narrows the properties returned by the factories
type PropertyOptions struct {
	// SerializerGroups limits names to properties in at least one group
	SerializerGroups []string
	// NormalizationGroups decides readability and readable links
	NormalizationGroups []string
	// DenormalizationGroups decides writability and writable links
	DenormalizationGroups []string
}

func (o PropertyOptions) key() string {
	return strings.Join(o.SerializerGroups, ",") + "|" +
		strings.Join(o.NormalizationGroups, ",") + "|" +
		strings.Join(o.DenormalizationGroups, ",")
}

// PropertyNameCollectionFactory lists the property names of a class
type PropertyNameCollectionFactory interface {
	Create(ctx context.Context, class string, opts PropertyOptions) ([]string, error)
}

// PropertyMetadataFactory creates the metadata of one property
type PropertyMetadataFactory interface {
	Create(ctx context.Context, class, property string, opts PropertyOptions) (*Property, error)
}

// structField is an exported field reachable from a struct, embedded
// structs flattened
type structField struct {
	name  string
	field reflect.StructField
	index []int
}

// structFields walks t in declaration order
func structFields(t reflect.Type) []structField {
	var out []structField
	seen := make(map[string]struct{})
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			index := append(append([]int(nil), prefix...), i)
			name, skip := jsonName(f)
			if skip {
				continue
			}
			if f.Anonymous && name == "" {
				ft := indirectType(f.Type)
				if ft.Kind() == reflect.Struct {
					walk(ft, index)
					continue
				}
			}
			if !f.IsExported() {
				continue
			}
			if name == "" {
				name = lowerCamel(f.Name)
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, structField{name: name, field: f, index: index})
		}
	}
	walk(t, nil)
	return out
}

// jsonName returns the name of the json tag and whether the field is skipped
func jsonName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return "", true
	}
	return name, false
}

func lowerCamel(s string) string {
	runes := []rune(s)
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		// keep the last capital of an acronym followed by a lower case letter
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// tagGroups returns the groups listed in the groups tag
func tagGroups(f reflect.StructField) []string {
	tag := f.Tag.Get("groups")
	if tag == "" {
		return nil
	}
	var out []string
	for _, g := range strings.Split(tag, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func unionStrings(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		found := false
		for _, have := range out {
			if have == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// ReflectionNameFactory lists property names from exported struct fields
type ReflectionNameFactory struct {
	classes *ClassRegistry
	logger  *zap.Logger
}

// NewReflectionNameFactory creates a name factory over classes
func NewReflectionNameFactory(classes *ClassRegistry, logger *zap.Logger) *ReflectionNameFactory {
	return &ReflectionNameFactory{classes: classes, logger: logging.OrNop(logger)}
}

// Create implements PropertyNameCollectionFactory. Group declarations naming
// properties the struct does not have are dropped.
func (f *ReflectionNameFactory) Create(_ context.Context, class string, opts PropertyOptions) ([]string, error) {
	t, ok := f.classes.Type(class)
	if !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}

	fields := structFields(t)
	overrides := f.classes.PropertyOverrides(class)
	known := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, sf := range fields {
		known[sf.name] = struct{}{}
		if len(opts.SerializerGroups) > 0 {
			groups := unionStrings(tagGroups(sf.field), overrides[sf.name].Groups)
			if !intersects(groups, opts.SerializerGroups) {
				continue
			}
		}
		out = append(out, sf.name)
	}

	if len(overrides) > 0 {
		dropped := make([]string, 0)
		for name := range overrides {
			if _, ok := known[name]; !ok {
				dropped = append(dropped, name)
			}
		}
		if len(dropped) > 0 {
			sort.Strings(dropped)
			f.logger.Debug("dropping declared properties missing from class",
				zap.String("class", class), zap.Strings("properties", dropped))
		}
	}
	return out, nil
}

// PropertyInput is what property stages read
type PropertyInput struct {
	Class    string
	Property string
	Field    reflect.StructField
	Options  PropertyOptions
}

// PropertyStage enriches property metadata with one concern
type PropertyStage interface {
	Name() string
	Apply(ctx context.Context, in PropertyInput, p *Property) error
}

// PropertyFactory creates property metadata by running stages over a fresh
// Property built from the struct field
type PropertyFactory struct {
	classes *ClassRegistry
	stages  []PropertyStage
}

// NewPropertyFactory creates a factory; stages run in the given order
func NewPropertyFactory(classes *ClassRegistry, stages ...PropertyStage) *PropertyFactory {
	return &PropertyFactory{classes: classes, stages: stages}
}

// Create implements PropertyMetadataFactory
func (f *PropertyFactory) Create(ctx context.Context, class, property string, opts PropertyOptions) (*Property, error) {
	t, ok := f.classes.Type(class)
	if !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}
	for _, sf := range structFields(t) {
		if sf.name != property {
			continue
		}
		p := &Property{Name: sf.name, GoName: sf.field.Name, FieldIndex: sf.index}
		in := PropertyInput{Class: class, Property: property, Field: sf.field, Options: opts}
		for _, stage := range f.stages {
			if err := stage.Apply(ctx, in, p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	return nil, apierr.Configuration("property %s.%s does not exist", class, property)
}

// Identifiers implements IdentifiersResolver over the identifier flags
func (f *PropertyFactory) Identifiers(ctx context.Context, class string) ([]string, error) {
	t, ok := f.classes.Type(class)
	if !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}
	var out []string
	for _, sf := range structFields(t) {
		p, err := f.Create(ctx, class, sf.name, PropertyOptions{})
		if err != nil {
			return nil, err
		}
		if p.IsIdentifier() {
			out = append(out, p.Name)
		}
	}
	return out, nil
}

// PropertyFactoryConfig wires the default property stages
type PropertyFactoryConfig struct {
	Classes *ClassRegistry
	Names   PropertyNameCollectionFactory
	Schema  SchemaRegistry
	Logger  *zap.Logger
}

// NewDefaultPropertyFactory builds the default stages:
// reflection → attributes → serializer groups → persistence schema → defaults
func NewDefaultPropertyFactory(cfg PropertyFactoryConfig) *PropertyFactory {
	names := cfg.Names
	if names == nil {
		names = NewReflectionNameFactory(cfg.Classes, cfg.Logger)
	}
	stages := []PropertyStage{
		ReflectionPropertyStage{Classes: cfg.Classes},
		AttributePropertyStage{Classes: cfg.Classes},
		SerializerPropertyStage{Names: names},
	}
	if cfg.Schema != nil {
		stages = append(stages, SchemaPropertyStage{Schema: cfg.Schema})
	}
	stages = append(stages, DefaultPropertyStage{})
	return NewPropertyFactory(cfg.Classes, stages...)
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// typeOf derives the property type of a Go type
func typeOf(t reflect.Type, classes *ClassRegistry) Type {
	var out Type
	for t.Kind() == reflect.Ptr {
		out.Nullable = true
		t = t.Elem()
	}
	if (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8 {
		elem := typeOf(t.Elem(), classes)
		elem.Collection = true
		if t.Kind() == reflect.Slice {
			elem.Nullable = true
		}
		if elem.Builtin != BuiltinObject {
			elem.Builtin = BuiltinArray
		}
		return elem
	}

	switch {
	case t == timeType:
		out.Builtin = BuiltinTime
		return out
	case t.Kind() == reflect.Struct:
		if name := t.Name(); name != "" {
			if registered, ok := classes.Type(name); ok && registered == t {
				out.Builtin = BuiltinObject
				out.Class = name
				return out
			}
		}
		if reflect.PointerTo(t).Implements(textMarshalerType) {
			out.Builtin = BuiltinString
			return out
		}
		out.Builtin = BuiltinObject
		return out
	case t.Kind() == reflect.Array || t.Implements(textMarshalerType):
		out.Builtin = BuiltinString
		return out
	}

	switch t.Kind() {
	case reflect.String, reflect.Slice:
		out.Builtin = BuiltinString
	case reflect.Bool:
		out.Builtin = BuiltinBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out.Builtin = BuiltinInt
	case reflect.Float32, reflect.Float64:
		out.Builtin = BuiltinFloat
	case reflect.Map, reflect.Interface:
		out.Builtin = BuiltinObject
		out.Nullable = true
	default:
		out.Builtin = BuiltinString
	}
	return out
}
