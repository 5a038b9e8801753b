package state

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// Column is one column value read from an item
type Column struct {
	Name    string
	Value   interface{}
	Primary bool
}

// binding maps one column onto a struct field
type binding struct {
	column  string
	index   []int
	primary bool
	// refIndex is the identifier field of the target struct when the column
	// is the foreign key of a to-one association held as a struct
	refIndex []int
}

type plan struct {
	resource *schema.ResourceSchema
	typ      reflect.Type
	columns  []binding
	pk       *binding
}

// Hydrator maps rows onto registered struct types through the persistence
// mapping: columns of fields go to the property of the same name and
// foreign keys of belongs_to associations become identifier-only values of
// the target class.
type Hydrator struct {
	classes    *metadata.ClassRegistry
	properties metadata.PropertyMetadataFactory
	registry   *schema.Registry

	plans sync.Map // class -> *plan
}

// NewHydrator creates a hydrator
func NewHydrator(classes *metadata.ClassRegistry, properties metadata.PropertyMetadataFactory, registry *schema.Registry) *Hydrator {
	return &Hydrator{classes: classes, properties: properties, registry: registry}
}

func (h *Hydrator) plan(ctx context.Context, class string) (*plan, error) {
	if cached, ok := h.plans.Load(class); ok {
		return cached.(*plan), nil
	}

	t, ok := h.classes.Type(class)
	if !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}
	resource, ok := h.registry.Get(class)
	if !ok {
		return nil, apierr.Configuration("class %s has no persistence mapping", class)
	}

	pl := &plan{resource: resource, typ: t}
	for _, name := range resource.FieldNames() {
		f := resource.Fields[name]
		p, err := h.properties.Create(ctx, class, name, metadata.PropertyOptions{})
		if err != nil {
			continue
		}
		pl.columns = append(pl.columns, binding{column: f.ColumnName(), index: p.FieldIndex, primary: f.IsPrimary()})
	}
	for _, name := range resource.RelationshipNames() {
		rel := resource.Relationships[name]
		if rel.Type != schema.RelationshipBelongsTo {
			continue
		}
		p, err := h.properties.Create(ctx, class, name, metadata.PropertyOptions{})
		if err != nil {
			continue
		}
		b := binding{column: rel.ForeignKeyColumn(resource.Name), index: p.FieldIndex}
		if _, isRef := p.RelatedClass(); isRef {
			refIndex, err := h.identifierIndex(ctx, rel.TargetResource)
			if err != nil {
				return nil, err
			}
			b.refIndex = refIndex
		}
		pl.columns = append(pl.columns, b)
	}
	for i := range pl.columns {
		if pl.columns[i].primary {
			pl.pk = &pl.columns[i]
			break
		}
	}

	actual, _ := h.plans.LoadOrStore(class, pl)
	return actual.(*plan), nil
}

// identifierIndex returns the field index of the primary key of class
func (h *Hydrator) identifierIndex(ctx context.Context, class string) ([]int, error) {
	pk, err := h.registry.Identifier(class)
	if err != nil {
		return nil, apierr.Configuration("association target %s: %v", class, err)
	}
	p, err := h.properties.Create(ctx, class, pk.Name, metadata.PropertyOptions{})
	if err != nil {
		return nil, err
	}
	return p.FieldIndex, nil
}

// Hydrate builds a new value of class from a row keyed by column. The
// result is a pointer to the struct.
func (h *Hydrator) Hydrate(ctx context.Context, class string, row map[string]interface{}) (interface{}, error) {
	pl, err := h.plan(ctx, class)
	if err != nil {
		return nil, err
	}
	v := reflect.New(pl.typ)
	if err := h.fill(pl, v.Elem(), row); err != nil {
		return nil, fmt.Errorf("hydrating %s: %w", class, err)
	}
	return v.Interface(), nil
}

// HydrateAll hydrates every row
func (h *Hydrator) HydrateAll(ctx context.Context, class string, rows []map[string]interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		item, err := h.Hydrate(ctx, class, row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Refresh overwrites the mapped fields of item with row
func (h *Hydrator) Refresh(ctx context.Context, class string, item interface{}, row map[string]interface{}) error {
	pl, err := h.plan(ctx, class)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(item)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Type() != pl.typ {
		return fmt.Errorf("cannot refresh %T as %s", item, class)
	}
	if err := h.fill(pl, v.Elem(), row); err != nil {
		return fmt.Errorf("hydrating %s: %w", class, err)
	}
	return nil
}

func (h *Hydrator) fill(pl *plan, elem reflect.Value, row map[string]interface{}) error {
	for _, b := range pl.columns {
		raw, ok := row[b.column]
		if !ok {
			continue
		}
		dst := fieldAlloc(elem, b.index)
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			continue
		}
		if b.refIndex != nil {
			if err := assignRef(dst, b.refIndex, raw); err != nil {
				return fmt.Errorf("column %s: %w", b.column, err)
			}
			continue
		}
		if err := assign(dst, raw); err != nil {
			return fmt.Errorf("column %s: %w", b.column, err)
		}
	}
	return nil
}

// Columns reads the mapped column values of item in mapping order
func (h *Hydrator) Columns(ctx context.Context, class string, item interface{}) ([]Column, error) {
	pl, err := h.plan(ctx, class)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot read columns of a nil %s", class)
		}
		v = v.Elem()
	}
	if v.Type() != pl.typ {
		return nil, fmt.Errorf("cannot read %T as %s", item, class)
	}

	out := make([]Column, 0, len(pl.columns))
	for _, b := range pl.columns {
		field, ok := fieldRead(v, b.index)
		var value interface{}
		if ok {
			if b.refIndex != nil {
				if ref, ok := fieldRead(field, b.refIndex); ok {
					value = columnValue(ref)
				}
			} else {
				value = columnValue(field)
			}
		}
		out = append(out, Column{Name: b.column, Value: value, Primary: b.primary})
	}
	return out, nil
}

// PrimaryKey returns the primary key column of class
func (h *Hydrator) PrimaryKey(ctx context.Context, class string) (string, error) {
	pl, err := h.plan(ctx, class)
	if err != nil {
		return "", err
	}
	if pl.pk == nil {
		return "", apierr.Configuration("class %s has no mapped primary key", class)
	}
	return pl.pk.column, nil
}

// Table returns the table of class
func (h *Hydrator) Table(ctx context.Context, class string) (string, error) {
	pl, err := h.plan(ctx, class)
	if err != nil {
		return "", err
	}
	return pl.resource.TableName, nil
}

// fieldAlloc walks index, allocating nil embedded pointers
func fieldAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// fieldRead walks index and dereferences the result. It reports false when
// a nil pointer is in the way.
func fieldRead(v reflect.Value, index []int) (reflect.Value, bool) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}, false
	}
	for f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return reflect.Value{}, false
		}
		f = f.Elem()
	}
	return f, true
}

func columnValue(v reflect.Value) interface{} {
	if v.IsZero() {
		return v.Interface()
	}
	if m, ok := v.Interface().(encoding.TextMarshaler); ok && v.Kind() != reflect.Struct {
		if b, err := m.MarshalText(); err == nil {
			return string(b)
		}
	}
	return v.Interface()
}

// assignRef sets dst, a struct or pointer to struct, to a value holding
// only its identifier
func assignRef(dst reflect.Value, refIndex []int, raw interface{}) error {
	target := dst.Type()
	if target.Kind() == reflect.Ptr {
		ref := reflect.New(target.Elem())
		if err := assign(fieldAlloc(ref.Elem(), refIndex), raw); err != nil {
			return err
		}
		dst.Set(ref)
		return nil
	}
	return assign(fieldAlloc(dst, refIndex), raw)
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// assign converts a scanned column value into dst
func assign(dst reflect.Value, raw interface{}) error {
	if dst.Kind() == reflect.Ptr {
		v := reflect.New(dst.Type().Elem())
		if err := assign(v.Elem(), raw); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}

	src := reflect.ValueOf(raw)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	if dst.Type() == timeType {
		switch t := raw.(type) {
		case time.Time:
			dst.Set(reflect.ValueOf(t))
			return nil
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					dst.Set(reflect.ValueOf(parsed))
					return nil
				}
			}
			return fmt.Errorf("cannot parse time %q", t)
		}
	}
	if s, ok := raw.(string); ok && reflect.PointerTo(dst.Type()).Implements(textUnmarshalerType) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch dst.Kind() {
	case reflect.String:
		switch v := raw.(type) {
		case string:
			dst.SetString(v)
		default:
			dst.SetString(fmt.Sprint(v))
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := raw.(type) {
		case int64:
			dst.SetInt(v)
		case float64:
			dst.SetInt(int64(v))
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("cannot parse integer %q", v)
			}
			dst.SetInt(n)
		default:
			return convert(dst, raw)
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch v := raw.(type) {
		case int64:
			dst.SetUint(uint64(v))
		case string:
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("cannot parse unsigned integer %q", v)
			}
			dst.SetUint(n)
		default:
			return convert(dst, raw)
		}
		return nil
	case reflect.Float32, reflect.Float64:
		switch v := raw.(type) {
		case float64:
			dst.SetFloat(v)
		case int64:
			dst.SetFloat(float64(v))
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("cannot parse number %q", v)
			}
			dst.SetFloat(n)
		default:
			return convert(dst, raw)
		}
		return nil
	case reflect.Bool:
		switch v := raw.(type) {
		case bool:
			dst.SetBool(v)
		case int64:
			dst.SetBool(v != 0)
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("cannot parse boolean %q", v)
			}
			dst.SetBool(b)
		default:
			return convert(dst, raw)
		}
		return nil
	}
	return convert(dst, raw)
}

func convert(dst reflect.Value, raw interface{}) error {
	src := reflect.ValueOf(raw)
	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", raw, dst.Type())
}
