package serializer

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// ItemDenormalizer writes decoded payloads into registered classes.
// Associations accept IRIs, and nested documents when the property is a
// writable link. JSON:API documents are unwrapped first.
type ItemDenormalizer struct {
	objects
}

// NewItemDenormalizer creates the denormalizer
func NewItemDenormalizer(cfg Config) *ItemDenormalizer {
	return &ItemDenormalizer{objects: objects{cfg: cfg}}
}

// SupportsDenormalization implements Denormalizer
func (d *ItemDenormalizer) SupportsDenormalization(data interface{}, class, _ string) bool {
	if _, ok := data.(map[string]interface{}); !ok {
		return false
	}
	_, ok := d.cfg.Classes.Type(class)
	return ok
}

// Denormalize implements Denormalizer. It returns a pointer to the item,
// ObjectToPopulate when set.
func (d *ItemDenormalizer) Denormalize(ctx context.Context, data interface{}, class, format string, sctx *Context) (interface{}, error) {
	payload := data.(map[string]interface{})
	if format == metadata.FormatJSONAPI && sctx.IsRoot() {
		var err error
		if payload, err = unwrapJSONAPI(payload); err != nil {
			return nil, err
		}
	}

	target, creating, err := d.target(class, sctx)
	if err != nil {
		return nil, err
	}

	names, err := d.cfg.Names.Create(ctx, class, metadata.PropertyOptions{SerializerGroups: sctx.Groups})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, name := range names {
		known[name] = true
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if strings.HasPrefix(key, "@") || key == "_id" {
			continue
		}
		prop, err := d.writable(ctx, class, key, known[key], sctx)
		if err != nil {
			return nil, err
		}
		if prop == nil {
			continue
		}
		if prop.IsIdentifier() && !creating {
			continue
		}
		field := fieldAlloc(target.Elem(), prop.FieldIndex)
		if err := d.set(ctx, class, key, prop, field, payload[key], format, sctx); err != nil {
			return nil, err
		}
	}

	if creating {
		for _, name := range names {
			if _, present := payload[name]; present {
				continue
			}
			prop, err := d.cfg.Properties.Create(ctx, class, name, metadata.PropertyOptions{DenormalizationGroups: sctx.Groups})
			if err != nil {
				return nil, err
			}
			if prop.IsRequired() && prop.IsWritable() {
				return nil, apierr.NotNormalizableValue(class, name, "the %q attribute of %s is required", name, class)
			}
		}
	}
	return target.Interface(), nil
}

// target returns the item to write into and whether it is new. Updating
// without an item to populate means the identifier is missing.
func (d *ItemDenormalizer) target(class string, sctx *Context) (reflect.Value, bool, error) {
	if sctx.ObjectToPopulate != nil {
		v := reflect.ValueOf(sctx.ObjectToPopulate)
		if t, ok := d.cfg.Classes.Type(class); !ok || v.Kind() != reflect.Ptr || v.Elem().Type() != t {
			return reflect.Value{}, false, fmt.Errorf("cannot populate %T as %s", sctx.ObjectToPopulate, class)
		}
		return v, false, nil
	}
	if sctx.IsRoot() && sctx.Operation != nil {
		switch sctx.Operation.Operation.Kind {
		case metadata.KindPut, metadata.KindPatch:
			return reflect.Value{}, false, apierr.NotNormalizableValue(class, "", "the identifier of the %s to update is missing", class)
		}
	}
	v, err := d.cfg.Classes.New(class)
	if err != nil {
		return reflect.Value{}, false, apierr.ResourceClassNotFound(class)
	}
	return v, true, nil
}

// writable returns the metadata of a writable property, or nil when the
// key is ignored
func (d *ItemDenormalizer) writable(ctx context.Context, class, key string, known bool, sctx *Context) (*metadata.Property, error) {
	if !known {
		if sctx.RejectExtraAttributes {
			return nil, apierr.InvalidAttribute(class, key, "extra attribute %q is not allowed on %s", key, class)
		}
		d.cfg.Logger.Debug("ignoring unknown attribute", zap.String("class", class), zap.String("attribute", key))
		return nil, nil
	}
	prop, err := d.cfg.Properties.Create(ctx, class, key, metadata.PropertyOptions{DenormalizationGroups: sctx.Groups})
	if err != nil {
		return nil, err
	}
	if !prop.IsWritable() {
		if sctx.RejectExtraAttributes {
			return nil, apierr.InvalidAttribute(class, key, "attribute %q of %s is not writable", key, class)
		}
		return nil, nil
	}
	return prop, nil
}

func (d *ItemDenormalizer) set(ctx context.Context, class, key string, prop *metadata.Property, field reflect.Value, raw interface{}, format string, sctx *Context) error {
	related, isRelation := prop.RelatedClass()
	if isRelation {
		if _, ok := d.cfg.Index.ItemOperation(related); !ok {
			isRelation = false
		}
	}
	if !isRelation {
		if err := assignJSON(field, raw); err != nil {
			return apierr.NotNormalizableValue(class, key, "the type of the %q attribute must be %q, %s given", key, builtinName(prop), jsonTypeName(raw))
		}
		return nil
	}

	if raw == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if prop.Type().Collection {
		list, ok := raw.([]interface{})
		if !ok || field.Kind() != reflect.Slice {
			return apierr.InvalidAttribute(class, key, "expected a list of IRIs or nested documents for attribute %q, %s given", key, jsonTypeName(raw))
		}
		out := reflect.MakeSlice(field.Type(), 0, len(list))
		for _, elem := range list {
			v, err := d.relation(ctx, class, key, related, prop, field.Type().Elem(), elem, format, sctx)
			if err != nil {
				return err
			}
			out = reflect.Append(out, v)
		}
		field.Set(out)
		return nil
	}
	v, err := d.relation(ctx, class, key, related, prop, field.Type(), raw, format, sctx)
	if err != nil {
		return err
	}
	field.Set(v)
	return nil
}

// relation resolves one related value: an IRI string is loaded, a nested
// document is denormalized when the property is a writable link
func (d *ItemDenormalizer) relation(ctx context.Context, class, key, related string, prop *metadata.Property, typ reflect.Type, raw interface{}, format string, sctx *Context) (reflect.Value, error) {
	switch v := raw.(type) {
	case string:
		item, err := d.cfg.IRIs.ItemFromIRI(ctx, v)
		if err != nil {
			if errors.Is(err, apierr.ErrItemNotFound) {
				return reflect.Value{}, apierr.InvalidAttribute(class, key, "invalid IRI %q for attribute %q of %s", v, key, class)
			}
			return reflect.Value{}, err
		}
		return fitPointer(reflect.ValueOf(item), typ)

	case map[string]interface{}:
		if !prop.IsWritableLink() {
			return reflect.Value{}, apierr.InvalidAttribute(class, key, "nested documents for attribute %q of %s are not allowed, use IRIs instead", key, class)
		}
		nested := sctx.child(related)
		if id, ok := v["@id"].(string); ok {
			existing, err := d.cfg.IRIs.ItemFromIRI(ctx, id)
			if err != nil {
				if errors.Is(err, apierr.ErrItemNotFound) {
					return reflect.Value{}, apierr.InvalidAttribute(class, key, "invalid IRI %q for attribute %q of %s", id, key, class)
				}
				return reflect.Value{}, err
			}
			nested.ObjectToPopulate = existing
		}
		item, err := d.serializer.Denormalize(ctx, v, related, format, nested)
		if err != nil {
			return reflect.Value{}, err
		}
		return fitPointer(reflect.ValueOf(item), typ)
	}
	return reflect.Value{}, apierr.InvalidAttribute(class, key, "expected an IRI or a nested document for attribute %q of %s, %s given", key, class, jsonTypeName(raw))
}

// fitPointer adapts a pointer to a struct to typ, the struct or a pointer
// to it
func fitPointer(v reflect.Value, typ reflect.Type) (reflect.Value, error) {
	if v.Type().AssignableTo(typ) {
		return v, nil
	}
	if v.Kind() == reflect.Ptr && v.Elem().Type().AssignableTo(typ) {
		return v.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", v.Type(), typ)
}

// unwrapJSONAPI flattens {"data": {"attributes": ..., "relationships": ...}}
// into one payload. Relationship linkage becomes the related IRIs.
func unwrapJSONAPI(doc map[string]interface{}) (map[string]interface{}, error) {
	data, ok := doc["data"].(map[string]interface{})
	if !ok {
		return nil, apierr.InvalidArgument("the request body must hold a JSON:API resource object under \"data\"")
	}
	out := map[string]interface{}{}
	if attrs, ok := data["attributes"].(map[string]interface{}); ok {
		for k, v := range attrs {
			out[k] = v
		}
	}
	rels, _ := data["relationships"].(map[string]interface{})
	for name, raw := range rels {
		rel, ok := raw.(map[string]interface{})
		if !ok {
			return nil, apierr.InvalidArgument("relationship %q must be an object", name)
		}
		switch linkage := rel["data"].(type) {
		case nil:
			out[name] = nil
		case map[string]interface{}:
			out[name] = linkage["id"]
		case []interface{}:
			ids := make([]interface{}, 0, len(linkage))
			for _, l := range linkage {
				if m, ok := l.(map[string]interface{}); ok {
					ids = append(ids, m["id"])
				}
			}
			out[name] = ids
		default:
			return nil, apierr.InvalidArgument("relationship %q has malformed linkage", name)
		}
	}
	return out, nil
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// assignJSON sets dst from a decoded JSON value
func assignJSON(dst reflect.Value, raw interface{}) error {
	if raw == nil {
		switch dst.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return errors.New("null given")
	}
	if dst.Kind() == reflect.Ptr {
		v := reflect.New(dst.Type().Elem())
		if err := assignJSON(v.Elem(), raw); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}

	if dst.Type() == timeType {
		s, ok := raw.(string)
		if !ok {
			return errors.New("expected a date string")
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return fmt.Errorf("cannot parse date %q", s)
	}
	if s, ok := raw.(string); ok && reflect.PointerTo(dst.Type()).Implements(textUnmarshalerType) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch dst.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return errors.New("expected a string")
		}
		dst.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return errors.New("expected a boolean")
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := integer(raw)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := integer(raw)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := float(raw)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.Interface:
		dst.Set(reflect.ValueOf(raw))
	case reflect.Slice:
		list, ok := raw.([]interface{})
		if !ok {
			return errors.New("expected a list")
		}
		out := reflect.MakeSlice(dst.Type(), len(list), len(list))
		for i, item := range list {
			if err := assignJSON(out.Index(i), item); err != nil {
				return err
			}
		}
		dst.Set(out)
	default:
		// maps and value structs go through encoding/json
		b, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst.Addr().Interface())
	}
	return nil
}

func integer(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	}
	return 0, errors.New("expected an integer")
}

func float(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	}
	return 0, errors.New("expected a number")
}

func builtinName(p *metadata.Property) string {
	if b := p.Type().Builtin; b != "" {
		return b
	}
	return "unknown"
}

// jsonTypeName names the JSON type of a decoded value
func jsonTypeName(raw interface{}) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", raw)
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
