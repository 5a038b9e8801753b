package serializer

import (
	"context"
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// ScalarNormalizer is the last link of the chain. It converts times to
// RFC 3339 strings and walks slices, maps and unregistered structs.
type ScalarNormalizer struct {
	delegate
}

// NewScalarNormalizer creates the scalar normalizer
func NewScalarNormalizer() *ScalarNormalizer {
	return &ScalarNormalizer{}
}

// SupportsNormalization implements Normalizer
func (n *ScalarNormalizer) SupportsNormalization(interface{}, string, *Context) bool {
	return true
}

// Normalize implements Normalizer
func (n *ScalarNormalizer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case json.Number, string, bool, []byte:
		return v, nil
	}

	rv := reflect.ValueOf(data)
	if m, ok := data.(encoding.TextMarshaler); ok && rv.Kind() != reflect.Struct && rv.Kind() != reflect.Ptr {
		b, err := m.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return n.nested(ctx, rv.Elem().Interface(), format, sctx)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			item, err := n.nested(ctx, rv.Index(i).Interface(), format, sctx)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return data, nil
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := n.nested(ctx, iter.Value().Interface(), format, sctx)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	case reflect.Struct:
		if m, ok := data.(encoding.TextMarshaler); ok {
			b, err := m.MarshalText()
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		return n.structFields(ctx, rv, format, sctx)
	}
	return data, nil
}

// nested goes back through the chain so registered classes inside plain
// values are normalized as resources
func (n *ScalarNormalizer) nested(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	if n.serializer == nil {
		return n.Normalize(ctx, data, format, sctx)
	}
	return n.serializer.Normalize(ctx, data, format, sctx)
}

func (n *ScalarNormalizer) structFields(ctx context.Context, rv reflect.Value, format string, sctx *Context) (map[string]interface{}, error) {
	t := rv.Type()
	out := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		value, err := n.nested(ctx, rv.Field(i).Interface(), format, sctx)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}
