package query

import (
	"net/http"
	"net/url"
	"strings"
)

// FieldsParameter is the query parameter of sparse fieldsets
const FieldsParameter = "fields"

// ParseNested parses a raw query string with bracket syntax into nested
// values. Keys are kept in the order they appear; a later scalar replaces
// an earlier one.
//
//	a=1         {"a": "1"}
//	a[]=1&a[]=2 {"a": ["1", "2"]}
//	a[b]=1      {"a": {"b": "1"}}
//	a[b][]=1    {"a": {"b": ["1"]}}
//
// Pairs that cannot be unescaped are skipped.
func ParseNested(rawQuery string) map[string]interface{} {
	out := make(map[string]interface{})
	for _, pair := range strings.FieldsFunc(rawQuery, func(r rune) bool { return r == '&' }) {
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil || key == "" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		base, path := splitKey(key)
		set(out, base, path, value)
	}
	return out
}

// ParseRequest parses the query of r with ParseNested
func ParseRequest(r *http.Request) map[string]interface{} {
	return ParseNested(r.URL.RawQuery)
}

// splitKey splits "a[b][]" into "a" and ["b", ""]. A key with unbalanced
// brackets is a plain key.
func splitKey(key string) (string, []string) {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return key, nil
	}
	base, rest := key[:open], key[open:]
	var path []string
	for rest != "" {
		if rest[0] != '[' {
			return key, nil
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return key, nil
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return base, path
}

func set(into map[string]interface{}, key string, path []string, value string) {
	if len(path) == 0 {
		into[key] = value
		return
	}
	if path[0] == "" {
		list, _ := into[key].([]interface{})
		if len(path) == 1 {
			into[key] = append(list, value)
			return
		}
		// a[][b]=1 starts a new element
		elem := make(map[string]interface{})
		set(elem, path[1], path[2:], value)
		into[key] = append(list, elem)
		return
	}
	sub, ok := into[key].(map[string]interface{})
	if !ok {
		sub = make(map[string]interface{})
		into[key] = sub
	}
	set(sub, path[0], path[1:], value)
}

// ParseFields reads sparse fieldsets from parsed query values.
// Example: fields[Book]=title,author gives {"Book": ["title", "author"]}.
// A present but empty list keeps the type with no fields.
func ParseFields(params map[string]interface{}) map[string][]string {
	result := make(map[string][]string)
	fields, ok := params[FieldsParameter].(map[string]interface{})
	if !ok {
		return result
	}
	for typeName, raw := range fields {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		list := make([]string, 0)
		for _, field := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(field); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		result[typeName] = list
	}
	return result
}
