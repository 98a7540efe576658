package snapshot

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ParseQuery turns url.Values into nested params.
// "a[]=1&a[]=2" and repeated keys become lists, "a[b]=1" becomes a map,
// maps keyed 0..n-1 become lists.
func ParseQuery(values url.Values) map[string]any {
	params := map[string]any{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, path := splitQueryKey(k)
		for _, v := range values[k] {
			insertQueryValue(params, name, path, v, len(values[k]) > 1)
		}
	}
	for k, v := range params {
		params[k] = listify(v)
	}
	return params
}

func splitQueryKey(key string) (string, []string) {
	i := strings.IndexByte(key, '[')
	if i <= 0 || !strings.HasSuffix(key, "]") {
		return key, nil
	}
	name := key[:i]
	inner := strings.TrimSuffix(key[i+1:], "]")
	return name, strings.Split(inner, "][")
}

func insertQueryValue(m map[string]any, name string, path []string, value string, repeated bool) {
	if len(path) == 0 {
		if repeated {
			list, _ := m[name].([]any)
			m[name] = append(list, value)
		} else {
			m[name] = value
		}
		return
	}
	if path[0] == "" {
		list, _ := m[name].([]any)
		m[name] = append(list, value)
		return
	}
	child, ok := m[name].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[name] = child
	}
	insertQueryValue(child, path[0], path[1:], value, repeated)
}

func listify(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = listify(child)
		}
		if len(val) == 0 {
			return val
		}
		list := make([]any, len(val))
		for k, child := range val {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(val) || strconv.Itoa(i) != k {
				return val
			}
			list[i] = child
		}
		return list
	case []any:
		for i, child := range val {
			val[i] = listify(child)
		}
	}
	return v
}

// EncodeQuery builds a query string from nested params, with sorted keys
// and lists encoded by index (a[0]=x).
func EncodeQuery(params map[string]any) string {
	values := url.Values{}
	for k, v := range params {
		flattenQuery(values, k, v)
	}
	return values.Encode()
}

func flattenQuery(values url.Values, prefix string, v any) {
	switch val := v.(type) {
	case nil:
		values.Add(prefix, "")
	case map[string]any:
		for k, child := range val {
			flattenQuery(values, prefix+"["+k+"]", child)
		}
	case []any:
		for i, child := range val {
			flattenQuery(values, prefix+"["+strconv.Itoa(i)+"]", child)
		}
	case []string:
		for i, child := range val {
			values.Add(prefix+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		values.Add(prefix, Stringify(val))
	}
}

// CanonicalQuery returns params in the shape a route sees after they went
// through a URL: every scalar becomes a string.
func CanonicalQuery(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{}
	}
	parsed, err := url.ParseQuery(EncodeQuery(params))
	if err != nil {
		return params
	}
	return ParseQuery(parsed)
}

// Stringify renders a scalar the way it appears in a URL.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
