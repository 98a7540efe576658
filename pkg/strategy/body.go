package strategy

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// lookup reads a dot-separated position out of a JSON document.
// A "*" segment maps the rest of the path over every element; nested
// wildcards are flattened one level. Missing paths yield nil.
func lookup(content, position string) any {
	if !gjson.Valid(content) {
		return nil
	}
	return walk(gjson.Parse(content), strings.Split(position, "."))
}

func walk(r gjson.Result, segments []string) any {
	for i, seg := range segments {
		if !r.Exists() {
			return nil
		}
		if seg != "*" {
			r = r.Get(gjson.Escape(seg))
			continue
		}
		if !r.IsArray() && !r.IsObject() {
			return nil
		}
		rest := segments[i+1:]
		out := []any{}
		r.ForEach(func(_, item gjson.Result) bool {
			out = append(out, walk(item, rest))
			return true
		})
		if containsWildcard(rest) {
			return collapse(out)
		}
		return out
	}
	if !r.Exists() {
		return nil
	}
	return toValue(r)
}

func containsWildcard(segments []string) bool {
	for _, seg := range segments {
		if seg == "*" {
			return true
		}
	}
	return false
}

func collapse(lists []any) []any {
	out := []any{}
	for _, l := range lists {
		if inner, ok := l.([]any); ok {
			out = append(out, inner...)
		}
	}
	return out
}

func toValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return r.Str
	case gjson.Number:
		if i, err := strconv.ParseInt(r.Raw, 10, 0); err == nil {
			return int(i)
		}
		return r.Num
	}
	if r.IsArray() {
		list := []any{}
		for _, item := range r.Array() {
			list = append(list, toValue(item))
		}
		return list
	}
	m := map[string]any{}
	r.ForEach(func(k, v gjson.Result) bool {
		m[k.String()] = toValue(v)
		return true
	})
	return m
}

// compare orders numbers numerically and everything else by string form.
func compare(a, b any) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(snapshot.Stringify(a), snapshot.Stringify(b))
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
