package resolver

import "sort"

// Expand returns the cartesian product of params. Scalars are held constant,
// lists contribute one combination per element in their original order.
func Expand(params map[string]any) []map[string]any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	combinations := []map[string]any{{}}
	for _, name := range names {
		values := toList(params[name])
		next := make([]map[string]any, 0, len(combinations)*len(values))
		for _, combination := range combinations {
			for _, value := range values {
				c := make(map[string]any, len(combination)+1)
				for k, v := range combination {
					c[k] = v
				}
				c[name] = value
				next = append(next, c)
			}
		}
		combinations = next
	}
	return combinations
}

func toList(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return list
	}
	return []any{v}
}
