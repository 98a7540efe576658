package cachekey

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

const prefixSeparator = ":"

type CacheKeyer struct {
	// Prefix namespaces every key, e.g. demon_dextral_horn.
	Prefix string
}

func NewCacheKeyer(prefix string) CacheKeyer {
	return CacheKeyer{Prefix: prefix}
}

// components are encoded in field order.
type components struct {
	UserIdentifier string            `json:"user_identifier"`
	RouteName      string            `json:"route_name"`
	Method         string            `json:"method"`
	RouteParams    map[string]string `json:"route_params"`
	QueryParams    any               `json:"query_params"`
	AcceptLanguage *string           `json:"accept_language"`
}

// Generate returns prefix:xxh128(canonical JSON of the target identity).
// Inputs are not modified.
func (c CacheKeyer) Generate(target snapshot.TargetRoute, userIdentifier string) (string, error) {
	kc := components{
		UserIdentifier: userIdentifier,
		RouteName:      target.RouteName,
		Method:         strings.ToLower(target.Method),
		RouteParams:    normalizeRouteParams(target.RouteParams),
		QueryParams:    normalizeQuery(target.QueryParams),
	}
	if al, ok := target.Headers[snapshot.HeaderAcceptLanguage]; ok {
		kc.AcceptLanguage = &al
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(kc); err != nil {
		return "", err
	}
	sum := xxh3.Hash128(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))).Bytes()
	return c.Prefix + prefixSeparator + hex.EncodeToString(sum[:]), nil
}

// normalizeRouteParams stringifies every value so 2 and "2" key identically.
func normalizeRouteParams(params map[string]any) map[string]string {
	normalized := make(map[string]string, len(params))
	for k, v := range params {
		normalized[k] = snapshot.Stringify(v)
	}
	return normalized
}

// normalizeQuery returns a copy of v with lists sorted by value, maps ordered
// by key (the encoder sorts map keys) and "" replaced by nil at every depth.
func normalizeQuery(v any) any {
	switch val := v.(type) {
	case map[string]any:
		normalized := make(map[string]any, len(val))
		for k, child := range val {
			normalized[k] = normalizeQuery(child)
		}
		return normalized
	case []any:
		normalized := make([]any, len(val))
		for i, child := range val {
			normalized[i] = normalizeQuery(child)
		}
		sort.SliceStable(normalized, func(i, j int) bool {
			return less(normalized[i], normalized[j])
		})
		return normalized
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return normalizeQuery(list)
	case string:
		if val == "" {
			return nil
		}
	case nil:
		return nil
	}
	return v
}

// rank orders values of different types: nil, bools, numbers, strings, the rest.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int64, float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func less(a, b any) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch av := a.(type) {
	case bool:
		return !av && b.(bool)
	case string:
		return av < b.(string)
	case int, int64, float64:
		return number(a) < number(b)
	case nil:
		return false
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) < string(jb)
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
