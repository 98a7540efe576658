// Package strategy holds the composable value derivations used to build
// prefetch target requests out of a trigger request/response pair.
package strategy

import (
	"strconv"
	"strings"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Kind classifies a strategy.
type Kind string

const (
	KindSource    Kind = "source"
	KindTransform Kind = "transform"
	KindAtomic    Kind = "atomic"
	KindComposite Kind = "composite"
)

// Built-in strategy identifiers.
const (
	ForwardFromQuery        = "forward_from_query"
	ForwardFromRequestValue = "forward_from_request_value"
	FromResponseBody        = "from_response_body"
	FromResponseHeader      = "from_response_header"
	IncrementValue          = "increment_value"
	Affix                   = "affix"
	ArraySort               = "array_sort"
	ArrayLimit              = "array_limit"
	ParseSetCookie          = "parse_set_cookie"
	JwtClaim                = "jwt_claim"

	ForwardQueryParam      = "forward_query_param"
	IncrementQueryParam    = "increment_query_param"
	ResponseJwtToken       = "response_jwt_token"
	ForwardSetCookieHeader = "forward_set_cookie_header"
	ResponsePluck          = "response_pluck"
)

// Strategy derives a value from the trigger pair, its options and the value
// produced by the previous step of a chain (nil for the first step).
type Strategy interface {
	Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, value any) (any, error)
}

// Step is one configured strategy invocation.
type Step struct {
	Strategy string  `yaml:"strategy" json:"strategy"`
	Options  Options `yaml:"options,omitempty" json:"options,omitempty"`
}

// Options are the free-form settings of a step.
type Options map[string]any

// Has reports whether key is set to a non-nil value.
func (o Options) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// String returns the option as a string.
func (o Options) String(key string) (string, bool) {
	if !o.Has(key) {
		return "", false
	}
	return snapshot.Stringify(o[key]), true
}

// Int returns the option coerced to an int, or def when unset.
func (o Options) Int(key string, def int) int {
	if !o.Has(key) {
		return def
	}
	return toInt(o[key])
}

// toInt coerces scalars to int: numbers are truncated, strings use their
// leading integer part, anything else is 0.
func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case int64:
		return int(val)
	case uint:
		return int(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case uint64:
		return int(val)
	case float32:
		return int(val)
	case float64:
		return int(val)
	case bool:
		if val {
			return 1
		}
	case string:
		s := strings.TrimSpace(val)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
			end++
		}
		if i, err := strconv.Atoi(s[:end]); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	}
	return 0
}

// asList returns v as a list when it is one.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return list, true
	}
	return nil, false
}
