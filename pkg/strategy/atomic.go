package strategy

import (
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

type fromQuery struct{}

func (fromQuery) Handle(req snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	key, ok := opts.String("source_key")
	if !ok {
		return nil, missing(ForwardFromQuery, "source_key")
	}
	return req.QueryParams[key], nil
}

type forwardValue struct{}

func (forwardValue) Handle(req snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	key, ok := opts.String("key")
	if !ok {
		return nil, missing(ForwardFromRequestValue, "key")
	}
	value, ok := req.QueryParams[key]
	if !ok {
		return nil, missing(ForwardFromRequestValue, "key")
	}
	return value, nil
}

type fromBody struct{}

func (fromBody) Handle(_ snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	position, ok := opts.String("position")
	if !ok {
		return nil, missing(FromResponseBody, "position")
	}
	return lookup(res.Content, position), nil
}

type fromHeader struct{}

func (fromHeader) Handle(_ snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	name, ok := opts.String("header_name")
	if !ok {
		return nil, missing(FromResponseHeader, "header_name")
	}
	return res.Headers.Field(name), nil
}

type increment struct{}

func (increment) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	by := opts.Int("increment", 1)
	if value == nil {
		value = opts.Int("default", 1)
	}
	return toInt(value) + by, nil
}

type affix struct{}

func (affix) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	prefix, _ := opts.String("prefix")
	suffix, _ := opts.String("suffix")
	return prefix + s + suffix, nil
}

const (
	orderAsc  = "asc"
	orderDesc = "desc"
)

type arraySort struct{}

func (arraySort) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	order, _ := opts.String("order")
	order = strings.ToLower(order)
	list, isList := asList(value)
	if !isList || order == "" {
		return value, nil
	}
	if order != orderAsc && order != orderDesc {
		return nil, missing(ArraySort, "order:asc|desc")
	}
	sorted := make([]any, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		if order == orderDesc {
			return compare(a, b) > 0
		}
		return compare(a, b) < 0
	})
	return sorted, nil
}

type arrayLimit struct{}

func (arrayLimit) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	list, isList := asList(value)
	if !isList {
		return value, nil
	}
	limit := opts.Int("limit", 0)
	if limit <= 0 {
		return nil, missing(ArrayLimit, "limit: positive integer")
	}
	if limit > len(list) {
		limit = len(list)
	}
	return list[:limit], nil
}

type parseSetCookie struct{}

func (parseSetCookie) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	key, ok := opts.String("source_key")
	if !ok {
		return nil, missing(ParseSetCookie, "source_key")
	}
	entries, _ := asList(value)
	for _, entry := range entries {
		if s, ok := entry.(string); ok && strings.Contains(s, key) {
			return s, nil
		}
	}
	return nil, nil
}

type jwtClaim struct{}

// Handle reads a claim out of the token held in value. The signature is not
// verified; the token only feeds request parameters.
func (jwtClaim) Handle(_ snapshot.RequestSnapshot, _ snapshot.ResponseSnapshot, opts Options, value any) (any, error) {
	claim, ok := opts.String("claim")
	if !ok {
		return nil, missing(JwtClaim, "claim")
	}
	token, ok := value.(string)
	if !ok {
		return nil, nil
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, nil
	}
	return claims[claim], nil
}
