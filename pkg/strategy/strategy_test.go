package strategy

import (
	"errors"
	"reflect"
	"testing"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

var (
	noReq = snapshot.RequestSnapshot{}
	noRes = snapshot.ResponseSnapshot{}
)

func TestResolveUnknownStrategy(t *testing.T) {
	_, err := DefaultRegistry().Resolve("does_not_exist")
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("Expected unknown strategy error, got %v", err)
	}
}

func TestResolveInvalidStrategy(t *testing.T) {
	r := NewRegistry()
	r.Register("not_a_strategy", KindAtomic, func(*Registry) any { return struct{}{} })
	_, err := r.Resolve("not_a_strategy")
	if !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("Expected invalid strategy error, got %v", err)
	}
}

func TestDefaultRegistryKinds(t *testing.T) {
	r := DefaultRegistry()
	if k, _ := r.Kind(ResponsePluck); k != KindComposite {
		t.Fatalf("Kind of %s is %s", ResponsePluck, k)
	}
	if len(r.Names()) != 15 {
		t.Fatalf("Registered strategies: %v", r.Names())
	}
}

func TestMissingOptions(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		strategy string
		option   string
		value    any
	}{
		{ForwardFromQuery, "source_key", nil},
		{ForwardFromRequestValue, "key", nil},
		{FromResponseBody, "position", nil},
		{FromResponseHeader, "header_name", nil},
		{ArrayLimit, "limit: positive integer", []any{1}},
		{ParseSetCookie, "source_key", nil},
		{JwtClaim, "claim", nil},
		{ForwardQueryParam, "source_key", nil},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := r.Resolve(tt.strategy)
			if err != nil {
				t.Fatal(err)
			}
			_, err = s.Handle(noReq, noRes, Options{}, tt.value)
			var missingErr *MissingOptionError
			if !errors.As(err, &missingErr) {
				t.Fatalf("Expected missing option error, got %v", err)
			}
			if missingErr.Strategy != tt.strategy || missingErr.Option != tt.option {
				t.Fatalf("Error carries %s/%s", missingErr.Strategy, missingErr.Option)
			}
			if !errors.Is(err, ErrMissingOption) {
				t.Fatalf("Error does not match ErrMissingOption")
			}
		})
	}
}

func TestAtomicStrategies(t *testing.T) {
	r := DefaultRegistry()
	req := snapshot.RequestSnapshot{QueryParams: map[string]any{"page": "3"}}
	res := snapshot.ResponseSnapshot{
		Content: `{"data":{"id":7,"name":"x","items":[{"id":1},{"id":2},{"name":"no id"}]}}`,
		Headers: snapshot.HeadersData{
			Authorization: "Bearer abc",
			SetCookie:     []string{"XSRF-TOKEN=1; Path=/", "laravel_session=s3cr%3Dt; Path=/; HttpOnly"},
		},
	}
	tests := []struct {
		name     string
		strategy string
		opts     Options
		value    any
		want     any
	}{
		{"query", ForwardFromQuery, Options{"source_key": "page"}, nil, "3"},
		{"query absent", ForwardFromQuery, Options{"source_key": "nope"}, nil, nil},
		{"request value", ForwardFromRequestValue, Options{"key": "page"}, nil, "3"},
		{"body scalar", FromResponseBody, Options{"position": "data.id"}, nil, 7},
		{"body absent", FromResponseBody, Options{"position": "data.missing.id"}, nil, nil},
		{"body wildcard", FromResponseBody, Options{"position": "data.items.*.id"}, nil, []any{1, 2, nil}},
		{"header", FromResponseHeader, Options{"header_name": "authorization"}, nil, "Bearer abc"},
		{"header unset", FromResponseHeader, Options{"header_name": "accept"}, nil, nil},
		{"increment", IncrementValue, Options{"increment": 2}, 3, 5},
		{"increment default", IncrementValue, Options{}, nil, 2},
		{"increment string", IncrementValue, Options{}, "41", 42},
		{"increment non numeric", IncrementValue, Options{}, "abc", 1},
		{"affix", Affix, Options{"prefix": "<", "suffix": ">"}, "v", "<v>"},
		{"affix non string", Affix, Options{"prefix": "<"}, 5, 5},
		{"sort asc", ArraySort, Options{"order": "asc"}, []any{3, nil, 1, 2}, []any{1, 2, 3, nil}},
		{"sort desc", ArraySort, Options{"order": "DESC"}, []any{nil, 1, 3, 2}, []any{3, 2, 1, nil}},
		{"sort no order", ArraySort, Options{}, []any{2, 1}, []any{2, 1}},
		{"sort non list", ArraySort, Options{"order": "asc"}, "x", "x"},
		{"limit", ArrayLimit, Options{"limit": 2}, []any{1, 2, 3}, []any{1, 2}},
		{"limit larger", ArrayLimit, Options{"limit": 5}, []any{1}, []any{1}},
		{"limit non list", ArrayLimit, Options{}, "x", "x"},
		{"set cookie", ParseSetCookie, Options{"source_key": "laravel_session"}, []any{"a=1", "laravel_session=2"}, "laravel_session=2"},
		{"set cookie absent", ParseSetCookie, Options{"source_key": "laravel_session"}, []any{"a=1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Resolve(tt.strategy)
			if err != nil {
				t.Fatal(err)
			}
			got, err := s.Handle(req, res, tt.opts, tt.value)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestArraySortInvalidOrder(t *testing.T) {
	_, err := arraySort{}.Handle(noReq, noRes, Options{"order": "sideways"}, []any{1})
	if !errors.Is(err, ErrMissingOption) {
		t.Fatalf("Expected error for invalid order, got %v", err)
	}
}

func TestArraySortIsStable(t *testing.T) {
	in := []any{2, "2", 1}
	got, err := arraySort{}.Handle(noReq, noRes, Options{"order": "asc"}, in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{1, 2, "2"}) {
		t.Fatalf("Sorted %#v", got)
	}
	if in[0] != 2 {
		t.Fatalf("Input was mutated: %v", in)
	}
}

func TestChainThreadsValue(t *testing.T) {
	r := DefaultRegistry()
	res := snapshot.ResponseSnapshot{Content: `{"count":4}`}
	got, err := r.Run([]Step{
		{Strategy: FromResponseBody, Options: Options{"position": "count"}},
		{Strategy: IncrementValue, Options: Options{"increment": 10}},
		{Strategy: Affix, Options: Options{"prefix": "n"}},
	}, noReq, res)
	if err != nil {
		t.Fatal(err)
	}
	// affix passes the integer through unchanged
	if got != 14 {
		t.Fatalf("Chain result %#v", got)
	}
}

func TestChainAbortsOnError(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Run([]Step{
		{Strategy: Affix},
		{Strategy: FromResponseBody},
		{Strategy: "unknown"},
	}, noReq, noRes)
	if !errors.Is(err, ErrMissingOption) {
		t.Fatalf("Expected missing option error, got %v", err)
	}
}
