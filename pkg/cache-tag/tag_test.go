package cachetag

import (
	"reflect"
	"testing"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"products.show":         "products_show",
		"  Admin--Users..List ": "admin_users_list",
		"__x__":                 "x",
		"":                      Unnamed,
		"   ":                   Unnamed,
		"--":                    Unnamed,
		"jwt:ab12":              "jwt_ab12",
		"Ünïcode":               "n_code",
	}
	for in, want := range tests {
		got := Normalize(in)
		if got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
		if again := Normalize(got); again != got {
			t.Fatalf("Normalize is not idempotent for %q: %q", got, again)
		}
	}
}

func TestGenerate(t *testing.T) {
	tags := NewTagGenerator("demon_dextral_horn").Generate(snapshot.TargetRoute{RouteName: "user.profile"}, "guest")
	want := []string{"demon_dextral_horn", "demon_dextral_horn:user_profile", "guest"}
	if !reflect.DeepEqual(tags, want) {
		t.Fatalf("Tags %v", tags)
	}
}

func TestGenerateDeduplicates(t *testing.T) {
	tags := NewTagGenerator("guest").Generate(snapshot.TargetRoute{RouteName: "guest"}, "guest")
	if !reflect.DeepEqual(tags, []string{"guest", "guest:guest"}) {
		t.Fatalf("Tags %v", tags)
	}
}

func TestRouteTag(t *testing.T) {
	g := NewTagGenerator("demon_dextral_horn")
	if tag := g.RouteTag("Admin--Users.List"); tag != "demon_dextral_horn:admin_users_list" {
		t.Fatalf("Route tag %q", tag)
	}
	if tag := g.RouteTag(""); tag != "demon_dextral_horn:unnamed" {
		t.Fatalf("Route tag %q", tag)
	}
}

func TestMerge(t *testing.T) {
	tags := Merge("d", "", "a", "d", "a")
	if !reflect.DeepEqual(tags, []string{"d", "a"}) {
		t.Fatalf("Tags %v", tags)
	}
}
