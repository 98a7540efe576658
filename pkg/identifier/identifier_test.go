package identifier

import (
	"strings"
	"testing"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

func TestNewSelectsDriver(t *testing.T) {
	if _, ok := New("session", "laravel_session").(SessionIdentifier); !ok {
		t.Fatalf("session driver")
	}
	if _, ok := New("jwt", "").(JwtIdentifier); !ok {
		t.Fatalf("jwt driver")
	}
	if _, ok := New("oauth", "").(GuestIdentifier); !ok {
		t.Fatalf("unknown driver should be guest")
	}
}

func TestJwtIdentifier(t *testing.T) {
	id := JwtIdentifier{}
	if got := id.IdentifierFor(snapshot.TargetRoute{}); got != Guest {
		t.Fatalf("No token gave %s", got)
	}
	a := id.IdentifierFor(snapshot.TargetRoute{Headers: map[string]string{"Authorization": "Bearer a"}})
	b := id.IdentifierFor(snapshot.TargetRoute{Headers: map[string]string{"Authorization": "Bearer b"}})
	if !strings.HasPrefix(a, "jwt:") || a == b {
		t.Fatalf("Identifiers %s and %s", a, b)
	}
	if strings.Contains(a, "Bearer") {
		t.Fatalf("Token leaked into identifier %s", a)
	}
}

func TestSessionIdentifier(t *testing.T) {
	id := SessionIdentifier{CookieName: "laravel_session"}
	session := func(raw string) string {
		return id.IdentifierFor(snapshot.TargetRoute{Cookies: map[string]string{snapshot.SessionCookieKey: raw}})
	}
	if got := session(""); got != Guest {
		t.Fatalf("No cookie gave %s", got)
	}
	if got := session("other=1; Path=/"); got != Guest {
		t.Fatalf("Foreign cookie gave %s", got)
	}
	a := session("laravel_session=abc%3D; Path=/; HttpOnly")
	if a != session("laravel_session=abc=") {
		t.Fatalf("Encoded and decoded cookie values differ")
	}
	if session("laravel_session=a+b") != session("laravel_session=a%20b") {
		t.Fatalf("Plus is not decoded as a space")
	}
	if !strings.HasPrefix(a, "session:") || a == session("laravel_session=xyz") {
		t.Fatalf("Identifier %s", a)
	}
}
