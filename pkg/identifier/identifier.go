// Package identifier derives a privacy-safe user identity for a target request.
package identifier

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

const Guest = "guest"

const (
	DriverGuest   = "guest"
	DriverSession = "session"
	DriverJwt     = "jwt"
)

// UserIdentifier returns the identity a target request is cached for.
type UserIdentifier interface {
	IdentifierFor(target snapshot.TargetRoute) string
}

// New selects the identifier for an auth driver.
// Unrecognized drivers fall back to the guest identifier.
func New(driver, sessionCookieName string) UserIdentifier {
	switch driver {
	case DriverSession:
		return SessionIdentifier{CookieName: sessionCookieName}
	case DriverJwt:
		return JwtIdentifier{}
	}
	return GuestIdentifier{}
}

type GuestIdentifier struct{}

func (GuestIdentifier) IdentifierFor(snapshot.TargetRoute) string {
	return Guest
}

// JwtIdentifier identifies users by a hash of their Authorization header.
type JwtIdentifier struct{}

func (JwtIdentifier) IdentifierFor(target snapshot.TargetRoute) string {
	token := target.Headers[snapshot.HeaderAuthorization]
	if token == "" {
		return Guest
	}
	return DriverJwt + ":" + hash(token)
}

// SessionIdentifier identifies users by a hash of their session cookie.
type SessionIdentifier struct {
	CookieName string
}

func (s SessionIdentifier) IdentifierFor(target snapshot.TargetRoute) string {
	name, value, ok := snapshot.SessionCookie(target.Cookies[snapshot.SessionCookieKey], s.CookieName)
	if !ok {
		return Guest
	}
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	return DriverSession + ":" + hash(name+"="+value)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
