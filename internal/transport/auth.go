package transport

import (
	"net/http"
	"strings"
)

// Authenticator applies the session credential to outgoing requests.
type Authenticator interface {
	Apply(req *http.Request, token string)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request, _ string) {}

// BearerAuth sends the token as a Bearer authorization header.
type BearerAuth struct{}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// HeaderAuth sends the token verbatim in a custom header.
type HeaderAuth struct {
	Header string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request, token string) {
	req.Header.Set(a.Header, token)
}

// CookieAuth sends the token as a session cookie.
type CookieAuth struct {
	Name string
}

// Apply implements the Authenticator interface for CookieAuth.
func (a *CookieAuth) Apply(req *http.Request, token string) {
	req.AddCookie(&http.Cookie{Name: a.Name, Value: token})
}

// AuthenticatorFor returns the authenticator for a scheme name:
// "bearer" (default), "cookie:<name>", "header:<name>" or "none".
func AuthenticatorFor(scheme string) Authenticator {
	if name, ok := strings.CutPrefix(scheme, "cookie:"); ok && name != "" {
		return &CookieAuth{Name: name}
	}
	if name, ok := strings.CutPrefix(scheme, "header:"); ok && name != "" {
		return &HeaderAuth{Header: name}
	}
	if scheme == "none" {
		return &NoAuth{}
	}
	return &BearerAuth{}
}
