// Package guard implements the same-origin and double-submit CSRF checks
// applied to every state-changing request, plus the host helpers they need.
package guard

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// CSRFCookie holds the double-submit token. It is readable by page scripts.
const CSRFCookie = "ATLASBAHAMAS_CSRF"

// CSRFField is the form field (and X-CSRF-Token header) carrying the token.
const CSRFField = "csrf_token"

// Messages shown for rejected requests.
const (
	TokenMessage  = "Security token missing or invalid. Refresh the page and try again."
	OriginMessage = "Cross-site request blocked."
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,120}$`)

// exemptPaths skip the double-submit check; they run before a session exists.
var exemptPaths = map[string]bool{
	"/login":    true,
	"/register": true,
	"/forgot":   true,
	"/reset":    true,
}

// Verdict is the outcome of Check.
type Verdict int

const (
	Pass Verdict = iota
	BadOrigin
	BadToken
)

// Guard checks origin and CSRF tokens.
type Guard struct {
	Hosts        Hosts
	CookieSecure bool
}

// ValidToken reports whether v has the shape of an issued token.
func ValidToken(v string) bool {
	return tokenPattern.MatchString(v)
}

// SameOrigin compares the Origin (else Referer) host with the safe request
// host. With neither header the request passes only on a local host.
func (g *Guard) SameOrigin(r *http.Request) bool {
	host := g.Hosts.SafeHost(r)
	for _, h := range []string{"Origin", "Referer"} {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, host)
	}
	return IsLocalHost(host)
}

// TokenOK compares the CSRF cookie against the submitted form field or
// header in constant time.
func TokenOK(r *http.Request) bool {
	c, err := r.Cookie(CSRFCookie)
	if err != nil || !ValidToken(c.Value) {
		return false
	}
	submitted := strings.TrimSpace(r.PostFormValue(CSRFField))
	if submitted == "" {
		submitted = strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	}
	if !ValidToken(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(submitted)) == 1
}

// Check runs the origin check for every request and the token check for
// authenticated requests on non-exempt paths. The form must already be parsed.
func (g *Guard) Check(r *http.Request, authenticated bool) Verdict {
	if !g.SameOrigin(r) {
		return BadOrigin
	}
	if authenticated && !exemptPaths[r.URL.Path] && !TokenOK(r) {
		return BadToken
	}
	return Pass
}

// EnsureToken returns the request's CSRF token, issuing a new cookie when
// the current one is missing or malformed.
func (g *Guard) EnsureToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CSRFCookie); err == nil && ValidToken(c.Value) {
		return c.Value
	}
	tok := NewToken()
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    tok,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Secure:   g.SecureCookies(r),
	})
	return tok
}

// ClearToken expires the CSRF cookie.
func (g *Guard) ClearToken(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.SecureCookies(r),
	})
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (g *Guard) SecureCookies(r *http.Request) bool {
	return g.CookieSecure || IsSecure(r)
}

// NewToken returns 24 random bytes, base64url encoded (32 characters).
func NewToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("guard: crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
