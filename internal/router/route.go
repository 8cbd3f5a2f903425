package router

import (
	"net/http"
	"regexp"
	"strings"
)

// HandlerFunc serves a matched route. A returned error is logged and
// answered with a generic 500 when nothing was written yet.
type HandlerFunc func(*Context) error

type matchKind int

const (
	exact matchKind = iota
	prefix
	pattern
)

// Route is one entry of the dispatch table. Build routes with Exact, Prefix
// or Regex and refine them with Auth, Roles and Action.
type Route struct {
	method  string
	kind    matchKind
	path    string
	re      *regexp.Regexp
	auth    bool
	roles   []string
	action  string
	handler HandlerFunc
}

func newRoute(method string, kind matchKind, path string, h HandlerFunc) *Route {
	return &Route{method: method, kind: kind, path: path, handler: h}
}

// Exact matches one literal path.
func Exact(method, path string, h HandlerFunc) *Route {
	return newRoute(method, exact, path, h)
}

// Prefix matches every path starting with p.
func Prefix(method, p string, h HandlerFunc) *Route {
	return newRoute(method, prefix, p, h)
}

// Regex matches a full-path expression. Named groups become Context params.
func Regex(method, expr string, h HandlerFunc) *Route {
	r := newRoute(method, pattern, expr, h)
	r.re = regexp.MustCompile("^" + strings.TrimSuffix(strings.TrimPrefix(expr, "^"), "$") + "$")
	return r
}

// Auth requires a signed-in user.
func (r *Route) Auth() *Route {
	r.auth = true
	return r
}

// Roles restricts the route to the given roles. Admins always pass.
func (r *Route) Roles(roles ...string) *Route {
	r.auth = true
	r.roles = roles
	return r
}

// Action gates the route through the permission resolver.
func (r *Route) Action(action string) *Route {
	r.auth = true
	r.action = action
	return r
}

func (r *Route) pathMatches(p string) (map[string]string, bool) {
	switch r.kind {
	case exact:
		return nil, p == r.path
	case prefix:
		return nil, strings.HasPrefix(p, r.path)
	}
	m := r.re.FindStringSubmatch(p)
	if m == nil {
		return nil, false
	}
	var params map[string]string
	for i, name := range r.re.SubexpNames() {
		if name == "" {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[name] = m[i]
	}
	return params, true
}

func (r *Route) methodMatches(m string) bool {
	if r.method == m {
		return true
	}
	return m == http.MethodHead && r.method == http.MethodGet
}

func (r *Route) allowsRole(role string) bool {
	if len(r.roles) == 0 {
		return true
	}
	for _, want := range r.roles {
		if want == role {
			return true
		}
	}
	return false
}
