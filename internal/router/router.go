// Package router is the single request dispatcher: it resolves the session,
// enforces origin, CSRF, body and rate limits on POST, matches an ordered
// route table and gates each route by login, role and permission before
// calling its handler.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/middleware"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/ratelimit"
	"github.com/atlasbahamas/atlas/internal/respond"
)

// SlowRequest is the latency above which a request is logged as slow.
const SlowRequest = 800 * time.Millisecond

const multipartMemory = 8 << 20

type Resolver interface {
	Resolve(r *http.Request) (*model.User, *model.Session)
}

type Authorizer interface {
	Allowed(user *model.User, action string) bool
}

type Renderer interface {
	HTML(w http.ResponseWriter, status int, page string, data respond.Page)
	Error(w http.ResponseWriter, status int, msg string)
}

// Options configures a Router. Sweep, when set, runs at most once per
// HousekeepingInterval from inside a request.
type Options struct {
	Sessions             Resolver
	Guard                *guard.Guard
	Permissions          Authorizer
	Renderer             Renderer
	State                *State
	Logger               *slog.Logger
	EnforceHTTPS         bool
	HSTSMaxAge           int
	MaxBodyBytes         int64
	MaxMultipartParts    int
	HousekeepingInterval time.Duration
	Sweep                func(context.Context)
}

type Router struct {
	routes   []*Route
	sessions Resolver
	guard    *guard.Guard
	perms    Authorizer
	renderer Renderer
	state    *State
	logger   *slog.Logger
	opts     Options
}

func New(opts Options) *Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 40 << 20
	}
	if opts.MaxMultipartParts <= 0 {
		opts.MaxMultipartParts = 200
	}
	if opts.State == nil {
		opts.State = NewState(nil, nil, 5, 15*time.Minute)
	}
	return &Router{
		sessions: opts.Sessions,
		guard:    opts.Guard,
		perms:    opts.Permissions,
		renderer: opts.Renderer,
		state:    opts.State,
		logger:   opts.Logger,
		opts:     opts,
	}
}

// Handle appends routes. Order matters: the first match wins.
func (rt *Router) Handle(routes ...*Route) {
	rt.routes = append(rt.routes, routes...)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := middleware.NewRecorder(w)
	respond.SecurityHeaders(rec.Header(), guard.IsSecure(r), rt.opts.HSTSMaxAge)

	c := &Context{W: rec, R: r, Logger: rt.logger, State: rt.state, router: rt, start: start}
	// net/http only cleans up the form of the request it created, and c.R is
	// a WithContext copy once a user is resolved.
	defer func() {
		if c.R.MultipartForm != nil {
			_ = c.R.MultipartForm.RemoveAll()
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			rt.logger.Error("panic serving request",
				"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start),
				"panic", p, "stack", string(debug.Stack()))
			if !rec.Written() {
				rt.renderer.Error(rec, http.StatusInternalServerError, "")
			}
		}
		if elapsed := time.Since(start); elapsed >= SlowRequest {
			rt.logger.Warn("slow request", "method", r.Method, "path", r.URL.Path, "elapsed", elapsed)
		}
	}()
	rt.dispatch(c, rec)
}

func (rt *Router) dispatch(c *Context, rec *middleware.Recorder) {
	r := c.R

	if rt.opts.EnforceHTTPS && !guard.IsSecure(r) && !rt.guard.Hosts.IsLocal(r) {
		respond.Redirect(rec, "https://"+rt.guard.Hosts.SafeHost(r)+r.URL.RequestURI(), http.StatusMovedPermanently)
		return
	}

	if rt.opts.Sweep != nil && rt.state.SweepDue(time.Now(), rt.opts.HousekeepingInterval) {
		rt.opts.Sweep(r.Context())
	}

	c.User, c.Session = rt.sessions.Resolve(r)
	if c.User != nil {
		c.R = r.WithContext(auth.WithUser(r.Context(), c.User))
		r = c.R
	}

	if r.Method == http.MethodPost && rt.rejectPost(c) {
		return
	}

	route, params, allowed := rt.match(r.Method, r.URL.Path)
	if route == nil {
		if allowed != "" {
			rec.Header().Set("Allow", allowed)
			rt.renderer.Error(rec, http.StatusMethodNotAllowed, "Method not allowed.")
			return
		}
		rt.renderer.Error(rec, http.StatusNotFound, "Not found.")
		return
	}
	c.Params = params

	if route.auth && c.User == nil {
		respond.Redirect(rec, "/login", http.StatusSeeOther)
		return
	}
	if c.User != nil && !c.User.IsAdmin() && !route.allowsRole(c.User.Role) {
		rt.renderer.Error(rec, http.StatusForbidden, "You do not have access to this page.")
		return
	}
	if route.action != "" && !rt.perms.Allowed(c.User, route.action) {
		rt.renderer.Error(rec, http.StatusForbidden, "You do not have permission for this action.")
		return
	}

	if err := route.handler(c); err != nil {
		rt.logger.Error("handler error",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(c.start), "error", err)
		if !rec.Written() {
			rt.renderer.Error(rec, http.StatusInternalServerError, "")
		}
	}
}

// rejectPost applies the body limit, form parsing, origin and CSRF checks
// and the rate limiter. It reports whether a response was written.
func (rt *Router) rejectPost(c *Context) bool {
	r, w := c.R, c.W
	limit := rt.opts.MaxBodyBytes
	tooLarge := fmt.Sprintf("Request payload is too large (max %d MB).", limit/(1<<20))

	if r.ContentLength > limit {
		rt.renderer.Error(w, http.StatusBadRequest, tooLarge)
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := parseBody(r); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			rt.renderer.Error(w, http.StatusBadRequest, tooLarge)
		} else {
			rt.renderer.Error(w, http.StatusBadRequest, "Malformed request body.")
		}
		return true
	}
	if countParts(r) > rt.opts.MaxMultipartParts {
		rt.renderer.Error(w, http.StatusBadRequest, "Too many form fields.")
		return true
	}

	switch rt.guard.Check(r, c.User != nil) {
	case guard.BadOrigin:
		rt.renderer.Error(w, http.StatusForbidden, guard.OriginMessage)
		return true
	case guard.BadToken:
		rt.renderer.Error(w, http.StatusBadRequest, guard.TokenMessage)
		return true
	}

	d := ratelimit.Check(rt.state.Limiter, r.URL.Path, c.IP(), r.PostFormValue("username"), c.Account())
	if d.Blocked {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
		rt.renderer.Error(w, http.StatusTooManyRequests,
			fmt.Sprintf("Too many requests for this action. Try again in about %d second(s).", d.RetryAfter))
		return true
	}
	return false
}

func parseBody(r *http.Request) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func countParts(r *http.Request) int {
	if r.MultipartForm == nil {
		return 0
	}
	n := 0
	for _, v := range r.MultipartForm.Value {
		n += len(v)
	}
	for _, f := range r.MultipartForm.File {
		n += len(f)
	}
	return n
}

// match returns the first route for method and path. When only other
// methods match, allowed names the first of them.
func (rt *Router) match(method, path string) (*Route, map[string]string, string) {
	allowed, shadowed := "", ""
	for _, route := range rt.routes {
		params, ok := route.pathMatches(path)
		if !ok {
			continue
		}
		if route.methodMatches(method) {
			// A catch-all does not take a path that an earlier exact or
			// pattern route serves under another method.
			if route.kind == prefix && shadowed != "" {
				return nil, nil, shadowed
			}
			return route, params, ""
		}
		if allowed == "" {
			allowed = route.method
		}
		if shadowed == "" && route.kind != prefix {
			shadowed = route.method
		}
	}
	return nil, nil, allowed
}
