package router

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/logging"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/respond"
)

type stubSessions struct{ user *model.User }

func (s stubSessions) Resolve(*http.Request) (*model.User, *model.Session) {
	if s.user == nil {
		return nil, nil
	}
	return s.user, &model.Session{UserID: s.user.ID}
}

type stubPerms map[string]bool

func (p stubPerms) Allowed(_ *model.User, action string) bool { return p[action] }

func newRouter(t *testing.T, user *model.User, opts ...func(*Options)) *Router {
	t.Helper()
	renderer, err := respond.NewRenderer(logging.Discard())
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	o := Options{
		Sessions:    stubSessions{user: user},
		Guard:       &guard.Guard{Hosts: guard.Hosts{Fallback: "localhost"}},
		Permissions: stubPerms{"tenant.portal": true},
		Renderer:    renderer,
		Logger:      logging.Discard(),
	}
	for _, f := range opts {
		f(&o)
	}
	return New(o)
}

func ok(body string) HandlerFunc {
	return func(c *Context) error {
		respond.Text(c.W, http.StatusOK, body)
		return nil
	}
}

func tenant() *model.User {
	return &model.User{ID: 7, AccountNumber: "A00007", Role: model.RoleTenant}
}

func serve(rt http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, r)
	return rec
}

const csrfToken = "abcdefghijklmnopqrstuvwxyz012345"

func post(path string, form url.Values) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set(guard.CSRFField, csrfToken)
	r := httptest.NewRequest(http.MethodPost, "http://localhost"+path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Origin", "http://localhost")
	r.AddCookie(&http.Cookie{Name: guard.CSRFCookie, Value: csrfToken})
	return r
}

func TestLiteralBeforePrefix(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(
		Exact(http.MethodGet, "/tenant/lease", ok("literal")),
		Prefix(http.MethodGet, "/tenant/", ok("prefix")),
	)

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/tenant/lease", nil))
	if rec.Body.String() != "literal" {
		t.Errorf("body = %q, want literal", rec.Body.String())
	}
	rec = serve(rt, httptest.NewRequest(http.MethodGet, "/tenant/other", nil))
	if rec.Body.String() != "prefix" {
		t.Errorf("body = %q, want prefix", rec.Body.String())
	}
}

func TestRegexParams(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(Regex(http.MethodGet, `/listing/(?P<id>\d+)`, func(c *Context) error {
		respond.Text(c.W, http.StatusOK, c.Param("id"))
		return nil
	}))

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/listing/42", nil))
	if rec.Body.String() != "42" {
		t.Errorf("body = %q, want 42", rec.Body.String())
	}
	rec = serve(rt, httptest.NewRequest(http.MethodGet, "/listing/42/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnauthenticatedRedirect(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(Exact(http.MethodGet, "/tenant", ok("x")).Roles(model.RoleTenant))

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/tenant", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRoleMismatchForbidden(t *testing.T) {
	called := false
	rt := newRouter(t, tenant())
	rt.Handle(Exact(http.MethodGet, "/admin", func(c *Context) error {
		called = true
		return nil
	}).Roles(model.RoleAdmin))

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler must not run")
	}
}

func TestAdminPassesRoleCheck(t *testing.T) {
	rt := newRouter(t, &model.User{ID: 1, Role: model.RoleAdmin})
	rt.Handle(Exact(http.MethodGet, "/tenant", ok("x")).Roles(model.RoleTenant))

	if rec := serve(rt, httptest.NewRequest(http.MethodGet, "/tenant", nil)); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestPermissionDenied(t *testing.T) {
	rt := newRouter(t, tenant())
	rt.Handle(
		Exact(http.MethodGet, "/tenant", ok("x")).Roles(model.RoleTenant).Action("tenant.portal"),
		Exact(http.MethodGet, "/tenant/pay", ok("x")).Roles(model.RoleTenant).Action("tenant.payment.submit"),
	)

	if rec := serve(rt, httptest.NewRequest(http.MethodGet, "/tenant", nil)); rec.Code != http.StatusOK {
		t.Errorf("allowed action status = %d", rec.Code)
	}
	if rec := serve(rt, httptest.NewRequest(http.MethodGet, "/tenant/pay", nil)); rec.Code != http.StatusForbidden {
		t.Errorf("denied action status = %d, want 403", rec.Code)
	}
}

func TestCSRFRejected(t *testing.T) {
	rt := newRouter(t, tenant())
	calls := 0
	rt.Handle(Exact(http.MethodPost, "/profile/update", func(c *Context) error {
		calls++
		return c.Redirect("/profile")
	}))

	for range 2 {
		r := post("/profile/update", nil)
		r.Form = nil
		r.Body = http.NoBody
		r.ContentLength = 0
		rec := serve(rt, r)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Security token missing or invalid") {
			t.Errorf("body missing token message")
		}
	}
	if calls != 0 {
		t.Error("handler must not run on CSRF failure")
	}

	if rec := serve(rt, post("/profile/update", nil)); rec.Code != http.StatusFound {
		t.Errorf("valid token status = %d, want 302", rec.Code)
	}
}

func TestCrossOriginForbidden(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(Exact(http.MethodPost, "/inquiry", ok("x")))

	r := post("/inquiry", nil)
	r.Header.Set("Origin", "https://evil.example")
	if rec := serve(rt, r); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestOversizedBody(t *testing.T) {
	rt := newRouter(t, nil, func(o *Options) { o.MaxBodyBytes = 1 << 20 })
	rt.Handle(Exact(http.MethodPost, "/apply", ok("x")))

	r := post("/apply", nil)
	r.ContentLength = 2 << 20
	r.Body = readerFunc(func([]byte) (int, error) {
		t.Fatal("body must not be read")
		return 0, nil
	})
	rec := serve(rt, r)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "max 1 MB") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
func (f readerFunc) Close() error               { return nil }

func TestRateLimited(t *testing.T) {
	state := NewState(nil, nil, 5, time.Minute)
	rt := newRouter(t, nil, func(o *Options) { o.State = state })
	rt.Handle(Exact(http.MethodPost, "/inquiry", ok("x")))

	for i := range 20 {
		if rec := serve(rt, post("/inquiry", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := serve(rt, post("/inquiry", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry <= 0 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	r := post("/inquiry", nil)
	r.RemoteAddr = "10.1.1.1:1"
	if rec := serve(rt, r); rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rec.Code)
	}
}

func TestHandlerErrorAndPanic(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(
		Exact(http.MethodGet, "/err", func(*Context) error { return errors.New("boom") }),
		Exact(http.MethodGet, "/panic", func(*Context) error { panic("boom") }),
	)
	for _, p := range []string{"/err", "/panic"} {
		rec := serve(rt, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", p, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "boom") {
			t.Errorf("%s leaked error detail", p)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(Exact(http.MethodGet, "/", ok("home")))

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}
}

func TestHTTPSRedirect(t *testing.T) {
	rt := newRouter(t, nil, func(o *Options) {
		o.EnforceHTTPS = true
		o.Guard = &guard.Guard{Hosts: guard.Hosts{Allowed: []string{"atlas.example", "localhost"}, Fallback: "atlas.example"}}
	})
	rt.Handle(Exact(http.MethodGet, "/", ok("home")))

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "http://atlas.example/?q=1", nil))
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "https://atlas.example/?q=1" {
		t.Errorf("got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = serve(rt, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	if rec.Code == http.StatusMovedPermanently {
		t.Error("local host should not be redirected")
	}
}

func TestHousekeepingThrottled(t *testing.T) {
	runs := 0
	rt := newRouter(t, nil, func(o *Options) {
		o.HousekeepingInterval = time.Hour
		o.Sweep = func(context.Context) { runs++ }
	})
	rt.Handle(Exact(http.MethodGet, "/", ok("home")))
	for range 3 {
		serve(rt, httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if runs != 1 {
		t.Errorf("sweep ran %d times, want 1", runs)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rt := newRouter(t, nil)
	rt.Handle(Exact(http.MethodPost, "/logout", ok("x")))
	rec := serve(rt, httptest.NewRequest(http.MethodGet, "/logout", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("got %d Allow=%q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestCatchAllKeepsMethodNotAllowed(t *testing.T) {
	rt := newRouter(t, tenant())
	rt.Handle(
		Exact(http.MethodPost, "/tenant/pay-rent", ok("pay")).Roles(model.RoleTenant),
		Prefix(http.MethodGet, "/tenant", ok("area")).Roles(model.RoleTenant),
		Prefix(http.MethodPost, "/tenant", ok("area-post")).Roles(model.RoleTenant),
	)

	rec := serve(rt, httptest.NewRequest(http.MethodGet, "http://localhost/tenant/pay-rent", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("GET literal: got %d Allow=%q", rec.Code, rec.Header().Get("Allow"))
	}
	if rec := serve(rt, httptest.NewRequest(http.MethodGet, "http://localhost/tenant/unknown", nil)); rec.Body.String() != "area" {
		t.Errorf("GET unknown: %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(rt, post("/tenant/unknown", nil)); rec.Body.String() != "area-post" {
		t.Errorf("POST unknown: %d %q", rec.Code, rec.Body.String())
	}
}

func TestMultipartSpillRemoved(t *testing.T) {
	rt := newRouter(t, tenant())
	var spilled *multipart.FileHeader
	rt.Handle(Exact(http.MethodPost, "/tenant/maintenance/new", func(c *Context) error {
		spilled = c.R.MultipartForm.File["photo"][0]
		f, err := spilled.Open()
		if err != nil {
			return err
		}
		f.Close()
		respond.Text(c.W, http.StatusOK, "ok")
		return nil
	}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField(guard.CSRFField, csrfToken)
	part, _ := mw.CreateFormFile("photo", "leak.jpg")
	part.Write(bytes.Repeat([]byte{0xff}, multipartMemory+1<<20))
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "http://localhost/tenant/maintenance/new", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Origin", "http://localhost")
	r.AddCookie(&http.Cookie{Name: guard.CSRFCookie, Value: csrfToken})

	if rec := serve(rt, r); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if spilled == nil {
		t.Fatal("handler did not see the upload")
	}
	if f, err := spilled.Open(); err == nil {
		f.Close()
		t.Error("spilled upload still on disk after the request")
	}
}
