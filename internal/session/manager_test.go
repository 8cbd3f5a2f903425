package session

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/logging"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/store"
)

type fixture struct {
	db       *sql.DB
	mgr      *Manager
	sessions *store.SessionStore
	user     *model.User
}

func setup(t *testing.T, cache Cache) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	u, err := users.Create(store.NewUser{
		Username: "tess", Email: "tess@example.com", Role: model.RoleTenant,
		PasswordSalt: "00", PasswordHash: "00",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sessions := store.NewSessionStore(db)
	g := &guard.Guard{Hosts: guard.Hosts{Fallback: "localhost"}}
	mgr := NewManager(sessions, users, auth.NewSigner([]byte("0123456789abcdef0123456789abcdef")), cache, g, logging.Discard())
	return &fixture{db: db, mgr: mgr, sessions: sessions, user: u}
}

func newRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("User-Agent", "test-agent")
	return r
}

// login creates a session and returns the cookies it set.
func (f *fixture) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if _, err := f.mgr.Create(rec, newRequest(), f.user); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return rec.Result().Cookies()
}

func withCookies(r *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestCreateSetsCookies(t *testing.T) {
	f := setup(t, nil)
	cookies := f.login(t)

	names := map[string]*http.Cookie{}
	for _, c := range cookies {
		names[c.Name] = c
	}
	sc, ok := names[Cookie]
	if !ok {
		t.Fatal("missing session cookie")
	}
	if !sc.HttpOnly || sc.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie flags: HttpOnly=%v SameSite=%v", sc.HttpOnly, sc.SameSite)
	}
	if _, ok := names[guard.CSRFCookie]; !ok {
		t.Error("missing csrf cookie")
	}
}

func TestResolve(t *testing.T) {
	f := setup(t, nil)
	cookies := f.login(t)

	u, sess := f.mgr.Resolve(withCookies(newRequest(), cookies))
	if u == nil || sess == nil {
		t.Fatal("expected a resolved user")
	}
	if u.ID != f.user.ID {
		t.Errorf("user id = %d, want %d", u.ID, f.user.ID)
	}
}

func TestResolveFailsClosed(t *testing.T) {
	f := setup(t, nil)
	cookies := f.login(t)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"no cookie", newRequest},
		{"bad signature", func() *http.Request {
			r := newRequest()
			r.AddCookie(&http.Cookie{Name: Cookie, Value: "abc.def"})
			return r
		}},
		{"other ip", func() *http.Request {
			r := withCookies(newRequest(), cookies)
			r.RemoteAddr = "10.9.9.9:1"
			return r
		}},
		{"other agent", func() *http.Request {
			r := withCookies(newRequest(), cookies)
			r.Header.Set("User-Agent", "curl")
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if u, _ := f.mgr.Resolve(tt.req()); u != nil {
				t.Error("expected nil user")
			}
		})
	}
}

func TestResolveDoesNotDeleteOnMismatch(t *testing.T) {
	f := setup(t, nil)
	cookies := f.login(t)

	r := withCookies(newRequest(), cookies)
	r.Header.Set("User-Agent", "other")
	f.mgr.Resolve(r)

	var n int
	f.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	if n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestResolveExpired(t *testing.T) {
	f := setup(t, NewMemoryCache())
	cookies := f.login(t)

	if _, err := f.db.Exec(`UPDATE sessions SET expires_at = '2000-01-01 00:00:00'`); err != nil {
		t.Fatal(err)
	}
	// drop the cached copy so the store is consulted
	f.mgr.cache = NewMemoryCache()
	if u, _ := f.mgr.Resolve(withCookies(newRequest(), cookies)); u != nil {
		t.Error("expired session should not resolve")
	}
}

func TestDestroy(t *testing.T) {
	f := setup(t, nil)
	cookies := f.login(t)

	rec := httptest.NewRecorder()
	if err := f.mgr.Destroy(rec, withCookies(newRequest(), cookies)); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired", c.Name)
		}
	}
	if u, _ := f.mgr.Resolve(withCookies(newRequest(), cookies)); u != nil {
		t.Error("destroyed session should not resolve")
	}
}

func TestLoginRotatesOlderSessions(t *testing.T) {
	f := setup(t, nil)
	first := f.login(t)
	second := f.login(t)

	if u, _ := f.mgr.Resolve(withCookies(newRequest(), first)); u != nil {
		t.Error("older session should be rotated out")
	}
	if u, _ := f.mgr.Resolve(withCookies(newRequest(), second)); u == nil {
		t.Error("newest session should resolve")
	}
}

func TestRedisCacheServesAndEvicts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := setup(t, NewCache(client))
	cookies := f.login(t)
	if len(mr.Keys()) != 1 {
		t.Fatalf("redis keys = %v, want one session", mr.Keys())
	}

	if err := f.mgr.DestroyUser(context.Background(), f.user.ID); err != nil {
		t.Fatalf("destroy user: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("redis keys after DestroyUser = %v", mr.Keys())
	}
	if u, _ := f.mgr.Resolve(withCookies(newRequest(), cookies)); u != nil {
		t.Error("revoked session should not resolve")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	if _, err := c.Get(context.Background(), "nope"); !isMiss(err) {
		t.Errorf("err = %v, want redis.Nil", err)
	}
}
