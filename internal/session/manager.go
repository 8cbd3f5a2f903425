// Package session resolves the signed session cookie into a user and issues
// and revokes sessions.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/model"
)

// Cookie is the session cookie name.
const Cookie = "ATLASBAHAMAS_SESSION"

// TTL is how long a session lives after login.
const TTL = 7 * 24 * time.Hour

const maxUserAgent = 512

type SessionStore interface {
	Create(userID int64, ipHash, uaHash string, ttl time.Duration) (*model.Session, []string, error)
	Get(id string) (*model.Session, error)
	Delete(id string) error
	DeleteByUser(userID int64) ([]string, error)
}

type UserStore interface {
	GetByID(id int64) (*model.User, error)
}

// Manager owns the session cookie lifecycle.
type Manager struct {
	sessions SessionStore
	users    UserStore
	signer   *auth.Signer
	cache    Cache
	guard    *guard.Guard
	logger   *slog.Logger
}

func NewManager(sessions SessionStore, users UserStore, signer *auth.Signer, cache Cache, g *guard.Guard, logger *slog.Logger) *Manager {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Manager{
		sessions: sessions,
		users:    users,
		signer:   signer,
		cache:    cache,
		guard:    g,
		logger:   logger,
	}
}

type cached struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IPHash    string    `json:"ip_hash"`
	UAHash    string    `json:"user_agent_hash"`
}

func cacheKey(id string) string { return "atlas:sess:" + id }

func (m *Manager) fingerprint(r *http.Request) (ipHash, uaHash string) {
	ua := r.UserAgent()
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return m.signer.HashClientValue("ip", guard.ClientIP(r)), m.signer.HashClientValue("ua", ua)
}

func matches(expected, actual string) bool {
	return expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// Resolve returns the signed-in user and session, or nil for anonymous
// requests. It never writes.
func (m *Manager) Resolve(r *http.Request) (*model.User, *model.Session) {
	c, err := r.Cookie(Cookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	id, ok := m.signer.Unsign(c.Value)
	if !ok {
		return nil, nil
	}

	sess := m.lookup(r.Context(), id)
	if sess == nil || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	ipHash, uaHash := m.fingerprint(r)
	if !matches(sess.IPHash, ipHash) || !matches(sess.UserAgentHash, uaHash) {
		m.logger.Debug("session fingerprint mismatch", "user_id", sess.UserID)
		return nil, nil
	}

	user, err := m.users.GetByID(sess.UserID)
	if err != nil {
		m.logger.Error("load session user", "user_id", sess.UserID, "error", err)
		return nil, nil
	}
	if user == nil {
		return nil, nil
	}
	return user, sess
}

func (m *Manager) lookup(ctx context.Context, id string) *model.Session {
	raw, err := m.cache.Get(ctx, cacheKey(id))
	if err == nil {
		var cs cached
		if json.Unmarshal([]byte(raw), &cs) == nil && cs.UserID > 0 {
			return &model.Session{ID: id, UserID: cs.UserID, IPHash: cs.IPHash, UserAgentHash: cs.UAHash, ExpiresAt: cs.ExpiresAt}
		}
	} else if !isMiss(err) {
		m.logger.Warn("session cache get", "error", err)
	}

	sess, err := m.sessions.Get(id)
	if err != nil {
		m.logger.Error("get session", "error", err)
		return nil
	}
	return sess
}

// Create starts a session for user, replacing any older ones, and sets the
// session and CSRF cookies.
func (m *Manager) Create(w http.ResponseWriter, r *http.Request, user *model.User) (*model.Session, error) {
	ipHash, uaHash := m.fingerprint(r)
	sess, rotated, err := m.sessions.Create(user.ID, ipHash, uaHash, TTL)
	if err != nil {
		return nil, err
	}
	m.EvictIDs(r.Context(), rotated)

	payload, _ := json.Marshal(cached{UserID: user.ID, ExpiresAt: sess.ExpiresAt, IPHash: ipHash, UAHash: uaHash})
	if err := m.cache.Set(r.Context(), cacheKey(sess.ID), string(payload), time.Until(sess.ExpiresAt)); err != nil {
		m.logger.Warn("session cache set", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     Cookie,
		Value:    m.signer.Sign(sess.ID),
		Path:     "/",
		MaxAge:   int(TTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.guard.SecureCookies(r),
	})
	m.guard.EnsureToken(w, r)
	return sess, nil
}

// Destroy deletes the request's session, if any, and clears both cookies.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	var err error
	if c, cerr := r.Cookie(Cookie); cerr == nil {
		if id, ok := m.signer.Unsign(c.Value); ok {
			err = m.sessions.Delete(id)
			m.EvictIDs(r.Context(), []string{id})
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     Cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.guard.SecureCookies(r),
	})
	m.guard.ClearToken(w, r)
	return err
}

// DestroyUser revokes every session of userID.
func (m *Manager) DestroyUser(ctx context.Context, userID int64) error {
	ids, err := m.sessions.DeleteByUser(userID)
	if err != nil {
		return err
	}
	m.EvictIDs(ctx, ids)
	return nil
}

// EvictIDs drops cached entries for sessions removed from the store.
func (m *Manager) EvictIDs(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := m.cache.Del(ctx, keys...); err != nil {
		m.logger.Warn("session cache evict", "count", len(ids), "error", err)
	}
}
