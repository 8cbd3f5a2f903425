package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/config"
	"github.com/atlasbahamas/atlas/internal/email"
	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/handler"
	"github.com/atlasbahamas/atlas/internal/housekeeping"
	"github.com/atlasbahamas/atlas/internal/middleware"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/permission"
	"github.com/atlasbahamas/atlas/internal/push"
	"github.com/atlasbahamas/atlas/internal/ratelimit"
	"github.com/atlasbahamas/atlas/internal/respond"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/session"
	"github.com/atlasbahamas/atlas/internal/store"
	"github.com/atlasbahamas/atlas/internal/upload"
	ws "github.com/atlasbahamas/atlas/internal/websocket"
)

type Server struct {
	db       *sql.DB
	hub      *ws.Hub
	router   *router.Router
	state    *router.State
	sweeper  *housekeeping.Sweeper
	notifier *notify.Notifier
	users    *store.UserStore
	logger   *slog.Logger
}

// New wires stores, services and handlers into the route table. rdb may be
// nil, in which case sessions and rate limits stay in memory.
func New(db *sql.DB, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	resetStore := store.NewPasswordResetStore(db)
	propertyStore := store.NewPropertyStore(db)
	leaseStore := store.NewLeaseStore(db)
	messageStore := store.NewMessageStore(db)
	inviteStore := store.NewInviteStore(db)
	listingStore := store.NewListingStore(db)
	maintenanceStore := store.NewMaintenanceStore(db)
	paymentStore := store.NewPaymentStore(db)
	notificationStore := store.NewNotificationStore(db)
	pushStore := store.NewPushStore(db)
	auditStore := store.NewAuditStore(db)
	permissionStore := store.NewPermissionStore(db)
	uploadStore := store.NewUploadStore(db)

	uploads, err := upload.New(cfg.UploadDir, uploadStore)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	renderer, err := respond.NewRenderer(logger.With("component", "render"))
	if err != nil {
		return nil, err
	}

	g := &guard.Guard{
		Hosts:        guard.Hosts{Allowed: cfg.AllowedHosts, Fallback: fallbackHost(cfg)},
		CookieSecure: cfg.CookieSecure,
	}
	signer := auth.NewSigner(cfg.SecretKey)
	sessions := session.NewManager(sessionStore, userStore, signer, session.NewCache(rdb), g, logger.With("component", "session"))

	window := ratelimit.NewSlidingWindow()
	var limiter ratelimit.Limiter = window
	if rdb != nil {
		limiter = ratelimit.NewRedis(rdb, window, logger.With("component", "ratelimit"))
	}
	state := router.NewState(limiter, window, cfg.LoginMaxAttempts, cfg.LoginLockout)

	mail := email.NewClient(cfg.PostmarkToken, cfg.MailFrom, cfg.PublicBaseURL)
	notifier := &notify.Notifier{
		Store:  notificationStore,
		Users:  userStore,
		Subs:   pushStore,
		Hub:    hub,
		Mail:   mail,
		Logger: logger.With("component", "notify"),
	}
	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if pushSvc != nil {
		notifier.Push = pushSvc
	}

	auditLog := audit.New(auditStore, cfg.SecretKey, logger.With("component", "audit"))
	perms := permission.NewResolver(permissionStore, logger.With("component", "permission"))

	sweeper := &housekeeping.Sweeper{
		Invites:    inviteStore,
		Sessions:   sessionStore,
		Resets:     resetStore,
		Cache:      sessions,
		Window:     window,
		LoginGuard: state.LoginGuard,
		Retention:  cfg.ResetRetention,
		Logger:     logger.With("component", "housekeeping"),
	}

	rt := router.New(router.Options{
		Sessions:             sessions,
		Guard:                g,
		Permissions:          perms,
		Renderer:             renderer,
		State:                state,
		Logger:               logger.With("component", "router"),
		EnforceHTTPS:         cfg.EnforceHTTPS,
		HSTSMaxAge:           cfg.HSTSMaxAge,
		MaxBodyBytes:         cfg.MaxRequestBytes,
		MaxMultipartParts:    cfg.MaxMultipartParts,
		HousekeepingInterval: cfg.HousekeepingInterval,
		Sweep:                func(ctx context.Context) { sweeper.Run(ctx) },
	})

	h := handlers{
		auth: handler.NewAuthHandler(userStore, resetStore, sessions, auth.NewTokenIssuer(cfg.SecretKey),
			mail, notifier, auditLog, logger.With("component", "auth")),
		public: handler.NewPublicHandler(listingStore, propertyStore, userStore, uploads, notifier, auditLog,
			respond.Static(), logger.With("component", "public")),
		notifications: handler.NewNotificationHandler(notificationStore, pushStore, hub, pushSvc,
			cfg.AllowedHosts, logger.With("component", "notifications")),
		admin: handler.NewAdminHandler(userStore, propertyStore, listingStore, maintenanceStore, auditStore,
			perms, notifier, auditLog, logger.With("component", "admin")),
		manager: handler.NewManagerHandler(propertyStore, leaseStore, inviteStore, listingStore, maintenanceStore,
			paymentStore, userStore, notifier, auditLog, cfg.InviteExpiry, logger.With("component", "manager")),
		tenant: handler.NewTenantHandler(leaseStore, inviteStore, propertyStore, paymentStore, maintenanceStore,
			uploads, notifier, auditLog, logger.With("component", "tenant")),
		messages: handler.NewMessageHandler(messageStore, userStore, notifier, auditLog, logger.With("component", "messages")),
	}
	rt.Handle(routes(h)...)

	return &Server{
		db:       db,
		hub:      hub,
		router:   rt,
		state:    state,
		sweeper:  sweeper,
		notifier: notifier,
		users:    userStore,
		logger:   logger,
	}, nil
}

// fallbackHost is used for redirects when the request host is not trusted.
func fallbackHost(cfg *config.Config) string {
	if len(cfg.AllowedHosts) > 0 {
		return cfg.AllowedHosts[0]
	}
	return "localhost"
}

// Handler returns the root handler: tracing, then request logging, then the
// dispatcher.
func (s *Server) Handler() http.Handler {
	logged := middleware.RequestLogger(s.logger.With("component", "http"))(s.router)
	return otelhttp.NewHandler(logged, "atlas",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}

// Sweeper returns the housekeeping sweeper for the background ticker.
func (s *Server) Sweeper() *housekeeping.Sweeper {
	return s.sweeper
}

// Users returns the user store for admin bootstrap.
func (s *Server) Users() *store.UserStore {
	return s.users
}

// Shutdown waits for in-flight notification deliveries.
func (s *Server) Shutdown() {
	s.notifier.Wait()
}
