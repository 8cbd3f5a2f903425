package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/push"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
	"github.com/atlasbahamas/atlas/internal/websocket"
)

// notificationPage caps how many notifications the list shows.
const notificationPage = 100

type NotificationHandler struct {
	notifications *store.NotificationStore
	pushes        *store.PushStore
	hub           *websocket.Hub
	push          *push.Service
	originHosts   []string
	logger        *slog.Logger
}

func NewNotificationHandler(
	ns *store.NotificationStore,
	ps *store.PushStore,
	hub *websocket.Hub,
	pushService *push.Service,
	originHosts []string,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notifications: ns,
		pushes:        ps,
		hub:           hub,
		push:          pushService,
		originHosts:   originHosts,
		logger:        logger,
	}
}

func (h *NotificationHandler) List(c *router.Context) error {
	items, err := h.notifications.ListByUser(c.User.ID, notificationPage)
	if err != nil {
		return err
	}
	unread, err := h.notifications.UnreadCount(c.User.ID)
	if err != nil {
		return err
	}
	vapid := ""
	if h.push != nil {
		vapid = h.push.VAPIDPublicKey()
	}
	return c.HTML("notifications", "Notifications", map[string]any{
		"Items":    items,
		"Unread":   unread,
		"VAPIDKey": vapid,
	})
}

func (h *NotificationHandler) ReadAll(c *router.Context) error {
	if err := h.notifications.MarkAllRead(c.User.ID); err != nil {
		return err
	}
	return c.Flash("/notifications", "All notifications marked as read.", false)
}

func (h *NotificationHandler) Preferences(c *router.Context) error {
	prefs, err := h.notifications.GetPreferences(c.User.ID)
	if err != nil {
		return err
	}
	return c.HTML("preferences", "Notification preferences", map[string]any{
		"Prefs":      prefs,
		"Categories": model.NotificationCategories,
	})
}

// SavePreferences treats an unchecked box as off.
func (h *NotificationHandler) SavePreferences(c *router.Context) error {
	prefs := &model.NotificationPreferences{
		UserID:       c.User.ID,
		Categories:   make(map[string]bool, len(model.NotificationCategories)),
		EmailEnabled: c.Form("email_enabled") != "",
	}
	for _, cat := range model.NotificationCategories {
		prefs.Categories[cat] = c.Form("cat_"+cat) != ""
	}
	if err := h.notifications.SavePreferences(prefs); err != nil {
		return err
	}
	return c.Flash("/notifications/preferences", "Preferences saved.", false)
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *NotificationHandler) Subscribe(c *router.Context) error {
	if h.push == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "push is not configured"})
	}
	var req subscribeRequest
	if err := json.NewDecoder(c.R.Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON"})
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "endpoint and keys are required"})
	}
	if _, err := h.pushes.Subscribe(c.User.ID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (h *NotificationHandler) Unsubscribe(c *router.Context) error {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(c.R.Body).Decode(&req); err != nil || req.Endpoint == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "endpoint is required"})
	}
	if err := h.pushes.Unsubscribe(c.User.ID, req.Endpoint); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// Live upgrades to a websocket that receives the user's notifications.
func (h *NotificationHandler) Live(c *router.Context) error {
	var expires time.Time
	if c.Session != nil {
		expires = c.Session.ExpiresAt
	}
	if err := h.hub.Serve(c.W, c.R, c.User.ID, expires, h.originHosts); err != nil {
		h.logger.Debug("websocket closed", "user_id", c.User.ID, "error", err)
	}
	return nil
}
