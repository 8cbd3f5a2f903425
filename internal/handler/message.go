package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
)

const messagesHome = "/messages"

// MessageHandler serves direct conversations between any two accounts.
type MessageHandler struct {
	messages *store.MessageStore
	users    *store.UserStore
	notifier *notify.Notifier
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewMessageHandler(ms *store.MessageStore, us *store.UserStore, n *notify.Notifier, al *audit.Logger, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: ms, users: us, notifier: n, audit: al, logger: logger}
}

func threadLink(id int64) string {
	return messagesHome + "?thread=" + itoa(id)
}

// Inbox lists the caller's threads and opens ?thread=, or the most recent
// thread when none is named.
func (h *MessageHandler) Inbox(c *router.Context) error {
	threads, err := h.messages.ListThreads(c.User.ID)
	if err != nil {
		return err
	}
	id, _ := strconv.ParseInt(c.R.URL.Query().Get("thread"), 10, 64)
	if id <= 0 && len(threads) > 0 {
		id = threads[0].ID
	}
	var (
		open  *model.Thread
		posts []model.Post
	)
	if id > 0 {
		if open, posts, err = h.messages.Open(id, c.User.ID); err != nil {
			return err
		}
	}
	return c.HTML("messages", "Messages", map[string]any{
		"Threads":  threads,
		"Open":     open,
		"Posts":    posts,
		"Contexts": model.MessageContexts[1:],
	})
}

func (h *MessageHandler) New(c *router.Context) error {
	subject := strings.TrimSpace(c.Form("subject"))
	body := strings.TrimSpace(c.Form("body"))
	ctxType := strings.ToLower(c.Form("context_type"))
	if !oneOf(ctxType, model.MessageContexts) {
		ctxType = ""
	}
	if subject == "" || body == "" {
		return c.Flash(messagesHome, "Subject and message are required.", true)
	}
	to, err := h.users.Lookup(c.Form("recipient"))
	if err != nil {
		return err
	}
	if to == nil {
		return c.Flash(messagesHome, "Recipient was not found.", true)
	}
	if to.ID == c.User.ID {
		return c.Flash(messagesHome, "Send to another account.", true)
	}

	id, err := h.messages.CreateThread(store.NewThread{
		SenderID:    c.User.ID,
		RecipientID: to.ID,
		Subject:     subject,
		Body:        body,
		ContextType: ctxType,
		ContextID:   c.Form("context_id"),
	})
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	text := fmt.Sprintf("New message from %s: %s", c.User.FullName, subject)
	if _, err := h.notifier.Notify(ctx, to.ID, model.NotifSystem, text, threadLink(id)); err != nil {
		h.logger.Warn("message notification", "thread_id", id, "error", err)
	}
	h.audit.Log(ctx, c.User, "message_thread_created", "message_thread", itoa(id), "to="+to.AccountNumber)
	return c.Flash(threadLink(id), "Message thread started.", false)
}

func (h *MessageHandler) Send(c *router.Context) error {
	id := c.FormInt("thread_id")
	body := strings.TrimSpace(c.Form("body"))
	if id <= 0 || body == "" {
		return c.Flash(threadLink(id), "Message body is required.", true)
	}
	others, err := h.messages.Reply(id, c.User.ID, body)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Flash(messagesHome, "Thread not found.", true)
	}
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	for _, uid := range others {
		if _, err := h.notifier.Notify(ctx, uid, model.NotifSystem, "New reply from "+c.User.FullName, threadLink(id)); err != nil {
			h.logger.Warn("message notification", "thread_id", id, "user_id", uid, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "message_reply_sent", "message_thread", itoa(id), fmt.Sprintf("len=%d", len([]rune(body))))
	return c.Flash(threadLink(id), "Reply sent.", false)
}
