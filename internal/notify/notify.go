// Package notify fans a notification out to the database, live websocket
// connections, browser push and email.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/push"
	"github.com/atlasbahamas/atlas/internal/websocket"
)

type Store interface {
	Create(userID int64, text, link, category string) (*model.Notification, error)
	UnreadCount(userID int64) (int, error)
	GetPreferences(userID int64) (*model.NotificationPreferences, error)
}

type UserStore interface {
	GetByID(id int64) (*model.User, error)
	GetByAccount(account string) (*model.User, error)
}

type PushStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

type Mailer interface {
	Configured() bool
	SendNotification(ctx context.Context, toEmail, text, link string) error
}

type Pusher interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// Notifier delivers notifications. Hub, Push and Mail are optional.
type Notifier struct {
	Store  Store
	Users  UserStore
	Subs   PushStore
	Hub    *websocket.Hub
	Push   Pusher
	Mail   Mailer
	Logger *slog.Logger

	wg sync.WaitGroup
}

const deliveryTimeout = 15 * time.Second

// Notify stores and delivers a notification unless the user turned the
// category off. It returns the stored row, or nil when suppressed.
func (n *Notifier) Notify(ctx context.Context, userID int64, category, text, link string) (*model.Notification, error) {
	prefs, err := n.Store.GetPreferences(userID)
	if err != nil {
		return nil, err
	}
	if !prefs.Wants(category) {
		return nil, nil
	}

	row, err := n.Store.Create(userID, text, link, category)
	if err != nil {
		return nil, err
	}

	if n.Hub != nil {
		unread, err := n.Store.UnreadCount(userID)
		if err != nil {
			n.Logger.WarnContext(ctx, "count unread notifications", "user_id", userID, "error", err)
		}
		n.Hub.SendToUser(userID, websocket.Message{
			Type: "notification", ID: row.ID, Text: text, Link: link, Category: category, Unread: unread,
		})
	}

	if n.Push != nil || (n.Mail != nil && n.Mail.Configured() && prefs.EmailEnabled) {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
			defer cancel()
			n.deliver(dctx, userID, prefs.EmailEnabled, row)
		}()
	}
	return row, nil
}

// NotifyAccount resolves an account number and notifies its user.
func (n *Notifier) NotifyAccount(ctx context.Context, account, category, text, link string) error {
	u, err := n.Users.GetByAccount(account)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	_, err = n.Notify(ctx, u.ID, category, text, link)
	return err
}

func (n *Notifier) deliver(ctx context.Context, userID int64, emailOn bool, row *model.Notification) {
	if n.Push != nil && n.Subs != nil {
		subs, err := n.Subs.ListByUser(userID)
		if err != nil {
			n.Logger.Error("list push subscriptions", "user_id", userID, "error", err)
		}
		for i := range subs {
			err := n.Push.Send(ctx, &subs[i], push.Payload{
				Title: "Atlas Bahamas", Body: row.Text, URL: row.Link, Category: row.Category,
			})
			switch {
			case errors.Is(err, push.ErrExpired):
				if err := n.Subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					n.Logger.Warn("delete expired push subscription", "error", err)
				}
			case err != nil:
				n.Logger.Warn("push delivery failed", "user_id", userID, "error", err)
			}
		}
	}

	if emailOn && n.Mail != nil && n.Mail.Configured() {
		u, err := n.Users.GetByID(userID)
		if err != nil || u == nil || u.Email == "" {
			return
		}
		if err := n.Mail.SendNotification(ctx, u.Email, row.Text, row.Link); err != nil {
			n.Logger.Warn("notification email failed", "user_id", userID, "error", err)
		}
	}
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
