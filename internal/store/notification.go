package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(userID int64, text, link, category string) (*model.Notification, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.Exec(
		`INSERT INTO notifications (user_id, text, link, category, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, text, link, category, sqlTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.Notification{ID: id, UserID: userID, Text: text, Link: link, Category: category, CreatedAt: now}, nil
}

func (s *NotificationStore) ListByUser(userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, text, link, category, is_read, created_at FROM notifications
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Text, &n.Link, &n.Category, &read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.IsRead = read != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) UnreadCount(userID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) MarkAllRead(userID int64) error {
	if _, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

// GetPreferences returns stored preferences or all-enabled defaults. Column
// order follows model.NotificationCategories.
func (s *NotificationStore) GetPreferences(userID int64) (*model.NotificationPreferences, error) {
	var vals [8]int
	err := s.db.QueryRow(
		`SELECT payment_events, maintenance_events, lease_events, invite_events,
		        application_events, inquiry_events, system_events, email_enabled
		 FROM notification_preferences WHERE user_id = ?`, userID,
	).Scan(&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6], &vals[7])
	if err == sql.ErrNoRows {
		return model.DefaultNotificationPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}

	p := &model.NotificationPreferences{UserID: userID, Categories: make(map[string]bool), EmailEnabled: vals[7] != 0}
	for i, c := range model.NotificationCategories {
		p.Categories[c] = vals[i] != 0
	}
	return p, nil
}

func (s *NotificationStore) SavePreferences(p *model.NotificationPreferences) error {
	args := []any{p.UserID}
	for _, c := range model.NotificationCategories {
		args = append(args, boolInt(p.Categories[c]))
	}
	args = append(args, boolInt(p.EmailEnabled), sqlTime(time.Now()))

	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (user_id, payment_events, maintenance_events, lease_events,
		 invite_events, application_events, inquiry_events, system_events, email_enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   payment_events = excluded.payment_events,
		   maintenance_events = excluded.maintenance_events,
		   lease_events = excluded.lease_events,
		   invite_events = excluded.invite_events,
		   application_events = excluded.application_events,
		   inquiry_events = excluded.inquiry_events,
		   system_events = excluded.system_events,
		   email_enabled = excluded.email_enabled,
		   updated_at = excluded.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("save notification preferences: %w", err)
	}
	return nil
}
