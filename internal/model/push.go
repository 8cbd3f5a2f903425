package model

import "time"

// Notification categories. Each maps to a toggle in NotificationPreferences.
const (
	NotifPayment     = "payment"
	NotifMaintenance = "maintenance"
	NotifLease       = "lease"
	NotifInvite      = "invite"
	NotifApplication = "application"
	NotifInquiry     = "inquiry"
	NotifSystem      = "system"
)

var NotificationCategories = []string{
	NotifPayment, NotifMaintenance, NotifLease, NotifInvite,
	NotifApplication, NotifInquiry, NotifSystem,
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	Link      string    `json:"link"`
	Category  string    `json:"category"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationPreferences struct {
	UserID       int64           `json:"user_id"`
	Categories   map[string]bool `json:"categories"`
	EmailEnabled bool            `json:"email_enabled"`
}

// Wants reports whether the user accepts notifications of category.
// Unknown categories count as system.
func (p *NotificationPreferences) Wants(category string) bool {
	if p == nil {
		return true
	}
	if on, ok := p.Categories[category]; ok {
		return on
	}
	return p.Categories[NotifSystem]
}

// DefaultNotificationPreferences enables everything.
func DefaultNotificationPreferences(userID int64) *NotificationPreferences {
	cats := make(map[string]bool, len(NotificationCategories))
	for _, c := range NotificationCategories {
		cats[c] = true
	}
	return &NotificationPreferences{UserID: userID, Categories: cats, EmailEnabled: true}
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}
