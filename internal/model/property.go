package model

import "time"

type Property struct {
	ID           string    `json:"id"`
	OwnerAccount string    `json:"owner_account"`
	Name         string    `json:"name"`
	PropertyType string    `json:"property_type"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
}

type Unit struct {
	ID         int64     `json:"id"`
	PropertyID string    `json:"property_id"`
	Label      string    `json:"unit_label"`
	Beds       int       `json:"beds"`
	Baths      int       `json:"baths"`
	Rent       int64     `json:"rent"`
	IsOccupied bool      `json:"is_occupied"`
	CreatedAt  time.Time `json:"created_at"`
}

type Lease struct {
	ID              int64      `json:"id"`
	TenantAccount   string     `json:"tenant_account"`
	PropertyID      string     `json:"property_id"`
	UnitLabel       string     `json:"unit_label"`
	StartDate       string     `json:"start_date"`
	EndDate         *string    `json:"end_date"`
	IsActive        bool       `json:"is_active"`
	ManagerSignedAt *time.Time `json:"manager_signed_at"`
	TenantSignedAt  *time.Time `json:"tenant_signed_at"`
	ESignIP         string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Invite statuses.
const (
	InvitePending   = "pending"
	InviteAccepted  = "accepted"
	InviteDeclined  = "declined"
	InviteCancelled = "cancelled"
)

type Invite struct {
	ID            int64      `json:"id"`
	SenderUserID  int64      `json:"sender_user_id"`
	TenantUserID  int64      `json:"tenant_user_id"`
	TenantAccount string     `json:"tenant_account"`
	PropertyID    string     `json:"property_id"`
	UnitLabel     string     `json:"unit_label"`
	Message       string     `json:"message"`
	Status        string     `json:"status"`
	RevokeReason  string     `json:"revoke_reason"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RespondedAt   *time.Time `json:"responded_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
