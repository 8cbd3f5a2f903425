package model

import "time"

var MaintenanceUrgencies = []string{"normal", "high", "emergency"}

var MaintenanceStatuses = []string{"open", "in_progress", "closed"}

type MaintenanceRequest struct {
	ID            int64      `json:"id"`
	TenantAccount string     `json:"tenant_account"`
	TenantName    string     `json:"tenant_name"`
	PropertyID    string     `json:"property_id"`
	UnitLabel     string     `json:"unit_label"`
	Description   string     `json:"description"`
	Urgency       string     `json:"urgency"`
	Status        string     `json:"status"`
	PhotoPath     string     `json:"photo_path"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}
