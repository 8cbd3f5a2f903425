package model

import "time"

type PermissionEntry struct {
	Role      string    `json:"role"`
	Action    string    `json:"action"`
	Allowed   bool      `json:"allowed"`
	UpdatedAt time.Time `json:"updated_at"`
}
