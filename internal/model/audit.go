package model

import "time"

type AuditEntry struct {
	ID          int64     `json:"id"`
	ActorUserID *int64    `json:"actor_user_id"`
	ActorRole   string    `json:"actor_role"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Details     string    `json:"details"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditFilter selects audit rows. Zero values are ignored.
type AuditFilter struct {
	Action  string
	ActorID int64
	Limit   int
	Offset  int
}

type Upload struct {
	ID           int64     `json:"id"`
	OwnerUserID  *int64    `json:"owner_user_id"`
	Kind         string    `json:"kind"`
	RelatedTable string    `json:"related_table"`
	RelatedID    int64     `json:"related_id"`
	Path         string    `json:"path"`
	MIME         string    `json:"mime"`
	CreatedAt    time.Time `json:"created_at"`
}
