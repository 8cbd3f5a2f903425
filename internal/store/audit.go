package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(e model.AuditEntry) error {
	var actor sql.NullInt64
	if e.ActorUserID != nil {
		actor = sql.NullInt64{Int64: *e.ActorUserID, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (actor_user_id, actor_role, action, entity_type, entity_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		actor, e.ActorRole, e.Action, e.EntityType, e.EntityID, e.Details, sqlTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func auditWhere(f model.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.ActorID > 0 {
		conds = append(conds, "actor_user_id = ?")
		args = append(args, f.ActorID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching entries newest first.
func (s *AuditStore) List(f model.AuditFilter) ([]model.AuditEntry, error) {
	where, args := auditWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.Query(
		`SELECT id, actor_user_id, actor_role, action, entity_type, entity_id, details, created_at
		 FROM audit_logs`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var actor sql.NullInt64
		if err := rows.Scan(&e.ID, &actor, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.ActorUserID = nullInt(actor)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *AuditStore) Count(f model.AuditFilter) (int, error) {
	where, args := auditWhere(f)
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return n, nil
}
