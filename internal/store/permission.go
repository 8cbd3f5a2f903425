package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type PermissionStore struct {
	db *sql.DB
}

func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// Get returns the stored override for (role, action), or nil when absent.
func (s *PermissionStore) Get(role, action string) (*bool, error) {
	var allowed int
	err := s.db.QueryRow(
		`SELECT allowed FROM role_permissions WHERE role = ? AND action = ?`, role, action,
	).Scan(&allowed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	v := allowed != 0
	return &v, nil
}

func (s *PermissionStore) Upsert(role, action string, allowed bool) error {
	_, err := s.db.Exec(
		`INSERT INTO role_permissions (role, action, allowed, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(role, action) DO UPDATE SET allowed = excluded.allowed, updated_at = excluded.updated_at`,
		role, action, boolInt(allowed), sqlTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// ReplaceAll upserts every entry in a single transaction.
func (s *PermissionStore) ReplaceAll(entries []model.PermissionEntry) error {
	now := sqlTime(time.Now())
	return withTx(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO role_permissions (role, action, allowed, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(role, action) DO UPDATE SET allowed = excluded.allowed, updated_at = excluded.updated_at`,
		)
		if err != nil {
			return fmt.Errorf("prepare permission upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.Exec(e.Role, e.Action, boolInt(e.Allowed), now); err != nil {
				return fmt.Errorf("upsert permission %s/%s: %w", e.Role, e.Action, err)
			}
		}
		return nil
	})
}

func (s *PermissionStore) List() ([]model.PermissionEntry, error) {
	rows, err := s.db.Query(`SELECT role, action, allowed, updated_at FROM role_permissions ORDER BY action, role`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var out []model.PermissionEntry
	for rows.Next() {
		var e model.PermissionEntry
		var allowed int
		if err := rows.Scan(&e.Role, &e.Action, &allowed, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		e.Allowed = allowed != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
