package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type UploadStore struct {
	db *sql.DB
}

func NewUploadStore(db *sql.DB) *UploadStore {
	return &UploadStore{db: db}
}

func (s *UploadStore) Create(u model.Upload) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO uploads (owner_user_id, kind, related_table, related_id, path, mime, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.OwnerUserID, u.Kind, u.RelatedTable, u.RelatedID, u.Path, u.MIME, sqlTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert upload: %w", err)
	}
	return res.LastInsertId()
}

// GetByPath returns the upload record for a stored file name.
func (s *UploadStore) GetByPath(path string) (*model.Upload, error) {
	var u model.Upload
	var owner sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, owner_user_id, kind, related_table, related_id, path, mime, created_at FROM uploads WHERE path = ?`, path,
	).Scan(&u.ID, &owner, &u.Kind, &u.RelatedTable, &u.RelatedID, &u.Path, &u.MIME, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	u.OwnerUserID = nullInt(owner)
	return &u, nil
}
