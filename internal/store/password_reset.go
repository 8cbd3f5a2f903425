package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type PasswordResetStore struct {
	db *sql.DB
}

func NewPasswordResetStore(db *sql.DB) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

func (s *PasswordResetStore) Create(userID int64, tokenID string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO password_resets (user_id, token_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, tokenID, sqlTime(expiresAt), sqlTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PasswordResetStore) GetByTokenID(tokenID string) (*model.PasswordReset, error) {
	var pr model.PasswordReset
	var used int
	err := s.db.QueryRow(
		`SELECT id, user_id, token_id, expires_at, used, created_at FROM password_resets WHERE token_id = ?`,
		tokenID,
	).Scan(&pr.ID, &pr.UserID, &pr.TokenID, &pr.ExpiresAt, &used, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get password reset: %w", err)
	}
	pr.Used = used != 0
	return &pr, nil
}

// Consume marks an unused, unexpired reset as used. It reports false when the
// token was already used, expired or unknown.
func (s *PasswordResetStore) Consume(tokenID string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE password_resets SET used = 1 WHERE token_id = ? AND used = 0 AND expires_at > ?`,
		tokenID, sqlTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("consume password reset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Sweep removes used resets and any that expired more than retention ago.
func (s *PasswordResetStore) Sweep(retention time.Duration) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM password_resets WHERE used = 1 OR expires_at < ?`,
		sqlTime(time.Now().Add(-retention)),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep password resets: %w", err)
	}
	return res.RowsAffected()
}
