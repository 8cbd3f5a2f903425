package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

const sessionCols = `session_id, user_id, ip_hash, user_agent_hash, expires_at, created_at`

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var sess model.Session
	if err := scanner.Scan(&sess.ID, &sess.UserID, &sess.IPHash, &sess.UserAgentHash, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Create starts a session for userID and removes the user's older sessions.
// The returned slice holds the ids of the removed sessions.
func (s *SessionStore) Create(userID int64, ipHash, uaHash string, ttl time.Duration) (*model.Session, []string, error) {
	id, err := generateToken()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	sess := &model.Session{
		ID:            id,
		UserID:        userID,
		IPHash:        ipHash,
		UserAgentHash: uaHash,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	var rotated []string
	err = withTx(s.db, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT session_id FROM sessions WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("list user sessions: %w", err)
		}
		for rows.Next() {
			var old string
			if err := rows.Scan(&old); err != nil {
				rows.Close()
				return fmt.Errorf("scan session id: %w", err)
			}
			rotated = append(rotated, old)
		}
		rows.Close()

		if _, err := tx.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete old sessions: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO sessions (session_id, user_id, ip_hash, user_agent_hash, expires_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, userID, ipHash, uaHash, sqlTime(sess.ExpiresAt), sqlTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, rotated, nil
}

// Get returns an unexpired session or nil.
func (s *SessionStore) Get(id string) (*model.Session, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionCols+` FROM sessions WHERE session_id = ? AND expires_at > ?`,
		id, sqlTime(time.Now()),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of userID and returns their ids.
func (s *SessionStore) DeleteByUser(userID int64) ([]string, error) {
	return s.deleteWhere(`user_id = ?`, userID)
}

// DeleteExpired removes expired sessions and returns their ids.
func (s *SessionStore) DeleteExpired() ([]string, error) {
	return s.deleteWhere(`expires_at <= ?`, sqlTime(time.Now()))
}

func (s *SessionStore) deleteWhere(cond string, arg any) ([]string, error) {
	rows, err := s.db.Query(`DELETE FROM sessions WHERE `+cond+` RETURNING session_id`, arg)
	if err != nil {
		return nil, fmt.Errorf("delete sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
