package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

// Message size limits, in characters.
const (
	MaxSubject     = 140
	MaxMessageBody = 4000
	maxContextID   = 80
)

type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// NewThread describes the opening post of a conversation between two users.
type NewThread struct {
	SenderID    int64
	RecipientID int64
	Subject     string
	Body        string
	ContextType string
	ContextID   string
}

// CreateThread opens a thread with both participants and the first post.
// The sender's copy starts read.
func (s *MessageStore) CreateThread(t NewThread) (int64, error) {
	now := sqlTime(time.Now())
	var id int64
	err := withTx(s.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO message_threads (subject, context_type, context_id, created_by_user_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			clip(t.Subject, MaxSubject), t.ContextType, clip(t.ContextID, maxContextID), t.SenderID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("thread id: %w", err)
		}
		postID, err := insertPost(tx, id, t.SenderID, t.Body, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO message_participants (thread_id, user_id, last_read_post_id) VALUES (?, ?, ?), (?, ?, 0)`,
			id, t.SenderID, postID, id, t.RecipientID,
		); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
	return id, err
}

// Reply appends a post from senderID and returns the other participants.
// It returns sql.ErrNoRows when senderID is not in the thread.
func (s *MessageStore) Reply(threadID, senderID int64, body string) ([]int64, error) {
	now := sqlTime(time.Now())
	var others []int64
	err := withTx(s.db, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT user_id FROM message_participants WHERE thread_id = ?`, threadID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		member := false
		for rows.Next() {
			var uid int64
			if err := rows.Scan(&uid); err != nil {
				rows.Close()
				return fmt.Errorf("scan participant: %w", err)
			}
			if uid == senderID {
				member = true
			} else {
				others = append(others, uid)
			}
		}
		rows.Close()
		if !member {
			return sql.ErrNoRows
		}
		postID, err := insertPost(tx, threadID, senderID, body, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE message_threads SET updated_at = ? WHERE id = ?`, now, threadID); err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		_, err = tx.Exec(`UPDATE message_participants SET last_read_post_id = ? WHERE thread_id = ? AND user_id = ?`, postID, threadID, senderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return others, nil
}

func insertPost(tx *sql.Tx, threadID, senderID int64, body, now string) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO message_posts (thread_id, sender_user_id, body, created_at) VALUES (?, ?, ?, ?)`,
		threadID, senderID, clip(body, MaxMessageBody), now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

// ListThreads summarises userID's threads, most recently active first.
func (s *MessageStore) ListThreads(userID int64) ([]model.Thread, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.subject, t.context_type, t.context_id, t.created_by_user_id, t.created_at, t.updated_at,
		        COALESCE((SELECT body FROM message_posts p WHERE p.thread_id = t.id ORDER BY p.id DESC LIMIT 1), ''),
		        COALESCE((SELECT u.full_name FROM message_posts p JOIN users u ON u.id = p.sender_user_id
		                  WHERE p.thread_id = t.id ORDER BY p.id DESC LIMIT 1), ''),
		        (SELECT COUNT(1) FROM message_posts p WHERE p.thread_id = t.id AND p.sender_user_id != mp.user_id
		           AND p.id > mp.last_read_post_id)
		 FROM message_participants mp JOIN message_threads t ON t.id = mp.thread_id
		 WHERE mp.user_id = ?
		 ORDER BY t.updated_at DESC, t.id DESC LIMIT 200`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []model.Thread
	for rows.Next() {
		var t model.Thread
		var createdBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Subject, &t.ContextType, &t.ContextID, &createdBy, &t.CreatedAt, &t.UpdatedAt,
			&t.LastBody, &t.LastSender, &t.Unread); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.CreatedBy = nullInt(createdBy)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Open returns the thread and its posts for a participant and marks it read.
// The thread is nil when userID is not a participant.
func (s *MessageStore) Open(threadID, userID int64) (*model.Thread, []model.Post, error) {
	var t model.Thread
	var createdBy sql.NullInt64
	err := s.db.QueryRow(
		`SELECT t.id, t.subject, t.context_type, t.context_id, t.created_by_user_id, t.created_at, t.updated_at
		 FROM message_threads t JOIN message_participants mp ON mp.thread_id = t.id
		 WHERE t.id = ? AND mp.user_id = ?`,
		threadID, userID,
	).Scan(&t.ID, &t.Subject, &t.ContextType, &t.ContextID, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get thread: %w", err)
	}
	t.CreatedBy = nullInt(createdBy)

	rows, err := s.db.Query(
		`SELECT p.id, p.thread_id, p.sender_user_id, u.full_name, u.account_number, p.body, p.created_at
		 FROM message_posts p JOIN users u ON u.id = p.sender_user_id
		 WHERE p.thread_id = ? ORDER BY p.id LIMIT 400`,
		threadID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	var posts []model.Post
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.SenderUserID, &p.SenderName, &p.SenderAccount, &p.Body, &p.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(posts) == 0 {
		return &t, posts, nil
	}
	if _, err := s.db.Exec(
		`UPDATE message_participants SET last_read_post_id = ? WHERE thread_id = ? AND user_id = ?`,
		posts[len(posts)-1].ID, threadID, userID,
	); err != nil {
		return nil, nil, fmt.Errorf("mark thread read: %w", err)
	}
	return &t, posts, nil
}

// clip truncates s to n characters.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
