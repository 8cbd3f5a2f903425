package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Domain errors returned by stores. Handlers map them to user-facing messages.
var (
	ErrLastAdmin         = errors.New("at least one admin account must remain")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInviteUnavailable = errors.New("unit is no longer available")
	ErrInviteExpired     = errors.New("invite has expired")
	ErrInviteClosed      = errors.New("invite is no longer pending")
	ErrAlreadySigned     = errors.New("lease already signed")
	ErrLeaseEnded        = errors.New("lease is already inactive")
)

const sqlTimeLayout = "2006-01-02 15:04:05"

// sqlTime renders t in the layout SQLite's datetime() produces so text
// comparisons against datetime('now') order correctly.
func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
