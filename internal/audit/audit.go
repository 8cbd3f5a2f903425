// Package audit records security-relevant actions in the audit_logs table.
package audit

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/model"
)

// MaxDetails caps the stored details text in characters.
const MaxDetails = 1000

type Store interface {
	Insert(e model.AuditEntry) error
}

// Logger writes audit entries. Failures are logged, never returned:
// an audit miss must not fail the request that triggered it.
type Logger struct {
	store  Store
	salt   []byte
	logger *slog.Logger
}

func New(store Store, salt []byte, logger *slog.Logger) *Logger {
	return &Logger{store: store, salt: salt, logger: logger}
}

// Entry describes one audited action.
type Entry struct {
	Actor      *model.User
	Action     string
	EntityType string
	EntityID   string
	Details    string
	Fields     map[string]string
}

// Record stores e. Without an explicit Actor the signed-in caller in ctx, if
// any, is credited.
func (l *Logger) Record(ctx context.Context, e Entry) {
	details := e.Details
	if len(e.Fields) > 0 {
		f := formatFields(e.Fields, l.salt)
		if details != "" {
			details += "; " + f
		} else {
			details = f
		}
	}
	row := model.AuditEntry{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    truncate(Redact(details), MaxDetails),
	}
	switch {
	case e.Actor != nil:
		id := e.Actor.ID
		row.ActorUserID = &id
		row.ActorRole = e.Actor.Role
	default:
		if who, ok := auth.IdentityFrom(ctx); ok {
			row.ActorUserID = &who.UserID
			row.ActorRole = who.Role
		}
	}
	if err := l.store.Insert(row); err != nil {
		l.logger.ErrorContext(ctx, "audit insert failed", "action", e.Action, "error", err)
	}
}

// Log is shorthand for Record without fields.
func (l *Logger) Log(ctx context.Context, actor *model.User, action, entityType, entityID, details string) {
	l.Record(ctx, Entry{Actor: actor, Action: action, EntityType: entityType, EntityID: entityID, Details: details})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
