// Package handler holds the page and API handlers behind the router. Each
// area (auth, public, tenant, manager, admin, notifications) has its own
// handler type built from the stores it needs.
package handler

import (
	"context"
	"log/slog"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/store"
)

// minLen reports whether s has at least n characters after trimming.
func minLen(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= n
}

func validEmail(s string) bool {
	if !strings.Contains(s, "@") {
		return false
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// notifyRole sends a notification to every user holding role.
func notifyRole(ctx context.Context, n *notify.Notifier, users *store.UserStore, role, category, text, link string, logger *slog.Logger) {
	all, err := users.List()
	if err != nil {
		logger.Error("list users for notification", "role", role, "error", err)
		return
	}
	for _, u := range all {
		if u.Role != role {
			continue
		}
		if _, err := n.Notify(ctx, u.ID, category, text, link); err != nil {
			logger.Warn("notify user", "user_id", u.ID, "error", err)
		}
	}
}

// notifyListingOwner tells the manager owning a listing's property, or every
// property manager when the listing has no owner.
func notifyListingOwner(ctx context.Context, n *notify.Notifier, listings *store.ListingStore, users *store.UserStore, listingID int64, category, text, link string, logger *slog.Logger) {
	owner := ""
	if listingID > 0 {
		var err error
		owner, err = listings.OwnerAccount(listingID)
		if err != nil {
			logger.Error("listing owner lookup", "listing_id", listingID, "error", err)
		}
	}
	if owner == "" {
		notifyRole(ctx, n, users, model.RolePropertyManager, category, text, link, logger)
		return
	}
	if err := n.NotifyAccount(ctx, owner, category, text, link); err != nil {
		logger.Warn("notify listing owner", "account", owner, "error", err)
	}
}

func oneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, v)
}
