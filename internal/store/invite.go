package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

var (
	ErrUnitOccupied    = errors.New("unit is already occupied")
	ErrInviteDuplicate = errors.New("a pending invite already exists for this tenant and unit")
)

// Revoke reasons recorded on cancelled invites.
const (
	RevokeExpired     = "expired"
	RevokeUnavailable = "unavailable"
	RevokeSuperseded  = "superseded"
	RevokeDeclined    = "declined_by_tenant"
)

type InviteStore struct {
	db *sql.DB
}

func NewInviteStore(db *sql.DB) *InviteStore {
	return &InviteStore{db: db}
}

const inviteCols = `id, sender_user_id, tenant_user_id, tenant_account, property_id, unit_label, message, status, revoke_reason, expires_at, responded_at, created_at`

func scanInvite(scanner interface{ Scan(...any) error }) (*model.Invite, error) {
	var inv model.Invite
	var responded sql.NullTime
	err := scanner.Scan(
		&inv.ID, &inv.SenderUserID, &inv.TenantUserID, &inv.TenantAccount, &inv.PropertyID,
		&inv.UnitLabel, &inv.Message, &inv.Status, &inv.RevokeReason, &inv.ExpiresAt,
		&responded, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.RespondedAt = nullTime(responded)
	return &inv, nil
}

// Create records a pending invite for an unoccupied unit.
func (s *InviteStore) Create(senderID int64, tenant *model.User, propertyID, unitLabel, message string, ttl time.Duration) (*model.Invite, error) {
	var id int64
	err := withTx(s.db, func(tx *sql.Tx) error {
		var occupied int
		err := tx.QueryRow(`SELECT is_occupied FROM units WHERE property_id = ? AND unit_label = ?`, propertyID, unitLabel).Scan(&occupied)
		if err == sql.ErrNoRows {
			return ErrInviteUnavailable
		}
		if err != nil {
			return fmt.Errorf("get unit: %w", err)
		}
		var busy int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM tenant_leases WHERE property_id = ? AND unit_label = ? AND is_active = 1`,
			propertyID, unitLabel,
		).Scan(&busy); err != nil {
			return fmt.Errorf("check unit lease: %w", err)
		}
		if occupied != 0 || busy > 0 {
			return ErrUnitOccupied
		}

		var dup int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM tenant_property_invites
			 WHERE tenant_account = ? AND property_id = ? AND unit_label = ? AND status = 'pending'`,
			tenant.AccountNumber, propertyID, unitLabel,
		).Scan(&dup); err != nil {
			return fmt.Errorf("check duplicate invite: %w", err)
		}
		if dup > 0 {
			return ErrInviteDuplicate
		}

		now := time.Now()
		res, err := tx.Exec(
			`INSERT INTO tenant_property_invites
			 (sender_user_id, tenant_user_id, tenant_account, property_id, unit_label, message, status, expires_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
			senderID, tenant.ID, tenant.AccountNumber, propertyID, unitLabel, message,
			sqlTime(now.Add(ttl)), sqlTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *InviteStore) Get(id int64) (*model.Invite, error) {
	inv, err := scanInvite(s.db.QueryRow(`SELECT `+inviteCols+` FROM tenant_property_invites WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

// ListForTenant returns the tenant's invites, pending first.
func (s *InviteStore) ListForTenant(tenantAccount string) ([]model.Invite, error) {
	return s.list(
		`WHERE tenant_account = ? ORDER BY CASE status WHEN 'pending' THEN 0 ELSE 1 END, created_at DESC, id DESC`,
		tenantAccount,
	)
}

func (s *InviteStore) ListBySender(senderID int64) ([]model.Invite, error) {
	return s.list(`WHERE sender_user_id = ? ORDER BY created_at DESC, id DESC`, senderID)
}

func (s *InviteStore) list(tail string, arg any) ([]model.Invite, error) {
	rows, err := s.db.Query(`SELECT `+inviteCols+` FROM tenant_property_invites `+tail, arg)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var out []model.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Respond applies the tenant's answer to a pending invite. An accepted invite
// moves the tenant onto the unit: other active leases end and free their
// units, a manager-signed lease starts, and competing pending invites for the
// tenant or the unit are cancelled. Expired invites and units taken by
// someone else cancel the invite and return ErrInviteExpired or
// ErrInviteUnavailable; the cancellation is still committed.
func (s *InviteStore) Respond(id int64, tenantAccount string, accept bool) (*model.Invite, error) {
	var outcome error
	err := withTx(s.db, func(tx *sql.Tx) error {
		inv, err := scanInvite(tx.QueryRow(
			`SELECT `+inviteCols+` FROM tenant_property_invites WHERE id = ? AND tenant_account = ?`,
			id, tenantAccount,
		))
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return fmt.Errorf("get invite: %w", err)
		}
		if inv.Status != model.InvitePending {
			return ErrInviteClosed
		}

		now := time.Now()
		if !inv.ExpiresAt.After(now) {
			outcome = ErrInviteExpired
			return cancelInvite(tx, id, RevokeExpired, now)
		}

		if !accept {
			_, err := tx.Exec(
				`UPDATE tenant_property_invites SET status = 'declined', revoke_reason = ?, responded_at = ? WHERE id = ?`,
				RevokeDeclined, sqlTime(now), id,
			)
			if err != nil {
				return fmt.Errorf("decline invite: %w", err)
			}
			return nil
		}

		var occupied int
		err = tx.QueryRow(`SELECT is_occupied FROM units WHERE property_id = ? AND unit_label = ?`, inv.PropertyID, inv.UnitLabel).Scan(&occupied)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("get unit: %w", err)
		}
		unitMissing := err == sql.ErrNoRows
		var otherLeases int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM tenant_leases WHERE property_id = ? AND unit_label = ? AND is_active = 1 AND tenant_account != ?`,
			inv.PropertyID, inv.UnitLabel, tenantAccount,
		).Scan(&otherLeases); err != nil {
			return fmt.Errorf("check unit lease: %w", err)
		}
		if unitMissing || otherLeases > 0 || (occupied != 0 && !holdsUnit(tx, tenantAccount, inv.PropertyID, inv.UnitLabel)) {
			outcome = ErrInviteUnavailable
			return cancelInvite(tx, id, RevokeUnavailable, now)
		}

		if _, err := tx.Exec(
			`UPDATE units SET is_occupied = 0 WHERE (property_id, unit_label) IN
			 (SELECT property_id, unit_label FROM tenant_leases WHERE tenant_account = ? AND is_active = 1)`,
			tenantAccount,
		); err != nil {
			return fmt.Errorf("free previous units: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE tenant_leases SET is_active = 0, end_date = date('now') WHERE tenant_account = ? AND is_active = 1`,
			tenantAccount,
		); err != nil {
			return fmt.Errorf("end previous leases: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO tenant_leases (tenant_account, property_id, unit_label, start_date, is_active, manager_signed_at)
			 VALUES (?, ?, ?, date('now'), 1, ?)`,
			tenantAccount, inv.PropertyID, inv.UnitLabel, sqlTime(now),
		); err != nil {
			return fmt.Errorf("insert lease: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE units SET is_occupied = 1 WHERE property_id = ? AND unit_label = ?`,
			inv.PropertyID, inv.UnitLabel,
		); err != nil {
			return fmt.Errorf("occupy unit: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE tenant_property_invites SET status = 'accepted', responded_at = ? WHERE id = ?`,
			sqlTime(now), id,
		); err != nil {
			return fmt.Errorf("accept invite: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE tenant_property_invites SET status = 'cancelled', revoke_reason = ?, responded_at = ?
			 WHERE status = 'pending' AND id != ?
			   AND (tenant_account = ? OR (property_id = ? AND unit_label = ?))`,
			RevokeSuperseded, sqlTime(now), id, tenantAccount, inv.PropertyID, inv.UnitLabel,
		); err != nil {
			return fmt.Errorf("cancel competing invites: %w", err)
		}
		return nil
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return inv, outcome
}

func holdsUnit(tx *sql.Tx, tenantAccount, propertyID, unitLabel string) bool {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM tenant_leases WHERE tenant_account = ? AND property_id = ? AND unit_label = ? AND is_active = 1`,
		tenantAccount, propertyID, unitLabel,
	).Scan(&n)
	return err == nil && n > 0
}

func cancelInvite(tx *sql.Tx, id int64, reason string, now time.Time) error {
	_, err := tx.Exec(
		`UPDATE tenant_property_invites SET status = 'cancelled', revoke_reason = ?, responded_at = ? WHERE id = ?`,
		reason, sqlTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("cancel invite: %w", err)
	}
	return nil
}

// CancelExpired cancels pending invites whose expiry has passed.
func (s *InviteStore) CancelExpired() (int64, error) {
	now := sqlTime(time.Now())
	res, err := s.db.Exec(
		`UPDATE tenant_property_invites SET status = 'cancelled', revoke_reason = ?, responded_at = ?
		 WHERE status = 'pending' AND expires_at <= ?`,
		RevokeExpired, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel expired invites: %w", err)
	}
	return res.RowsAffected()
}
