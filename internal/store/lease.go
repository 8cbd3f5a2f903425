package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type LeaseStore struct {
	db *sql.DB
}

func NewLeaseStore(db *sql.DB) *LeaseStore {
	return &LeaseStore{db: db}
}

const leaseCols = `id, tenant_account, property_id, unit_label, start_date, end_date, is_active, manager_signed_at, tenant_signed_at, esign_ip, created_at`

func scanLease(scanner interface{ Scan(...any) error }) (*model.Lease, error) {
	var l model.Lease
	var endDate sql.NullString
	var active int
	var mgrSigned, tenantSigned sql.NullTime
	err := scanner.Scan(
		&l.ID, &l.TenantAccount, &l.PropertyID, &l.UnitLabel, &l.StartDate, &endDate,
		&active, &mgrSigned, &tenantSigned, &l.ESignIP, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		l.EndDate = &endDate.String
	}
	l.IsActive = active != 0
	l.ManagerSignedAt = nullTime(mgrSigned)
	l.TenantSignedAt = nullTime(tenantSigned)
	return &l, nil
}

// Active returns the tenant's current lease, if any.
func (s *LeaseStore) Active(tenantAccount string) (*model.Lease, error) {
	l, err := scanLease(s.db.QueryRow(
		`SELECT `+leaseCols+` FROM tenant_leases WHERE tenant_account = ? AND is_active = 1 ORDER BY id DESC LIMIT 1`,
		tenantAccount,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active lease: %w", err)
	}
	return l, nil
}

func (s *LeaseStore) ListByOwner(ownerAccount string) ([]model.Lease, error) {
	rows, err := s.db.Query(
		`SELECT `+leaseCols+` FROM tenant_leases
		 WHERE property_id IN (SELECT id FROM properties WHERE owner_account = ?)
		 ORDER BY is_active DESC, id DESC`,
		ownerAccount,
	)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	defer rows.Close()

	var out []model.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Sign records the tenant's e-signature on their active lease. Only the
// lease holder may sign, and only once.
func (s *LeaseStore) Sign(leaseID int64, tenantAccount, ip string) error {
	return withTx(s.db, func(tx *sql.Tx) error {
		l, err := scanLease(tx.QueryRow(`SELECT `+leaseCols+` FROM tenant_leases WHERE id = ?`, leaseID))
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return fmt.Errorf("get lease: %w", err)
		}
		if l.TenantAccount != tenantAccount || !l.IsActive {
			return sql.ErrNoRows
		}
		if l.TenantSignedAt != nil {
			return ErrAlreadySigned
		}
		_, err = tx.Exec(
			`UPDATE tenant_leases SET tenant_signed_at = ?, esign_ip = ? WHERE id = ?`,
			sqlTime(time.Now()), ip, leaseID,
		)
		if err != nil {
			return fmt.Errorf("sign lease: %w", err)
		}
		return nil
	})
}

// End closes an active lease on a property owned by ownerAccount (any
// property when ownerAccount is empty) and frees its unit. It returns nil
// when the lease is not in scope.
func (s *LeaseStore) End(leaseID int64, ownerAccount string) (*model.Lease, error) {
	var ended *model.Lease
	err := withTx(s.db, func(tx *sql.Tx) error {
		q := `SELECT ` + prefixed("l", leaseCols) + ` FROM tenant_leases l JOIN properties p ON p.id = l.property_id WHERE l.id = ?`
		args := []any{leaseID}
		if ownerAccount != "" {
			q += ` AND p.owner_account = ?`
			args = append(args, ownerAccount)
		}
		l, err := scanLease(tx.QueryRow(q, args...))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get lease: %w", err)
		}
		if !l.IsActive {
			return ErrLeaseEnded
		}
		if _, err := tx.Exec(`UPDATE tenant_leases SET is_active = 0, end_date = date('now') WHERE id = ?`, leaseID); err != nil {
			return fmt.Errorf("end lease: %w", err)
		}
		if _, err := tx.Exec(`UPDATE units SET is_occupied = 0 WHERE property_id = ? AND unit_label = ?`, l.PropertyID, l.UnitLabel); err != nil {
			return fmt.Errorf("free unit: %w", err)
		}
		l.IsActive = false
		ended = l
		return nil
	})
	return ended, err
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}
