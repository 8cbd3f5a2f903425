package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentCols = `id, payer_account, payer_role, payment_type, provider, amount, status, created_at`

func scanPayment(scanner interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	if err := scanner.Scan(&p.ID, &p.PayerAccount, &p.PayerRole, &p.PaymentType, &p.Provider, &p.Amount, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create records a submitted payment.
func (s *PaymentStore) Create(payerAccount, payerRole, paymentType, provider string, amount int64) (*model.Payment, error) {
	res, err := s.db.Exec(
		`INSERT INTO payments (payer_account, payer_role, payment_type, provider, amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, 'submitted', ?)`,
		payerAccount, payerRole, paymentType, provider, amount, sqlTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(id)
}

func (s *PaymentStore) Get(id int64) (*model.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *PaymentStore) ListByPayer(account string) ([]model.Payment, error) {
	return s.list(`WHERE payer_account = ? ORDER BY created_at DESC, id DESC`, account)
}

// ListForOwner returns rent payments from tenants leasing the owner's units.
func (s *PaymentStore) ListForOwner(ownerAccount string) ([]model.Payment, error) {
	return s.list(
		`WHERE payment_type = 'rent' AND payer_account IN (
			SELECT tenant_account FROM tenant_leases
			WHERE property_id IN (SELECT id FROM properties WHERE owner_account = ?)
		) ORDER BY created_at DESC, id DESC`,
		ownerAccount,
	)
}

func (s *PaymentStore) list(tail string, arg any) ([]model.Payment, error) {
	rows, err := s.db.Query(`SELECT `+paymentCols+` FROM payments `+tail, arg)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateStatusForOwner changes a rent payment's status when it belongs to a
// tenant of ownerAccount. It reports whether a row changed.
func (s *PaymentStore) UpdateStatusForOwner(id int64, ownerAccount, status string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE payments SET status = ? WHERE id = ? AND payer_account IN (
			SELECT tenant_account FROM tenant_leases
			WHERE property_id IN (SELECT id FROM properties WHERE owner_account = ?)
		)`,
		status, id, ownerAccount,
	)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
