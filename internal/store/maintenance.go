package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type MaintenanceStore struct {
	db *sql.DB
}

func NewMaintenanceStore(db *sql.DB) *MaintenanceStore {
	return &MaintenanceStore{db: db}
}

const maintenanceCols = `id, tenant_account, tenant_name, property_id, unit_label, description, urgency, status, photo_path, created_at, updated_at`

func scanMaintenance(scanner interface{ Scan(...any) error }) (*model.MaintenanceRequest, error) {
	var m model.MaintenanceRequest
	var updated sql.NullTime
	err := scanner.Scan(
		&m.ID, &m.TenantAccount, &m.TenantName, &m.PropertyID, &m.UnitLabel,
		&m.Description, &m.Urgency, &m.Status, &m.PhotoPath, &m.CreatedAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	m.UpdatedAt = nullTime(updated)
	return &m, nil
}

func (s *MaintenanceStore) Create(m model.MaintenanceRequest) (*model.MaintenanceRequest, error) {
	res, err := s.db.Exec(
		`INSERT INTO maintenance_requests (tenant_account, tenant_name, property_id, unit_label, description, urgency, status, photo_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'open', ?, ?)`,
		m.TenantAccount, m.TenantName, m.PropertyID, m.UnitLabel, m.Description, m.Urgency,
		m.PhotoPath, sqlTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert maintenance request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(id)
}

func (s *MaintenanceStore) Get(id int64) (*model.MaintenanceRequest, error) {
	m, err := scanMaintenance(s.db.QueryRow(`SELECT `+maintenanceCols+` FROM maintenance_requests WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get maintenance request: %w", err)
	}
	return m, nil
}

func (s *MaintenanceStore) ListByTenant(account string) ([]model.MaintenanceRequest, error) {
	return s.list(`WHERE tenant_account = ? ORDER BY created_at DESC, id DESC`, account)
}

func (s *MaintenanceStore) ListForOwner(ownerAccount string) ([]model.MaintenanceRequest, error) {
	return s.list(
		`WHERE property_id IN (SELECT id FROM properties WHERE owner_account = ?)
		 ORDER BY CASE status WHEN 'closed' THEN 1 ELSE 0 END, created_at DESC, id DESC`,
		ownerAccount,
	)
}

func (s *MaintenanceStore) list(tail string, arg any) ([]model.MaintenanceRequest, error) {
	rows, err := s.db.Query(`SELECT `+maintenanceCols+` FROM maintenance_requests `+tail, arg)
	if err != nil {
		return nil, fmt.Errorf("list maintenance requests: %w", err)
	}
	defer rows.Close()

	var out []model.MaintenanceRequest
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan maintenance request: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateStatusForOwner changes status on a request for one of the owner's
// properties and reports whether a row changed.
func (s *MaintenanceStore) UpdateStatusForOwner(id int64, ownerAccount, status string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE maintenance_requests SET status = ?, updated_at = ?
		 WHERE id = ? AND property_id IN (SELECT id FROM properties WHERE owner_account = ?)`,
		status, sqlTime(time.Now()), id, ownerAccount,
	)
	if err != nil {
		return false, fmt.Errorf("update maintenance status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *MaintenanceStore) CountOpen() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM maintenance_requests WHERE status != 'closed'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count maintenance: %w", err)
	}
	return n, nil
}
