package store

import (
	"database/sql"
	"fmt"

	"github.com/atlasbahamas/atlas/internal/model"
)

// leadScope limits inquiry and application queries to a manager's own
// listings plus listings no property owns, which every manager triages. An
// empty owner (admins) sees everything.
func leadScope(ownerAccount string) (string, []any) {
	if ownerAccount == "" {
		return "", nil
	}
	return ` AND (l.id IS NULL OR l.property_id IS NULL
	          OR l.property_id IN (SELECT id FROM properties WHERE owner_account = ?))`, []any{ownerAccount}
}

// ListInquiries returns inquiries visible to ownerAccount, newest first.
// status filters when non-empty.
func (s *ListingStore) ListInquiries(ownerAccount, status string) ([]model.Inquiry, error) {
	scope, args := leadScope(ownerAccount)
	q := `SELECT i.id, i.listing_id, COALESCE(l.title, ''), i.full_name, i.email, i.phone, i.body, i.status, i.created_at
	      FROM inquiries i LEFT JOIN listings l ON l.id = i.listing_id WHERE 1 = 1` + scope
	if status != "" {
		q += ` AND i.status = ?`
		args = append(args, status)
	}
	rows, err := s.db.Query(q+` ORDER BY i.id DESC LIMIT 500`, args...)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	var out []model.Inquiry
	for rows.Next() {
		var in model.Inquiry
		var listingID sql.NullInt64
		if err := rows.Scan(&in.ID, &listingID, &in.ListingTitle, &in.FullName, &in.Email, &in.Phone, &in.Body, &in.Status, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		in.ListingID = nullInt(listingID)
		out = append(out, in)
	}
	return out, rows.Err()
}

// SetInquiryStatus updates an inquiry visible to ownerAccount. It reports
// false when no such inquiry is in scope.
func (s *ListingStore) SetInquiryStatus(id int64, ownerAccount, status string) (bool, error) {
	scope, args := leadScope(ownerAccount)
	res, err := s.db.Exec(
		`UPDATE inquiries SET status = ? WHERE id = ? AND id IN (
		   SELECT i.id FROM inquiries i LEFT JOIN listings l ON l.id = i.listing_id WHERE 1 = 1`+scope+`)`,
		append([]any{status, id}, args...)...,
	)
	if err != nil {
		return false, fmt.Errorf("update inquiry: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *ListingStore) ListApplications(ownerAccount, status string) ([]model.Application, error) {
	scope, args := leadScope(ownerAccount)
	q := `SELECT a.id, a.listing_id, COALESCE(l.title, ''), a.applicant_user_id, a.full_name, a.email, a.phone,
	             a.income, a.notes, a.status, a.created_at
	      FROM applications a LEFT JOIN listings l ON l.id = a.listing_id WHERE 1 = 1` + scope
	if status != "" {
		q += ` AND a.status = ?`
		args = append(args, status)
	}
	rows, err := s.db.Query(q+` ORDER BY a.id DESC LIMIT 500`, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []model.Application
	for rows.Next() {
		var a model.Application
		var applicant sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ListingID, &a.ListingTitle, &applicant, &a.FullName, &a.Email, &a.Phone,
			&a.Income, &a.Notes, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		a.ApplicantUserID = nullInt(applicant)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetApplicationStatus updates an application visible to ownerAccount and
// returns it, or nil when none is in scope.
func (s *ListingStore) SetApplicationStatus(id int64, ownerAccount, status string) (*model.Application, error) {
	scope, args := leadScope(ownerAccount)
	res, err := s.db.Exec(
		`UPDATE applications SET status = ? WHERE id = ? AND id IN (
		   SELECT a.id FROM applications a LEFT JOIN listings l ON l.id = a.listing_id WHERE 1 = 1`+scope+`)`,
		append([]any{status, id}, args...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	var a model.Application
	var applicant sql.NullInt64
	err = s.db.QueryRow(
		`SELECT id, listing_id, applicant_user_id, full_name, email, status FROM applications WHERE id = ?`, id,
	).Scan(&a.ID, &a.ListingID, &applicant, &a.FullName, &a.Email, &a.Status)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	a.ApplicantUserID = nullInt(applicant)
	return &a, nil
}
