package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

const listingRequestCols = `id, property_id, unit_id, title, price, location, beds, baths, category, description, status, submitted_by_user_id, approval_note, reviewed_at, created_at`

func scanListingRequest(scanner interface{ Scan(...any) error }) (*model.ListingRequest, error) {
	var r model.ListingRequest
	var unitID, submittedBy sql.NullInt64
	var reviewed sql.NullTime
	err := scanner.Scan(
		&r.ID, &r.PropertyID, &unitID, &r.Title, &r.Price, &r.Location, &r.Beds, &r.Baths,
		&r.Category, &r.Description, &r.Status, &submittedBy, &r.ApprovalNote, &reviewed, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.UnitID = nullInt(unitID)
	r.SubmittedBy = nullInt(submittedBy)
	r.ReviewedAt = nullTime(reviewed)
	return &r, nil
}

func (s *ListingStore) CreateRequest(r model.ListingRequest) (*model.ListingRequest, error) {
	res, err := s.db.Exec(
		`INSERT INTO listing_requests (property_id, unit_id, title, price, location, beds, baths, category, description, submitted_by_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PropertyID, r.UnitID, r.Title, r.Price, r.Location, r.Beds, r.Baths, r.Category,
		r.Description, r.SubmittedBy, sqlTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert listing request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRequest(id)
}

func (s *ListingStore) GetRequest(id int64) (*model.ListingRequest, error) {
	r, err := scanListingRequest(s.db.QueryRow(`SELECT `+listingRequestCols+` FROM listing_requests WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing request: %w", err)
	}
	return r, nil
}

// ListRequests returns requests with the given status ("" for all), oldest first.
func (s *ListingStore) ListRequests(status string) ([]model.ListingRequest, error) {
	q := `SELECT ` + listingRequestCols + ` FROM listing_requests`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	rows, err := s.db.Query(q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list listing requests: %w", err)
	}
	defer rows.Close()

	var out []model.ListingRequest
	for rows.Next() {
		r, err := scanListingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *ListingStore) CountPendingRequests() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM listing_requests WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listing requests: %w", err)
	}
	return n, nil
}

// ApproveRequest publishes a pending request as a listing and returns the
// new listing id. Missing or already reviewed requests return sql.ErrNoRows.
func (s *ListingStore) ApproveRequest(id int64, note string) (int64, error) {
	var listingID int64
	err := withTx(s.db, func(tx *sql.Tx) error {
		r, err := scanListingRequest(tx.QueryRow(
			`SELECT `+listingRequestCols+` FROM listing_requests WHERE id = ? AND status = 'pending'`, id,
		))
		if err != nil {
			return err
		}
		pid := r.PropertyID
		listingID, err = insertListing(tx, model.Listing{
			Title:       r.Title,
			Price:       r.Price,
			Location:    r.Location,
			Beds:        r.Beds,
			Baths:       r.Baths,
			Category:    r.Category,
			Description: r.Description,
			PropertyID:  &pid,
			IsApproved:  true,
			IsAvailable: true,
		})
		if err != nil {
			return err
		}
		return reviewRequest(tx, id, "approved", note)
	})
	if err != nil {
		return 0, err
	}
	return listingID, nil
}

func (s *ListingStore) RejectRequest(id int64, note string) error {
	return withTx(s.db, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(`SELECT status FROM listing_requests WHERE id = ? AND status = 'pending'`, id).Scan(&status); err != nil {
			return err
		}
		return reviewRequest(tx, id, "rejected", note)
	})
}

func reviewRequest(tx *sql.Tx, id int64, status, note string) error {
	_, err := tx.Exec(
		`UPDATE listing_requests SET status = ?, approval_note = ?, reviewed_at = ? WHERE id = ?`,
		status, note, sqlTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("review listing request: %w", err)
	}
	return nil
}
