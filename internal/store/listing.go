package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type ListingStore struct {
	db *sql.DB
}

func NewListingStore(db *sql.DB) *ListingStore {
	return &ListingStore{db: db}
}

const listingCols = `id, title, price, location, beds, baths, category, image_url, description, property_id, is_approved, is_available, created_at`

func scanListing(scanner interface{ Scan(...any) error }) (*model.Listing, error) {
	var l model.Listing
	var propertyID sql.NullString
	var approved, available int
	err := scanner.Scan(
		&l.ID, &l.Title, &l.Price, &l.Location, &l.Beds, &l.Baths, &l.Category,
		&l.ImageURL, &l.Description, &propertyID, &approved, &available, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if propertyID.Valid {
		l.PropertyID = &propertyID.String
	}
	l.IsApproved = approved != 0
	l.IsAvailable = available != 0
	return &l, nil
}

// Search returns approved, available listings matching f, newest first.
func (s *ListingStore) Search(f model.ListingFilter) ([]model.Listing, error) {
	conds := []string{"is_approved = 1", "is_available = 1"}
	var args []any
	if f.MaxPrice > 0 {
		conds = append(conds, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.Location != "" {
		conds = append(conds, "location = ?")
		args = append(args, f.Location)
	}
	if f.MinBeds > 0 {
		conds = append(conds, "beds >= ?")
		args = append(args, f.MinBeds)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}

	rows, err := s.db.Query(
		`SELECT `+listingCols+` FROM listings WHERE `+strings.Join(conds, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()

	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Locations lists distinct locations of visible listings for filter menus.
func (s *ListingStore) Locations() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT location FROM listings WHERE is_approved = 1 AND is_available = 1 ORDER BY location`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *ListingStore) Get(id int64) (*model.Listing, error) {
	l, err := scanListing(s.db.QueryRow(`SELECT `+listingCols+` FROM listings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

// Create inserts a listing directly (seed data, approvals).
func (s *ListingStore) Create(l model.Listing) (*model.Listing, error) {
	id, err := insertListing(s.db, l)
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertListing(db execer, l model.Listing) (int64, error) {
	var propertyID sql.NullString
	if l.PropertyID != nil {
		propertyID = sql.NullString{String: *l.PropertyID, Valid: true}
	}
	res, err := db.Exec(
		`INSERT INTO listings (title, price, location, beds, baths, category, image_url, description, property_id, is_approved, is_available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Title, l.Price, l.Location, l.Beds, l.Baths, l.Category, l.ImageURL, l.Description,
		propertyID, boolInt(l.IsApproved), boolInt(l.IsAvailable), sqlTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}
	return res.LastInsertId()
}

// OwnerAccount returns the account owning the listing's property, or "".
func (s *ListingStore) OwnerAccount(listingID int64) (string, error) {
	var owner string
	err := s.db.QueryRow(
		`SELECT p.owner_account FROM listings l JOIN properties p ON p.id = l.property_id WHERE l.id = ?`,
		listingID,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get listing owner: %w", err)
	}
	return owner, nil
}

// ToggleFavorite flips the favorite flag and reports the new state.
func (s *ListingStore) ToggleFavorite(userID, listingID int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM favorites WHERE user_id = ? AND listing_id = ?`, userID, listingID)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	if _, err := s.db.Exec(`INSERT INTO favorites (user_id, listing_id) VALUES (?, ?)`, userID, listingID); err != nil {
		return false, fmt.Errorf("add favorite: %w", err)
	}
	return true, nil
}

func (s *ListingStore) FavoriteIDs(userID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT listing_id FROM favorites WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *ListingStore) CreateInquiry(q model.Inquiry) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO inquiries (listing_id, full_name, email, phone, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ListingID, q.FullName, q.Email, q.Phone, q.Body, sqlTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert inquiry: %w", err)
	}
	return res.LastInsertId()
}

func (s *ListingStore) CreateApplication(a model.Application) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO applications (listing_id, applicant_user_id, full_name, email, phone, income, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ListingID, a.ApplicantUserID, a.FullName, a.Email, a.Phone, a.Income, a.Notes, sqlTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert application: %w", err)
	}
	return res.LastInsertId()
}
