package model

import "time"

// Listing categories.
var ListingCategories = []string{
	"Short Term Rental",
	"Long Term Rental",
	"Vehicle Rental",
	"Sell Your Property to Us",
}

type Listing struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Price       int64     `json:"price"`
	Location    string    `json:"location"`
	Beds        int       `json:"beds"`
	Baths       int       `json:"baths"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	PropertyID  *string   `json:"property_id"`
	IsApproved  bool      `json:"is_approved"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListingFilter narrows public listing searches. Zero values are ignored.
type ListingFilter struct {
	MaxPrice int64
	Location string
	MinBeds  int
	Category string
}

type ListingRequest struct {
	ID           int64      `json:"id"`
	PropertyID   string     `json:"property_id"`
	UnitID       *int64     `json:"unit_id"`
	Title        string     `json:"title"`
	Price        int64      `json:"price"`
	Location     string     `json:"location"`
	Beds         int        `json:"beds"`
	Baths        int        `json:"baths"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	SubmittedBy  *int64     `json:"submitted_by_user_id"`
	ApprovalNote string     `json:"approval_note"`
	ReviewedAt   *time.Time `json:"reviewed_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Inquiry and application workflow states.
var (
	InquiryStatuses     = []string{"new", "open", "closed"}
	ApplicationStatuses = []string{"submitted", "under_review", "approved", "denied"}
)

type Inquiry struct {
	ID           int64     `json:"id"`
	ListingID    *int64    `json:"listing_id"`
	ListingTitle string    `json:"listing_title,omitempty"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Body         string    `json:"body"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type Application struct {
	ID              int64     `json:"id"`
	ListingID       int64     `json:"listing_id"`
	ListingTitle    string    `json:"listing_title,omitempty"`
	ApplicantUserID *int64    `json:"applicant_user_id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Income          string    `json:"income"`
	Notes           string    `json:"notes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
