package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/atlasbahamas/atlas/internal/model"
)

func seedListings(t *testing.T, ls *ListingStore) {
	t.Helper()
	rows := []model.Listing{
		{Title: "Cable Beach condo", Price: 2500, Location: "Nassau", Beds: 2, Baths: 2, Category: "Long Term Rental", IsApproved: true, IsAvailable: true},
		{Title: "Cottage", Price: 1200, Location: "Exuma", Beds: 1, Baths: 1, Category: "Short Term Rental", IsApproved: true, IsAvailable: true},
		{Title: "Family home", Price: 3500, Location: "Nassau", Beds: 4, Baths: 3, Category: "Long Term Rental", IsApproved: true, IsAvailable: true},
		{Title: "Hidden", Price: 900, Location: "Nassau", Beds: 3, Baths: 1, Category: "Long Term Rental", IsApproved: false, IsAvailable: true},
		{Title: "Taken", Price: 900, Location: "Nassau", Beds: 3, Baths: 1, Category: "Long Term Rental", IsApproved: true, IsAvailable: false},
	}
	for _, l := range rows {
		if _, err := ls.Create(l); err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}
}

func TestListingSearchFilters(t *testing.T) {
	ls := NewListingStore(setupTestDB(t))
	seedListings(t, ls)

	tests := []struct {
		name   string
		filter model.ListingFilter
		want   int
	}{
		{"visible only", model.ListingFilter{}, 3},
		{"max price", model.ListingFilter{MaxPrice: 2500}, 2},
		{"location", model.ListingFilter{Location: "Nassau"}, 2},
		{"min beds", model.ListingFilter{MinBeds: 3}, 1},
		{"category", model.ListingFilter{Category: "Short Term Rental"}, 1},
		{"combined", model.ListingFilter{Location: "Nassau", MaxPrice: 3000}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ls.Search(tt.filter)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			for _, l := range got {
				if !l.IsApproved || !l.IsAvailable {
					t.Errorf("listing %q should not be visible", l.Title)
				}
			}
		})
	}
}

func TestListingSearchEmptyIsNotNil(t *testing.T) {
	ls := NewListingStore(setupTestDB(t))
	got, err := ls.Search(model.ListingFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got == nil {
		t.Error("expected empty slice for JSON encoding, got nil")
	}
}

func TestListingRequestApprove(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	ls := NewListingStore(db)

	req, err := ls.CreateRequest(model.ListingRequest{
		PropertyID: p.ID, Title: "Harbour View 1", Price: 1500, Location: "Nassau",
		Beds: 2, Baths: 1, Category: "Long Term Rental", SubmittedBy: &owner.ID,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	listingID, err := ls.ApproveRequest(req.ID, "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	l, _ := ls.Get(listingID)
	if l == nil || !l.IsApproved || l.PropertyID == nil || *l.PropertyID != p.ID {
		t.Fatalf("listing = %+v", l)
	}
	acct, _ := ls.OwnerAccount(listingID)
	if acct != owner.AccountNumber {
		t.Errorf("owner account = %q, want %q", acct, owner.AccountNumber)
	}

	if _, err := ls.ApproveRequest(req.ID, ""); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second approve err = %v, want sql.ErrNoRows", err)
	}
	reviewed, _ := ls.GetRequest(req.ID)
	if reviewed.Status != "approved" || reviewed.ApprovalNote != "looks good" || reviewed.ReviewedAt == nil {
		t.Errorf("request = %+v", reviewed)
	}
}

func TestToggleFavorite(t *testing.T) {
	db := setupTestDB(t)
	ls := NewListingStore(db)
	u := mustCreateUser(t, NewUserStore(db), "alice", model.RoleTenant)
	l, _ := ls.Create(model.Listing{Title: "x", Price: 1, Location: "Nassau", Beds: 1, Baths: 1, Category: "Long Term Rental", IsApproved: true, IsAvailable: true})

	on, err := ls.ToggleFavorite(u.ID, l.ID)
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v", on, err)
	}
	favs, _ := ls.FavoriteIDs(u.ID)
	if !favs[l.ID] {
		t.Error("favorite not recorded")
	}
	on, err = ls.ToggleFavorite(u.ID, l.ID)
	if err != nil || on {
		t.Fatalf("second toggle = %v, %v", on, err)
	}
}
