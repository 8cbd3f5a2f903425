package store

import (
	"database/sql"
	"testing"

	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, us *UserStore, username, role string) *model.User {
	t.Helper()
	u, err := us.Create(NewUser{
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		Role:         role,
		PasswordSalt: "00",
		PasswordHash: "00",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// seedProperty creates an owner with one property holding the given units.
func seedProperty(t *testing.T, db *sql.DB, labels ...string) (*model.User, *model.Property) {
	t.Helper()
	owner := mustCreateUser(t, NewUserStore(db), "owner", model.RolePropertyManager)
	p, err := NewPropertyStore(db).Create(NewProperty{
		OwnerAccount: owner.AccountNumber,
		Code:         "harbour",
		Name:         "Harbour View",
		PropertyType: "Apartment",
		Location:     "Nassau",
		UnitLabels:   labels,
		Beds:         2,
		Baths:        1,
		Rent:         1500,
	})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return owner, p
}
