package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestUserCreate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.Create(NewUser{
		Username: "alice", Email: " Alice@Example.com ", FullName: "Alice",
		Role: model.RoleTenant, PasswordSalt: "aa", PasswordHash: "bb",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if !regexp.MustCompile(`^A\d{5}$`).MatchString(u.AccountNumber) {
		t.Errorf("account number = %q, want A#####", u.AccountNumber)
	}
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	mustCreateUser(t, us, "alice", model.RoleTenant)

	_, err := us.Create(NewUser{Username: "alice", Email: "x@example.com", Role: model.RoleTenant})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestFindForLoginCaseInsensitive(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	created := mustCreateUser(t, us, "Alice", model.RoleTenant)

	u, err := us.FindForLogin("alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("FindForLogin(alice) = %v, want user %d", u, created.ID)
	}
}

func TestFindForLoginAmbiguous(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	mustCreateUser(t, us, "Bob", model.RoleTenant)
	mustCreateUser(t, us, "BOB", model.RoleTenant)

	u, err := us.FindForLogin("bob")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u != nil {
		t.Errorf("ambiguous match returned %q, want nil", u.Username)
	}

	exact, err := us.FindForLogin("BOB")
	if err != nil || exact == nil || exact.Username != "BOB" {
		t.Errorf("exact match = %v, %v", exact, err)
	}
}

func TestUserLookup(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	alice := mustCreateUser(t, us, "alice", model.RoleTenant)

	for _, ident := range []string{alice.AccountNumber, "alice", "alice@example.com"} {
		u, err := us.Lookup(ident)
		if err != nil {
			t.Fatalf("lookup %q: %v", ident, err)
		}
		if u == nil || u.ID != alice.ID {
			t.Errorf("Lookup(%q) = %v, want alice", ident, u)
		}
	}
}

func TestUpdateRoleKeepsLastAdmin(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	admin := mustCreateUser(t, us, "root", model.RoleAdmin)

	if _, err := us.UpdateRole(admin.ID, model.RoleTenant); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("demote last admin err = %v, want ErrLastAdmin", err)
	}
	u, _ := us.GetByID(admin.ID)
	if u.Role != model.RoleAdmin {
		t.Errorf("role = %q after refused demotion", u.Role)
	}

	mustCreateUser(t, us, "second", model.RoleAdmin)
	old, err := us.UpdateRole(admin.ID, model.RoleTenant)
	if err != nil {
		t.Fatalf("demote with second admin: %v", err)
	}
	if old != model.RoleAdmin {
		t.Errorf("old role = %q, want admin", old)
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	u := mustCreateUser(t, us, "alice", model.RoleTenant)

	updated, err := us.UpdateProfile(u.ID, "Alice Smith", "242-555-0100", "new@example.com")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.FullName != "Alice Smith" || updated.Phone != "242-555-0100" || updated.Email != "new@example.com" {
		t.Errorf("profile = %+v", updated)
	}

	if err := us.UpdatePassword(u.ID, "salt2", "hash2"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, _ := us.GetByID(u.ID)
	if got.PasswordSalt != "salt2" || got.PasswordHash != "hash2" {
		t.Errorf("password fields = %q/%q", got.PasswordSalt, got.PasswordHash)
	}
}
