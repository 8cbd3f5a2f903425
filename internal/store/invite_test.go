package store

import (
	"errors"
	"testing"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestPropertyCreateIDs(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1", "Unit 2")

	if p.ID != owner.AccountNumber+"-HARBOUR" {
		t.Errorf("property id = %q, want %s-HARBOUR", p.ID, owner.AccountNumber)
	}
	dup, err := NewPropertyStore(db).Create(NewProperty{
		OwnerAccount: owner.AccountNumber, Code: "Harbour", Name: "Again",
		PropertyType: "House", Location: "Nassau", UnitLabels: []string{"Main"},
	})
	if err != nil {
		t.Fatalf("create duplicate code: %v", err)
	}
	if dup.ID != p.ID+"-2" {
		t.Errorf("duplicate id = %q, want %s-2", dup.ID, p.ID)
	}

	units, err := NewPropertyStore(db).Units(p.ID)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(units) != 2 || units[0].Rent != 1500 {
		t.Errorf("units = %+v", units)
	}
}

func TestInviteAccept(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1", "Unit 2")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	invites := NewInviteStore(db)

	first, err := invites.Create(owner.ID, tenant, p.ID, "Unit 1", "welcome", time.Hour)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	competing, err := invites.Create(owner.ID, tenant, p.ID, "Unit 2", "", time.Hour)
	if err != nil {
		t.Fatalf("create competing invite: %v", err)
	}

	inv, err := invites.Respond(first.ID, tenant.AccountNumber, true)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if inv.Status != model.InviteAccepted {
		t.Errorf("status = %q, want accepted", inv.Status)
	}

	lease, err := NewLeaseStore(db).Active(tenant.AccountNumber)
	if err != nil || lease == nil {
		t.Fatalf("active lease = %v, %v", lease, err)
	}
	if lease.UnitLabel != "Unit 1" || lease.ManagerSignedAt == nil {
		t.Errorf("lease = %+v", lease)
	}
	unit, _ := NewPropertyStore(db).GetUnit(p.ID, "Unit 1")
	if !unit.IsOccupied {
		t.Error("unit not marked occupied")
	}
	other, _ := invites.Get(competing.ID)
	if other.Status != model.InviteCancelled || other.RevokeReason != RevokeSuperseded {
		t.Errorf("competing invite = %s/%s, want cancelled/superseded", other.Status, other.RevokeReason)
	}
}

func TestInviteCreateOccupiedUnit(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	us := NewUserStore(db)
	a := mustCreateUser(t, us, "ann", model.RoleTenant)
	b := mustCreateUser(t, us, "ben", model.RoleTenant)
	invites := NewInviteStore(db)

	inv, _ := invites.Create(owner.ID, a, p.ID, "Unit 1", "", time.Hour)
	if _, err := invites.Respond(inv.ID, a.AccountNumber, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := invites.Create(owner.ID, b, p.ID, "Unit 1", "", time.Hour); !errors.Is(err, ErrUnitOccupied) {
		t.Errorf("err = %v, want ErrUnitOccupied", err)
	}
}

func TestInviteCompetingClosed(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	us := NewUserStore(db)
	a := mustCreateUser(t, us, "ann", model.RoleTenant)
	b := mustCreateUser(t, us, "ben", model.RoleTenant)
	invites := NewInviteStore(db)

	invA, _ := invites.Create(owner.ID, a, p.ID, "Unit 1", "", time.Hour)
	invB, _ := invites.Create(owner.ID, b, p.ID, "Unit 1", "", time.Hour)
	if _, err := invites.Respond(invA.ID, a.AccountNumber, true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := invites.Respond(invB.ID, b.AccountNumber, true); !errors.Is(err, ErrInviteClosed) {
		t.Errorf("err = %v, want ErrInviteClosed", err)
	}
}

func TestInviteUnavailableCancels(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	invites := NewInviteStore(db)

	inv, _ := invites.Create(owner.ID, tenant, p.ID, "Unit 1", "", time.Hour)
	if _, err := db.Exec(`UPDATE units SET is_occupied = 1 WHERE property_id = ?`, p.ID); err != nil {
		t.Fatalf("occupy unit: %v", err)
	}

	got, err := invites.Respond(inv.ID, tenant.AccountNumber, true)
	if !errors.Is(err, ErrInviteUnavailable) {
		t.Fatalf("err = %v, want ErrInviteUnavailable", err)
	}
	if got.Status != model.InviteCancelled || got.RevokeReason != RevokeUnavailable {
		t.Errorf("invite = %s/%s", got.Status, got.RevokeReason)
	}
	if lease, _ := NewLeaseStore(db).Active(tenant.AccountNumber); lease != nil {
		t.Error("lease created for unavailable unit")
	}
}

func TestInviteExpired(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	invites := NewInviteStore(db)

	inv, _ := invites.Create(owner.ID, tenant, p.ID, "Unit 1", "", -time.Minute)
	got, err := invites.Respond(inv.ID, tenant.AccountNumber, true)
	if !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("err = %v, want ErrInviteExpired", err)
	}
	if got.Status != model.InviteCancelled || got.RevokeReason != RevokeExpired {
		t.Errorf("invite = %s/%s", got.Status, got.RevokeReason)
	}
}

func TestInviteDeclineAndWrongTenant(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	us := NewUserStore(db)
	tenant := mustCreateUser(t, us, "tina", model.RoleTenant)
	other := mustCreateUser(t, us, "otto", model.RoleTenant)
	invites := NewInviteStore(db)

	inv, _ := invites.Create(owner.ID, tenant, p.ID, "Unit 1", "", time.Hour)
	if got, err := invites.Respond(inv.ID, other.AccountNumber, true); got != nil || err != nil {
		t.Errorf("other tenant respond = %v, %v; want nil, nil", got, err)
	}

	got, err := invites.Respond(inv.ID, tenant.AccountNumber, false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != model.InviteDeclined || got.RevokeReason != RevokeDeclined {
		t.Errorf("invite = %s/%s", got.Status, got.RevokeReason)
	}
}

func TestCancelExpiredInvites(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1", "Unit 2")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	invites := NewInviteStore(db)

	invites.Create(owner.ID, tenant, p.ID, "Unit 1", "", -time.Minute)
	live, _ := invites.Create(owner.ID, tenant, p.ID, "Unit 2", "", time.Hour)

	n, err := invites.CancelExpired()
	if err != nil {
		t.Fatalf("cancel expired: %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled = %d, want 1", n)
	}
	if got, _ := invites.Get(live.ID); got.Status != model.InvitePending {
		t.Errorf("live invite status = %q", got.Status)
	}
}

func TestLeaseSignOnce(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	invites := NewInviteStore(db)
	leases := NewLeaseStore(db)

	inv, _ := invites.Create(owner.ID, tenant, p.ID, "Unit 1", "", time.Hour)
	invites.Respond(inv.ID, tenant.AccountNumber, true)
	lease, _ := leases.Active(tenant.AccountNumber)

	if err := leases.Sign(lease.ID, "A99999", "1.2.3.4"); err == nil {
		t.Error("non-holder signed the lease")
	}
	if err := leases.Sign(lease.ID, tenant.AccountNumber, "1.2.3.4"); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := leases.Sign(lease.ID, tenant.AccountNumber, "1.2.3.4"); !errors.Is(err, ErrAlreadySigned) {
		t.Errorf("second sign err = %v, want ErrAlreadySigned", err)
	}
	signed, _ := leases.Active(tenant.AccountNumber)
	if signed.TenantSignedAt == nil || signed.ESignIP != "1.2.3.4" {
		t.Errorf("lease = %+v", signed)
	}
}
