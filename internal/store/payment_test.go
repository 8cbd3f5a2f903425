package store

import (
	"testing"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestPaymentsForOwner(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	us := NewUserStore(db)
	tenant := mustCreateUser(t, us, "tina", model.RoleTenant)
	stranger := mustCreateUser(t, us, "sam", model.RoleTenant)

	inv, _ := NewInviteStore(db).Create(owner.ID, tenant, p.ID, "Unit 1", "", time.Hour)
	NewInviteStore(db).Respond(inv.ID, tenant.AccountNumber, true)

	ps := NewPaymentStore(db)
	rent, err := ps.Create(tenant.AccountNumber, model.RoleTenant, "rent", "", 1500)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if rent.Status != "submitted" {
		t.Errorf("status = %q, want submitted", rent.Status)
	}
	ps.Create(tenant.AccountNumber, model.RoleTenant, "bill", "BPL", 120)
	ps.Create(stranger.AccountNumber, model.RoleTenant, "rent", "", 900)

	mine, _ := ps.ListByPayer(tenant.AccountNumber)
	if len(mine) != 2 {
		t.Errorf("payer list = %d, want 2", len(mine))
	}
	owned, _ := ps.ListForOwner(owner.AccountNumber)
	if len(owned) != 1 || owned[0].ID != rent.ID {
		t.Errorf("owner list = %+v", owned)
	}

	ok, err := ps.UpdateStatusForOwner(rent.ID, owner.AccountNumber, "paid")
	if err != nil || !ok {
		t.Fatalf("update status = %v, %v", ok, err)
	}
	ok, _ = ps.UpdateStatusForOwner(rent.ID, "A00000", "failed")
	if ok {
		t.Error("non-owner updated payment status")
	}
}

func TestMaintenanceForOwner(t *testing.T) {
	db := setupTestDB(t)
	owner, p := seedProperty(t, db, "Unit 1")
	tenant := mustCreateUser(t, NewUserStore(db), "tina", model.RoleTenant)
	ms := NewMaintenanceStore(db)

	m, err := ms.Create(model.MaintenanceRequest{
		TenantAccount: tenant.AccountNumber, TenantName: "Tina", PropertyID: p.ID,
		UnitLabel: "Unit 1", Description: "[plumbing] leaking sink", Urgency: "high",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Status != "open" {
		t.Errorf("status = %q, want open", m.Status)
	}

	list, _ := ms.ListForOwner(owner.AccountNumber)
	if len(list) != 1 {
		t.Fatalf("owner list = %d, want 1", len(list))
	}
	ok, err := ms.UpdateStatusForOwner(m.ID, owner.AccountNumber, "closed")
	if err != nil || !ok {
		t.Fatalf("update = %v, %v", ok, err)
	}
	got, _ := ms.Get(m.ID)
	if got.Status != "closed" || got.UpdatedAt == nil {
		t.Errorf("request = %+v", got)
	}
	open, _ := ms.CountOpen()
	if open != 0 {
		t.Errorf("open count = %d, want 0", open)
	}
}
