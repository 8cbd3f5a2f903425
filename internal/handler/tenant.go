package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
	"github.com/atlasbahamas/atlas/internal/upload"
)

const (
	// rentMultiple caps a single rent payment relative to the unit's rent.
	rentMultiple = 3
	maxBillPay   = 100000
)

type TenantHandler struct {
	leases      *store.LeaseStore
	invites     *store.InviteStore
	properties  *store.PropertyStore
	payments    *store.PaymentStore
	maintenance *store.MaintenanceStore
	uploads     *upload.Store
	notifier    *notify.Notifier
	audit       *audit.Logger
	logger      *slog.Logger
}

func NewTenantHandler(
	leases *store.LeaseStore,
	is *store.InviteStore,
	ps *store.PropertyStore,
	pay *store.PaymentStore,
	ms *store.MaintenanceStore,
	up *upload.Store,
	n *notify.Notifier,
	al *audit.Logger,
	logger *slog.Logger,
) *TenantHandler {
	return &TenantHandler{
		leases:      leases,
		invites:     is,
		properties:  ps,
		payments:    pay,
		maintenance: ms,
		uploads:     up,
		notifier:    n,
		audit:       al,
		logger:      logger,
	}
}

// home loads the tenant's active lease with its unit and property. All
// three are nil without a lease.
func (h *TenantHandler) home(acct string) (*model.Lease, *model.Unit, *model.Property, error) {
	lease, err := h.leases.Active(acct)
	if err != nil || lease == nil {
		return nil, nil, nil, err
	}
	unit, err := h.properties.GetUnit(lease.PropertyID, lease.UnitLabel)
	if err != nil {
		return nil, nil, nil, err
	}
	prop, err := h.properties.Get(lease.PropertyID)
	if err != nil {
		return nil, nil, nil, err
	}
	return lease, unit, prop, nil
}

func pendingInvites(all []model.Invite) []model.Invite {
	var out []model.Invite
	for _, inv := range all {
		if inv.Status == model.InvitePending {
			out = append(out, inv)
		}
	}
	return out
}

func (h *TenantHandler) Dashboard(c *router.Context) error {
	lease, unit, prop, err := h.home(c.Account())
	if err != nil {
		return err
	}
	invites, err := h.invites.ListForTenant(c.Account())
	if err != nil {
		return err
	}
	payments, err := h.payments.ListByPayer(c.Account())
	if err != nil {
		return err
	}
	if len(payments) > 5 {
		payments = payments[:5]
	}
	return c.HTML("tenant", "My home", map[string]any{
		"Lease":    lease,
		"Unit":     unit,
		"Property": prop,
		"Invites":  pendingInvites(invites),
		"Payments": payments,
	})
}

func (h *TenantHandler) Lease(c *router.Context) error {
	lease, unit, prop, err := h.home(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("tenant_lease", "My lease", map[string]any{
		"Lease":    lease,
		"Unit":     unit,
		"Property": prop,
	})
}

func (h *TenantHandler) SignLease(c *router.Context) error {
	id := c.FormInt("lease_id")
	err := h.leases.Sign(id, c.Account(), c.IP())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.Flash("/tenant/lease", "No active lease found to sign.", true)
	case errors.Is(err, store.ErrAlreadySigned):
		return c.Flash("/tenant/lease", "This lease is already signed.", true)
	case err != nil:
		return err
	}

	ctx := c.R.Context()
	if lease, _, prop, err := h.home(c.Account()); err == nil && prop != nil {
		text := fmt.Sprintf("%s signed the lease for %s %s.", c.User.FullName, prop.ID, lease.UnitLabel)
		if err := h.notifier.NotifyAccount(ctx, prop.OwnerAccount, model.NotifLease, text, managerHome); err != nil {
			h.logger.Warn("lease signed notification", "lease_id", id, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "lease_signed", "lease", itoa(id), "")
	return c.Flash("/tenant/lease", "Lease signed. Thank you.", false)
}

func (h *TenantHandler) Invites(c *router.Context) error {
	invites, err := h.invites.ListForTenant(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("tenant_invites", "Invites", map[string]any{"Invites": invites})
}

func (h *TenantHandler) RespondInvite(c *router.Context) error {
	id := c.FormInt("invite_id")
	var accept bool
	switch c.Form("decision") {
	case "accept":
		accept = true
	case "decline":
	default:
		return c.Flash("/tenant/invites", "Choose accept or decline.", true)
	}

	inv, err := h.invites.Respond(id, c.Account(), accept)
	switch {
	case errors.Is(err, store.ErrInviteClosed):
		return c.Flash("/tenant/invites", "This invite has already been answered.", true)
	case errors.Is(err, store.ErrInviteExpired):
		return c.Flash("/tenant/invites", "This invite has expired.", true)
	case errors.Is(err, store.ErrInviteUnavailable):
		return c.Flash("/tenant/invites", "That unit is no longer available.", true)
	case err != nil:
		return err
	case inv == nil:
		return c.Flash("/tenant/invites", "Invite not found.", true)
	}

	ctx := c.R.Context()
	verb := "declined"
	if accept {
		verb = "accepted"
	}
	text := fmt.Sprintf("%s %s your invite to %s %s.", c.User.FullName, verb, inv.PropertyID, inv.UnitLabel)
	if _, err := h.notifier.Notify(ctx, inv.SenderUserID, model.NotifInvite, text, managerHome); err != nil {
		h.logger.Warn("invite response notification", "invite_id", id, "error", err)
	}
	h.audit.Log(ctx, c.User, "invite_"+verb, "invite", itoa(id), inv.PropertyID+"/"+inv.UnitLabel)
	if accept {
		return c.Flash("/tenant/lease", "Welcome home! Please review and sign your lease.", false)
	}
	return c.Flash("/tenant/invites", "Invite declined.", false)
}

func (h *TenantHandler) Payments(c *router.Context) error {
	lease, unit, _, err := h.home(c.Account())
	if err != nil {
		return err
	}
	payments, err := h.payments.ListByPayer(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("tenant_payments", "Payments", map[string]any{
		"Lease":     lease,
		"Unit":      unit,
		"Payments":  payments,
		"Providers": model.BillProviders,
	})
}

// PayRent records a rent payment against the active lease. The amount may
// not exceed three months of rent.
func (h *TenantHandler) PayRent(c *router.Context) error {
	lease, unit, prop, err := h.home(c.Account())
	if err != nil {
		return err
	}
	if lease == nil {
		return c.Flash("/tenant/payments", "You need an active lease to pay rent.", true)
	}
	amount := c.FormInt("amount")
	if amount <= 0 {
		return c.Flash("/tenant/payments", "Amount must be greater than zero.", true)
	}
	if unit != nil && unit.Rent > 0 && amount > rentMultiple*unit.Rent {
		return c.Flash("/tenant/payments", fmt.Sprintf("Amount cannot exceed $%d.", rentMultiple*unit.Rent), true)
	}

	p, err := h.payments.Create(c.Account(), c.User.Role, "rent", "", amount)
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	if prop != nil {
		text := fmt.Sprintf("%s submitted a rent payment of $%d.", c.User.FullName, amount)
		if err := h.notifier.NotifyAccount(ctx, prop.OwnerAccount, model.NotifPayment, text, managerHome); err != nil {
			h.logger.Warn("rent notification", "payment_id", p.ID, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "rent_submitted", "payment", itoa(p.ID), fmt.Sprintf("$%d", amount))
	return c.Flash("/tenant/payments", "Rent payment submitted.", false)
}

func (h *TenantHandler) PayBill(c *router.Context) error {
	provider := c.Form("provider")
	amount := c.FormInt("amount")
	switch {
	case !oneOf(provider, model.BillProviders):
		return c.Flash("/tenant/payments", "Choose a bill provider.", true)
	case amount <= 0:
		return c.Flash("/tenant/payments", "Amount must be greater than zero.", true)
	case amount > maxBillPay:
		return c.Flash("/tenant/payments", fmt.Sprintf("Amount cannot exceed $%d.", maxBillPay), true)
	}
	p, err := h.payments.Create(c.Account(), c.User.Role, "bill", provider, amount)
	if err != nil {
		return err
	}
	h.audit.Log(c.R.Context(), c.User, "bill_submitted", "payment", itoa(p.ID), fmt.Sprintf("%s $%d", provider, amount))
	return c.Flash("/tenant/payments", provider+" payment submitted.", false)
}

func (h *TenantHandler) Maintenance(c *router.Context) error {
	lease, _, _, err := h.home(c.Account())
	if err != nil {
		return err
	}
	items, err := h.maintenance.ListByTenant(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("tenant_maintenance", "Maintenance", map[string]any{
		"Lease":     lease,
		"Items":     items,
		"Urgencies": model.MaintenanceUrgencies,
	})
}

func (h *TenantHandler) NewMaintenance(c *router.Context) error {
	lease, _, prop, err := h.home(c.Account())
	if err != nil {
		return err
	}
	if lease == nil {
		return c.Flash("/tenant/maintenance", "You need an active lease to request maintenance.", true)
	}
	desc := c.Form("description")
	urgency := c.Form("urgency")
	if urgency == "" {
		urgency = "normal"
	}
	switch {
	case !minLen(desc, 5):
		return c.Flash("/tenant/maintenance", "Describe the problem in at least 5 characters.", true)
	case !oneOf(urgency, model.MaintenanceUrgencies):
		return c.Flash("/tenant/maintenance", "Choose an urgency.", true)
	}

	photo := ""
	f, fh, err := c.R.FormFile("photo")
	if err == nil {
		f.Close()
	}
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return c.Flash("/tenant/maintenance", "Could not read the photo.", true)
	case fh.Size > 0:
		uid := c.User.ID
		photo, err = h.uploads.SaveImage(fh, &uid, "maintenance_photo", "maintenance_requests", 0)
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			return c.Flash("/tenant/maintenance", "Photo is too large (max 5 MB).", true)
		case errors.Is(err, upload.ErrUnsupported):
			return c.Flash("/tenant/maintenance", "Photo must be a JPEG, PNG or WebP image.", true)
		case err != nil:
			return err
		}
	}

	m, err := h.maintenance.Create(model.MaintenanceRequest{
		TenantAccount: c.Account(),
		TenantName:    c.User.FullName,
		PropertyID:    lease.PropertyID,
		UnitLabel:     lease.UnitLabel,
		Description:   desc,
		Urgency:       urgency,
		PhotoPath:     photo,
	})
	if err != nil {
		return err
	}

	ctx := c.R.Context()
	if prop != nil {
		text := fmt.Sprintf("New %s maintenance request for %s %s.", urgency, prop.ID, lease.UnitLabel)
		if err := h.notifier.NotifyAccount(ctx, prop.OwnerAccount, model.NotifMaintenance, text, managerHome); err != nil {
			h.logger.Warn("maintenance notification", "request_id", m.ID, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "maintenance_submitted", "maintenance_request", itoa(m.ID), urgency)
	return c.Flash("/tenant/maintenance", "Maintenance request submitted.", false)
}

type ledgerRow struct {
	model.Payment
	PaidToDate int64
}

type ledger struct {
	MonthlyRent   int64
	PaidThisMonth int64
	Pending       int64
	Due           int64
	Rows          []ledgerRow
}

// buildLedger summarises payments (newest first, as stored) against the
// unit's rent for the month containing now. Only paid rent reduces what is
// due; submitted payments show as pending until a manager settles them.
func buildLedger(unit *model.Unit, payments []model.Payment, now time.Time) ledger {
	var l ledger
	if unit != nil {
		l.MonthlyRent = unit.Rent
	}
	year, month, _ := now.UTC().Date()
	rows := make([]ledgerRow, len(payments))
	var paid int64
	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		if p.Status == "paid" {
			paid += p.Amount
		}
		rows[i] = ledgerRow{Payment: p, PaidToDate: paid}

		y, m, _ := p.CreatedAt.UTC().Date()
		if p.PaymentType != "rent" || y != year || m != month {
			continue
		}
		switch p.Status {
		case "paid":
			l.PaidThisMonth += p.Amount
		case "submitted":
			l.Pending += p.Amount
		}
	}
	l.Rows = rows
	if due := l.MonthlyRent - l.PaidThisMonth; due > 0 {
		l.Due = due
	}
	return l
}

func (h *TenantHandler) Ledger(c *router.Context) error {
	_, unit, _, err := h.home(c.Account())
	if err != nil {
		return err
	}
	payments, err := h.payments.ListByPayer(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("tenant_ledger", "Ledger", map[string]any{
		"Ledger": buildLedger(unit, payments, time.Now()),
	})
}
