package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/respond"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
	"github.com/atlasbahamas/atlas/internal/upload"
)

// featuredCount is how many listings the home page shows.
const featuredCount = 6

type PublicHandler struct {
	listings   *store.ListingStore
	properties *store.PropertyStore
	users      *store.UserStore
	uploads    *upload.Store
	notifier   *notify.Notifier
	audit      *audit.Logger
	static     http.Handler
	logger     *slog.Logger
}

func NewPublicHandler(
	ls *store.ListingStore,
	ps *store.PropertyStore,
	us *store.UserStore,
	up *upload.Store,
	n *notify.Notifier,
	al *audit.Logger,
	static fs.FS,
	logger *slog.Logger,
) *PublicHandler {
	return &PublicHandler{
		listings:   ls,
		properties: ps,
		users:      us,
		uploads:    up,
		notifier:   n,
		audit:      al,
		static:     http.StripPrefix("/static/", http.FileServerFS(static)),
		logger:     logger,
	}
}

func (h *PublicHandler) Home(c *router.Context) error {
	all, err := h.listings.Search(model.ListingFilter{})
	if err != nil {
		return err
	}
	if len(all) > featuredCount {
		all = all[:featuredCount]
	}
	return c.HTML("home", "", map[string]any{
		"Listings":   all,
		"Categories": model.ListingCategories,
	})
}

func (h *PublicHandler) About(c *router.Context) error {
	return c.HTML("about", "About", nil)
}

func (h *PublicHandler) Contact(c *router.Context) error {
	return c.HTML("contact", "Contact", nil)
}

// filter reads the listing filters shared by the browse page and the API.
func filter(c *router.Context) model.ListingFilter {
	return model.ListingFilter{
		MaxPrice: c.FormInt("maxPrice"),
		Location: c.Form("location"),
		MinBeds:  int(c.FormInt("beds")),
		Category: c.Form("category"),
	}
}

func (h *PublicHandler) Listings(c *router.Context) error {
	f := filter(c)
	found, err := h.listings.Search(f)
	if err != nil {
		return err
	}
	locations, err := h.listings.Locations()
	if err != nil {
		return err
	}
	favs := map[int64]bool{}
	if c.User != nil {
		if favs, err = h.listings.FavoriteIDs(c.User.ID); err != nil {
			return err
		}
	}
	return c.HTML("listings", "Listings", map[string]any{
		"Listings":   found,
		"Filter":     f,
		"Locations":  locations,
		"Categories": model.ListingCategories,
		"Favorites":  favs,
	})
}

// Listing shows one listing. Unapproved or unavailable listings are only
// visible to staff.
func (h *PublicHandler) Listing(c *router.Context) error {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	l, err := h.listings.Get(id)
	if err != nil {
		return err
	}
	staff := c.User != nil && (c.User.IsAdmin() || c.User.Role == model.RolePropertyManager)
	if l == nil || (!staff && (!l.IsApproved || !l.IsAvailable)) {
		return c.NotFound()
	}
	fav := false
	if c.User != nil {
		favs, err := h.listings.FavoriteIDs(c.User.ID)
		if err != nil {
			return err
		}
		fav = favs[l.ID]
	}
	return c.HTML("listing", l.Title, map[string]any{"Listing": l, "Favorite": fav})
}

func (h *PublicHandler) APIListings(c *router.Context) error {
	found, err := h.listings.Search(filter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "listings": found})
}

type unitView struct {
	UnitID     int64  `json:"unit_id"`
	UnitLabel  string `json:"unit_label"`
	IsOccupied bool   `json:"is_occupied"`
	Rent       int64  `json:"rent"`
	Beds       int    `json:"beds"`
	Baths      int    `json:"baths"`
}

// APIUnits lists a property's units for the invite and listing forms.
func (h *PublicHandler) APIUnits(c *router.Context) error {
	pid := c.Form("property_id")
	denied := map[string]any{"ok": false, "error": "forbidden"}
	if c.User == nil || pid == "" {
		return c.JSON(http.StatusForbidden, denied)
	}
	if !c.User.IsAdmin() {
		if c.User.Role != model.RolePropertyManager {
			return c.JSON(http.StatusForbidden, denied)
		}
		owned, err := h.properties.OwnedBy(pid, c.User.AccountNumber)
		if err != nil {
			return err
		}
		if !owned {
			return c.JSON(http.StatusForbidden, denied)
		}
	}

	units, err := h.properties.Units(pid)
	if err != nil {
		return err
	}
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		out = append(out, unitView{
			UnitID: u.ID, UnitLabel: u.Label, IsOccupied: u.IsOccupied, Rent: u.Rent, Beds: u.Beds, Baths: u.Baths,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "units": out})
}

func (h *PublicHandler) Upload(c *router.Context) error {
	data, ct, err := h.uploads.Open(c.Param("name"))
	if errors.Is(err, upload.ErrNotFound) {
		return c.NotFound()
	}
	if err != nil {
		return err
	}
	hdr := c.W.Header()
	hdr.Set("X-Download-Options", "noopen")
	hdr.Set("Cache-Control", "private, max-age=300")
	respond.Blob(c.W, ct, data)
	return nil
}

func (h *PublicHandler) Static(c *router.Context) error {
	c.W.Header().Set("Cache-Control", "public, max-age=3600")
	h.static.ServeHTTP(c.W, c.R)
	return nil
}

// Favorite toggles a listing on the user's favorites. action=remove only
// removes.
func (h *PublicHandler) Favorite(c *router.Context) error {
	id := c.FormInt("listing_id")
	back := c.Form("next")
	if back == "" || back[0] != '/' || (len(back) > 1 && back[1] == '/') {
		back = "/listings"
	}
	l, err := h.listings.Get(id)
	if err != nil {
		return err
	}
	if l == nil {
		return c.Flash(back, "Listing not found.", true)
	}

	if c.Form("action") == "remove" {
		favs, err := h.listings.FavoriteIDs(c.User.ID)
		if err != nil {
			return err
		}
		if !favs[id] {
			return c.Flash(back, "Removed from favorites.", false)
		}
	}
	on, err := h.listings.ToggleFavorite(c.User.ID, id)
	if err != nil {
		return err
	}
	if on {
		return c.Flash(back, "Saved to favorites.", false)
	}
	return c.Flash(back, "Removed from favorites.", false)
}

func (h *PublicHandler) Favorites(c *router.Context) error {
	favs, err := h.listings.FavoriteIDs(c.User.ID)
	if err != nil {
		return err
	}
	var out []model.Listing
	for id := range favs {
		l, err := h.listings.Get(id)
		if err != nil {
			return err
		}
		if l != nil {
			out = append(out, *l)
		}
	}
	return c.HTML("favorites", "Favorites", map[string]any{"Listings": out})
}

func (h *PublicHandler) Inquiry(c *router.Context) error {
	listingID := c.FormInt("listing_id")
	back := "/contact"
	if listingID > 0 {
		back = "/listing/" + itoa(listingID)
	}
	q := model.Inquiry{
		FullName: c.Form("full_name"),
		Email:    c.Form("email"),
		Phone:    c.Form("phone"),
		Body:     c.Form("message"),
	}
	if q.Body == "" {
		q.Body = c.Form("body")
	}
	switch {
	case !minLen(q.FullName, 2):
		return c.Flash(back, "Please enter your name.", true)
	case !validEmail(q.Email):
		return c.Flash(back, "Enter a valid email address.", true)
	case !minLen(q.Body, 8):
		return c.Flash(back, "Message must be at least 8 characters.", true)
	}
	if listingID > 0 {
		l, err := h.listings.Get(listingID)
		if err != nil {
			return err
		}
		if l == nil {
			return c.Flash("/contact", "Listing not found.", true)
		}
		q.ListingID = &listingID
	}

	id, err := h.listings.CreateInquiry(q)
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	notifyListingOwner(ctx, h.notifier, h.listings, h.users, listingID, model.NotifInquiry,
		"New inquiry from "+q.FullName+".", "/property-manager", h.logger)
	h.audit.Record(ctx, audit.Entry{
		Actor: c.User, Action: "inquiry_submitted", EntityType: "inquiry", EntityID: itoa(id),
		Fields: map[string]string{"email": q.Email},
	})
	return c.Flash(back, "Thanks! Your message has been sent.", false)
}

func (h *PublicHandler) Apply(c *router.Context) error {
	listingID := c.FormInt("listing_id")
	if listingID <= 0 {
		return c.Flash("/listings", "Choose a listing to apply for.", true)
	}
	back := "/listing/" + itoa(listingID)
	l, err := h.listings.Get(listingID)
	if err != nil {
		return err
	}
	if l == nil || !l.IsApproved || !l.IsAvailable {
		return c.Flash("/listings", "That listing is no longer available.", true)
	}

	a := model.Application{
		ListingID: listingID,
		FullName:  c.Form("full_name"),
		Email:     c.Form("email"),
		Phone:     c.Form("phone"),
		Income:    c.Form("income"),
		Notes:     c.Form("notes"),
	}
	if c.User != nil {
		uid := c.User.ID
		a.ApplicantUserID = &uid
		if a.FullName == "" {
			a.FullName = c.User.FullName
		}
		if a.Email == "" {
			a.Email = c.User.Email
		}
	}
	switch {
	case !minLen(a.FullName, 2):
		return c.Flash(back, "Please enter your name.", true)
	case !validEmail(a.Email):
		return c.Flash(back, "Enter a valid email address.", true)
	}

	id, err := h.listings.CreateApplication(a)
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	notifyListingOwner(ctx, h.notifier, h.listings, h.users, listingID, model.NotifApplication,
		"New application for "+l.Title+" from "+a.FullName+".", "/property-manager", h.logger)
	h.audit.Record(ctx, audit.Entry{
		Actor: c.User, Action: "application_submitted", EntityType: "application", EntityID: itoa(id),
		Details: "listing " + itoa(listingID),
	})
	return c.Flash(back, "Application submitted. We will be in touch.", false)
}

// Health answers liveness checks.
func Health(c *router.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      true,
		"service": "atlas",
		"ts":      time.Now().UTC().Format(time.RFC3339),
	})
}
