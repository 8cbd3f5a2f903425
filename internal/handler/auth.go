package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/email"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/session"
	"github.com/atlasbahamas/atlas/internal/store"
)

const (
	forgotMessage   = "If that account exists, a reset link has been sent to its email address."
	badResetMessage = "This reset link is invalid or has expired. Request a new one."
)

type AuthHandler struct {
	users    *store.UserStore
	resets   *store.PasswordResetStore
	sessions *session.Manager
	tokens   *auth.TokenIssuer
	mail     *email.Client
	notifier *notify.Notifier
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	rs *store.PasswordResetStore,
	sm *session.Manager,
	ti *auth.TokenIssuer,
	ec *email.Client,
	n *notify.Notifier,
	al *audit.Logger,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    us,
		resets:   rs,
		sessions: sm,
		tokens:   ti,
		mail:     ec,
		notifier: n,
		audit:    al,
		logger:   logger,
	}
}

func (h *AuthHandler) LoginPage(c *router.Context) error {
	if c.User != nil {
		return c.Redirect(auth.RoleHome(c.User.Role))
	}
	return c.HTML("login", "Sign in", nil)
}

func (h *AuthHandler) Login(c *router.Context) error {
	if c.User != nil {
		return c.Redirect(auth.RoleHome(c.User.Role))
	}
	username := c.Form("username")
	password := c.R.PostFormValue("password")
	if username == "" || password == "" {
		return c.Flash("/login", "Missing fields.", true)
	}

	ip := c.IP()
	guard := c.State.LoginGuard
	if locked, wait := guard.Check(ip, username); locked {
		return c.Flash("/login", fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", wait), true)
	}

	user, err := h.users.FindForLogin(username)
	if err != nil {
		return err
	}
	if user == nil || !auth.VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		guard.Fail(ip, username)
		h.logger.Info("login failed", "username", username, "ip", ip)
		if locked, wait := guard.Check(ip, username); locked {
			return c.Flash("/login", fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", wait), true)
		}
		return c.Flash("/login", "Invalid username or password.", true)
	}

	guard.Clear(ip, username)
	if _, err := h.sessions.Create(c.W, c.R, user); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	h.audit.Log(c.R.Context(), user, "login", "user", itoa(user.ID), "")
	return c.Redirect(auth.RoleHome(user.Role))
}

func (h *AuthHandler) Logout(c *router.Context) error {
	if err := h.sessions.Destroy(c.W, c.R); err != nil {
		h.logger.Warn("delete session", "error", err)
	}
	if c.User != nil {
		h.audit.Log(c.R.Context(), c.User, "logout", "user", itoa(c.User.ID), "")
	}
	return c.Redirect("/login")
}

func (h *AuthHandler) RegisterPage(c *router.Context) error {
	if c.User != nil {
		return c.Redirect(auth.RoleHome(c.User.Role))
	}
	return c.HTML("register", "Create an account", nil)
}

// Register creates tenant accounts only. Managers and admins are promoted
// from the admin console.
func (h *AuthHandler) Register(c *router.Context) error {
	fullName := c.Form("full_name")
	phone := c.Form("phone")
	emailAddr := strings.ToLower(c.Form("email"))
	username := c.Form("username")
	password := c.R.PostFormValue("password")

	switch {
	case !minLen(fullName, 2):
		return c.Flash("/register", "Full name must be at least 2 characters.", true)
	case !minLen(phone, 5):
		return c.Flash("/register", "Enter a valid phone number.", true)
	case !validEmail(emailAddr):
		return c.Flash("/register", "Enter a valid email address.", true)
	case !minLen(username, 3):
		return c.Flash("/register", "Username must be at least 3 characters.", true)
	}
	if confirm := c.R.PostFormValue("password2"); confirm != "" && confirm != password {
		return c.Flash("/register", "Passwords do not match.", true)
	}
	if missing := auth.PolicyErrors(password); len(missing) > 0 {
		return c.Flash("/register", "Password must include: "+strings.Join(missing, ", ")+".", true)
	}

	salt, hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user, err := h.users.Create(store.NewUser{
		Username:     username,
		Email:        emailAddr,
		FullName:     fullName,
		Phone:        phone,
		Role:         model.RoleTenant,
		PasswordSalt: salt,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		return c.Flash("/register", "That username is already taken.", true)
	}
	if err != nil {
		return err
	}

	h.audit.Log(c.R.Context(), user, "register", "user", itoa(user.ID), "")
	return c.Flash("/login", "Account created. Your account number is "+user.AccountNumber+".", false)
}

func (h *AuthHandler) ForgotPage(c *router.Context) error {
	return c.HTML("forgot", "Forgot password", nil)
}

// Forgot answers the same way whether or not the account exists.
func (h *AuthHandler) Forgot(c *router.Context) error {
	ident := c.Form("identifier")
	if ident == "" {
		ident = c.Form("email")
	}
	if ident == "" {
		return c.Flash("/forgot", "Enter your email or username.", true)
	}

	user, err := h.users.Lookup(ident)
	if err != nil {
		h.logger.Error("forgot lookup", "error", err)
	}
	if user != nil && user.Email != "" {
		h.sendReset(c, user)
	}
	return c.Flash("/forgot", forgotMessage, false)
}

func (h *AuthHandler) sendReset(c *router.Context, user *model.User) {
	raw, claims, err := h.tokens.IssueReset(user.ID)
	if err != nil {
		h.logger.Error("issue reset token", "user_id", user.ID, "error", err)
		return
	}
	if err := h.resets.Create(user.ID, claims.TokenID, claims.Expires); err != nil {
		h.logger.Error("record reset token", "user_id", user.ID, "error", err)
		return
	}
	h.audit.Log(c.R.Context(), user, "password_reset_requested", "user", itoa(user.ID), "")
	if !h.mail.Configured() {
		h.logger.Warn("password reset requested but email is not configured", "user_id", user.ID)
		return
	}
	if err := h.mail.SendPasswordReset(c.R.Context(), user.Email, raw, auth.ResetTokenTTL); err != nil {
		h.logger.Error("send reset email", "user_id", user.ID, "error", err)
	}
}

// validReset parses the token and checks its jti is recorded, unused and
// unexpired.
func (h *AuthHandler) validReset(raw string) (auth.ResetClaims, bool) {
	claims, err := h.tokens.ParseReset(raw)
	if err != nil {
		return auth.ResetClaims{}, false
	}
	rec, err := h.resets.GetByTokenID(claims.TokenID)
	if err != nil {
		h.logger.Error("get reset token", "error", err)
		return auth.ResetClaims{}, false
	}
	if rec == nil || rec.Used || rec.UserID != claims.UserID || !rec.ExpiresAt.After(time.Now()) {
		return auth.ResetClaims{}, false
	}
	return claims, true
}

func (h *AuthHandler) ResetPage(c *router.Context) error {
	raw := c.Form("token")
	if _, ok := h.validReset(raw); !ok {
		return c.Flash("/forgot", badResetMessage, true)
	}
	return c.HTML("reset", "Choose a new password", map[string]any{"Token": raw})
}

func (h *AuthHandler) Reset(c *router.Context) error {
	raw := c.Form("token")
	claims, ok := h.validReset(raw)
	if !ok {
		return c.Flash("/forgot", badResetMessage, true)
	}
	back := "/reset?token=" + url.QueryEscape(raw)

	password := c.R.PostFormValue("password")
	if password != c.R.PostFormValue("password2") {
		return c.Flash(back, "Passwords do not match.", true)
	}
	if missing := auth.PolicyErrors(password); len(missing) > 0 {
		return c.Flash(back, "Password must include: "+strings.Join(missing, ", ")+".", true)
	}

	user, err := h.users.GetByID(claims.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return c.Flash("/forgot", badResetMessage, true)
	}

	used, err := h.resets.Consume(claims.TokenID)
	if err != nil {
		return err
	}
	if !used {
		return c.Flash("/forgot", badResetMessage, true)
	}

	salt, hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := h.users.UpdatePassword(user.ID, salt, hash); err != nil {
		return err
	}
	if err := h.sessions.DestroyUser(c.R.Context(), user.ID); err != nil {
		h.logger.Error("revoke sessions after reset", "user_id", user.ID, "error", err)
	}

	ctx := c.R.Context()
	if _, err := h.notifier.Notify(ctx, user.ID, model.NotifSystem, "Your password was changed successfully.", "/profile"); err != nil {
		h.logger.Warn("password change notification", "user_id", user.ID, "error", err)
	}
	h.audit.Log(ctx, user, "password_reset", "user", itoa(user.ID), "")
	return c.Flash("/login", "Password updated. Please sign in.", false)
}

func (h *AuthHandler) Profile(c *router.Context) error {
	return c.HTML("profile", "Profile", map[string]any{"Account": c.User})
}

// ProfileUpdate edits contact details and, when new_password is set,
// changes the password after checking the current one.
func (h *AuthHandler) ProfileUpdate(c *router.Context) error {
	fullName := c.Form("full_name")
	phone := c.Form("phone")
	emailAddr := strings.ToLower(c.Form("email"))

	switch {
	case !minLen(fullName, 2):
		return c.Flash("/profile", "Full name must be at least 2 characters.", true)
	case !minLen(phone, 5):
		return c.Flash("/profile", "Enter a valid phone number.", true)
	case !validEmail(emailAddr):
		return c.Flash("/profile", "Enter a valid email address.", true)
	}

	newPassword := c.R.PostFormValue("new_password")
	if newPassword != "" {
		if !auth.VerifyPassword(c.R.PostFormValue("current_password"), c.User.PasswordSalt, c.User.PasswordHash) {
			return c.Flash("/profile", "Current password is incorrect.", true)
		}
		if newPassword != c.R.PostFormValue("new_password2") {
			return c.Flash("/profile", "New passwords do not match.", true)
		}
		if missing := auth.PolicyErrors(newPassword); len(missing) > 0 {
			return c.Flash("/profile", "Password must include: "+strings.Join(missing, ", ")+".", true)
		}
	}

	user, err := h.users.UpdateProfile(c.User.ID, fullName, phone, emailAddr)
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	h.audit.Record(ctx, audit.Entry{
		Actor: user, Action: "profile_updated", EntityType: "user", EntityID: itoa(user.ID),
		Fields: map[string]string{"email": emailAddr},
	})
	if newPassword == "" {
		return c.Flash("/profile", "Profile updated.", false)
	}

	salt, hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := h.users.UpdatePassword(user.ID, salt, hash); err != nil {
		return err
	}
	// Creating a session rotates out every other session of the user.
	if _, err := h.sessions.Create(c.W, c.R, user); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if _, err := h.notifier.Notify(ctx, user.ID, model.NotifSystem, "Your password was changed successfully.", "/profile"); err != nil {
		h.logger.Warn("password change notification", "user_id", user.ID, "error", err)
	}
	h.audit.Log(ctx, user, "password_changed", "user", itoa(user.ID), "")
	return c.Flash("/profile", "Profile and password updated.", false)
}
