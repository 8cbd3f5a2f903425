package router

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/guard"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/respond"
)

// Result tells a caller whether a precondition helper already wrote the
// response.
type Result bool

const (
	Continue  Result = false
	Responded Result = true
)

// Context carries one request through the dispatcher and its handler.
type Context struct {
	W       http.ResponseWriter
	R       *http.Request
	User    *model.User
	Session *model.Session
	Params  map[string]string
	Logger  *slog.Logger
	State   *State

	router *Router
	csrf   string
	start  time.Time
}

// Token returns the CSRF token for forms, issuing the cookie if needed.
func (c *Context) Token() string {
	if c.csrf == "" {
		c.csrf = c.router.guard.EnsureToken(c.W, c.R)
	}
	return c.csrf
}

// Param returns a named regex capture.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Form returns a trimmed form value (query for GET).
func (c *Context) Form(name string) string {
	return strings.TrimSpace(c.R.FormValue(name))
}

// FormInt parses a form value, returning 0 when absent or malformed.
func (c *Context) FormInt(name string) int64 {
	n, _ := strconv.ParseInt(c.Form(name), 10, 64)
	return n
}

// FormFloat parses a form value, returning 0 when absent or malformed.
func (c *Context) FormFloat(name string) float64 {
	f, _ := strconv.ParseFloat(c.Form(name), 64)
	return f
}

// IP is the client address.
func (c *Context) IP() string {
	return guard.ClientIP(c.R)
}

// Account returns the signed-in account number or "".
func (c *Context) Account() string {
	if c.User == nil {
		return ""
	}
	return c.User.AccountNumber
}

// Page fills the common template fields, including the flash message from
// the query string.
func (c *Context) Page(title string, data any) respond.Page {
	q := c.R.URL.Query()
	return respond.Page{
		Title:     title,
		User:      c.User,
		CSRFToken: c.Token(),
		Message:   strings.TrimSpace(q.Get("msg")),
		IsError:   q.Get("err") == "1",
		Data:      data,
	}
}

// HTML renders a page with status 200.
func (c *Context) HTML(page, title string, data any) error {
	c.router.renderer.HTML(c.W, http.StatusOK, page, c.Page(title, data))
	return nil
}

func (c *Context) JSON(status int, v any) error {
	respond.JSON(c.W, status, v)
	return nil
}

// Redirect sends a 302.
func (c *Context) Redirect(location string) error {
	respond.Redirect(c.W, location, http.StatusFound)
	return nil
}

// Flash redirects to path with an inline message.
func (c *Context) Flash(path, msg string, isErr bool) error {
	return c.Redirect(respond.WithMessage(path, msg, isErr))
}

func (c *Context) CSV(filename string, rows [][]string) error {
	return respond.CSV(c.W, filename, rows)
}

// Error renders the error page.
func (c *Context) Error(status int, msg string) error {
	c.router.renderer.Error(c.W, status, msg)
	return nil
}

// Fail renders the error page and reports Responded.
func (c *Context) Fail(status int, msg string) Result {
	c.router.renderer.Error(c.W, status, msg)
	return Responded
}

// NotFound renders a 404.
func (c *Context) NotFound() error {
	return c.Error(http.StatusNotFound, "Not found.")
}

// Forbidden renders a 403.
func (c *Context) Forbidden() error {
	return c.Error(http.StatusForbidden, "You do not have access to this page.")
}

// Elapsed is the time since dispatch started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.start)
}
