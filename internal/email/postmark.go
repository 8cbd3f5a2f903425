// Package email delivers transactional mail through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// ErrNotConfigured is returned when no server token is set.
var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	endpoint    string
	httpClient  *http.Client
	retries     uint64
	retryBase   time.Duration
}

type Option func(*Client)

// WithEndpoint overrides the Postmark API URL.
func WithEndpoint(url string) Option {
	return func(cl *Client) { cl.endpoint = url }
}

// WithRetry sets how often a 5xx or 429 answer is retried and the first
// backoff step.
func WithRetry(retries uint64, base time.Duration) Option {
	return func(cl *Client) {
		cl.retries = retries
		cl.retryBase = base
	}
}

// NewClient builds a mailer. baseURL is the public site root used in links.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		endpoint:    postmarkURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retries:     2,
		retryBase:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c != nil && c.serverToken != ""
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

// SendPasswordReset mails the reset link carrying token.
func (c *Client) SendPasswordReset(ctx context.Context, toEmail, token string, ttl time.Duration) error {
	link := c.baseURL + "/reset?token=" + token
	mins := int(ttl.Minutes())
	text := fmt.Sprintf("A password reset was requested for your Atlas Bahamas account.\n\n"+
		"Open this link to choose a new password:\n\n%s\n\nThe link expires in %d minutes. "+
		"If you did not ask for this, ignore this email.", link, mins)
	body := fmt.Sprintf(`<p>A password reset was requested for your Atlas Bahamas account.</p>`+
		`<p><a href="%s">Choose a new password</a></p><p>The link expires in %d minutes. `+
		`If you did not ask for this, ignore this email.</p>`, html.EscapeString(link), mins)
	return c.send(ctx, toEmail, "Reset your Atlas Bahamas password", text, body)
}

// SendNotification mirrors an in-app notification by email.
func (c *Client) SendNotification(ctx context.Context, toEmail, text, link string) error {
	full := c.baseURL + link
	if link == "" {
		full = c.baseURL + "/notifications"
	}
	plain := fmt.Sprintf("%s\n\n%s", text, full)
	body := fmt.Sprintf(`<p>%s</p><p><a href="%s">Open Atlas Bahamas</a></p>`,
		html.EscapeString(text), html.EscapeString(full))
	return c.send(ctx, toEmail, "Atlas Bahamas: "+truncate(text, 60), plain, body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// APIError is Postmark's error body. ErrorCode 300 and 406 mean the address
// is invalid or inactive and retrying will not help.
type APIError struct {
	Status    int    `json:"-"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postmark: status %d code %d: %s", e.Status, e.ErrorCode, e.Message)
}

func (c *Client) send(ctx context.Context, to, subject, text, htmlBody string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(postmarkEmail{
		From:          c.fromEmail,
		To:            to,
		Subject:       subject,
		HtmlBody:      htmlBody,
		TextBody:      text,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.post(ctx, payload)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return err
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return apiErr
}
