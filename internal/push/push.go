// Package push delivers notification previews to subscribed browsers over
// Web Push, signing each request with the site's VAPID key pair.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/atlasbahamas/atlas/internal/model"
)

// ErrExpired means the browser dropped the subscription (404 or 410) and it
// should be deleted.
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON the service worker receives.
type Payload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url,omitempty"`
	Category string `json:"tag,omitempty"`
}

// delivery hints per notification category. Payment and lease events are
// time sensitive; the rest can wait for the device to wake.
var hints = map[string]struct {
	urgency webpush.Urgency
	ttl     time.Duration
}{
	"payment":     {webpush.UrgencyHigh, 24 * time.Hour},
	"lease":       {webpush.UrgencyHigh, 24 * time.Hour},
	"maintenance": {webpush.UrgencyNormal, 48 * time.Hour},
	"invite":      {webpush.UrgencyNormal, 72 * time.Hour},
	"application": {webpush.UrgencyNormal, 72 * time.Hour},
	"inquiry":     {webpush.UrgencyNormal, 72 * time.Hour},
	"system":      {webpush.UrgencyLow, 7 * 24 * time.Hour},
}

func hintFor(category string) (webpush.Urgency, int) {
	h, ok := hints[category]
	if !ok {
		h = hints["system"]
	}
	return h.urgency, int(h.ttl / time.Second)
}

// Service signs and sends push messages.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	client     webpush.HTTPClient
}

// NewService returns nil when either key is missing. contact is the mailto
// address or https URL push services may use to reach the operator.
func NewService(publicKey, privateKey, contact string) *Service {
	if publicKey == "" || privateKey == "" {
		return nil
	}
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: contact,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Service) VAPIDPublicKey() string { return s.publicKey }

// Send posts payload to one browser subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}
	urgency, ttl := hintFor(payload.Category)

	target := &webpush.Subscription{Endpoint: sub.Endpoint}
	target.Keys.P256dh = sub.P256dhKey
	target.Keys.Auth = sub.AuthKey

	resp, err := webpush.SendNotificationWithContext(ctx, body, target, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             ttl,
		Urgency:         urgency,
		Topic:           topic(payload.Category),
	})
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service status %d", resp.StatusCode)
	}
	return nil
}

// topic collapses queued messages of one category on the push service so an
// offline device wakes to the latest only. Only low-urgency categories
// collapse; each payment or lease event must arrive.
func topic(category string) string {
	if _, ok := hints[category]; !ok {
		category = "system"
	}
	if u, _ := hintFor(category); u == webpush.UrgencyLow {
		return "atlas-" + category
	}
	return ""
}

// GenerateVAPIDKeys returns a fresh base64url P-256 key pair in the order the
// config expects it: public first.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
