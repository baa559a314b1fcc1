// Package pushnotification delivers web push messages about pending
// confirmations to every registered subscription.
package pushnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kazz187/permguard/internal/config"
	"github.com/kazz187/permguard/internal/confirmation"
	"github.com/kazz187/permguard/internal/pushsubscription"
)

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type Sender struct {
	vapidEnv   *config.VAPIDEnv
	repo       pushsubscription.Repository
	httpClient webpush.HTTPClient
}

func NewSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Sender {
	return &Sender{
		vapidEnv:   vapidEnv,
		repo:       repo,
		httpClient: http.DefaultClient,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool {
	return s.vapidEnv.VAPIDPrivateKey != "" && s.vapidEnv.VAPIDPublicKey != ""
}

// NotifyPending implements confirmation.Notifier.
func (s *Sender) NotifyPending(ctx context.Context, p confirmation.Pending) error {
	return s.SendToAll(ctx, &NotificationPayload{
		Title: "Permission confirmation required",
		Body:  fmt.Sprintf("%s (%s risk)", p.Request.Permission, p.Request.Risk),
		URL:   "/confirmations/" + p.ID,
		Tag:   p.ID,
	})
}

// SendToAll delivers payload to every subscription. Failures for individual
// subscriptions are logged; subscriptions the push service reports as gone
// are deleted.
func (s *Sender) SendToAll(ctx context.Context, payload *NotificationPayload) error {
	if !s.Enabled() {
		slog.DebugContext(ctx, "push notification: VAPID keys not configured, skipping")
		return nil
	}

	subs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	for _, sub := range subs {
		s.sendToSubscription(ctx, sub, data)
	}
	return nil
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, wpSub, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapidEnv.VAPIDPrivateKey,
		Subscriber:      s.vapidEnv.VAPIDContact,
		TTL:             300,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
	case resp.StatusCode >= 400:
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
