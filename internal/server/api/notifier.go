package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier delivers asynchronous notices by POSTing them to an
// outbound webhook (the bot gateway). Delivery is best-effort: failures are
// logged, never propagated.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to the given URL.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts {"reply_to": ..., "text": ...} to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, replyTo, text string) {
	payload, err := json.Marshal(map[string]string{
		"reply_to": replyTo,
		"text":     text,
	})
	if err != nil {
		slog.Error("failed to encode notice", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("failed to build notice request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("failed to deliver notice", "reply_to", replyTo, "error", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("notice rejected by webhook", "reply_to", replyTo, "status", resp.StatusCode)
	}
}

// LogNotifier writes notices to the log only, for deployments without an
// outbound webhook.
type LogNotifier struct{}

// Notify logs the notice.
func (LogNotifier) Notify(ctx context.Context, replyTo, text string) {
	slog.Info("notice", "reply_to", replyTo, "text", text)
}
