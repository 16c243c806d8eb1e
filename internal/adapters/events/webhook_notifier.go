package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier POSTs audit notifications to a configured HTTP endpoint,
// signing each request with HMAC-SHA256 so the receiver can verify
// authenticity. Non-2xx responses are errors; the caller decides whether
// that matters (for audit notifications it is logged and dropped).
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookNotifier returns a notifier that POSTs to url and signs bodies
// with secret. A zero or negative timeout falls back to the default (10 s).
func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Notify marshals the notification to JSON, signs the body, and POSTs it.
// Headers set on every request:
//
//	Content-Type:        application/json
//	X-Botgate-Action:    <notification.Action>
//	X-Botgate-Target:    <notification.TargetID>
//	X-Hub-Signature-256: sha256=<hex-encoded HMAC-SHA256>
func (n *WebhookNotifier) Notify(ctx context.Context, notification domain.AuditNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Botgate-Action", notification.Action)
	req.Header.Set("X-Botgate-Target", notification.TargetID)
	req.Header.Set("X-Hub-Signature-256", "sha256="+n.sign(payload))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
