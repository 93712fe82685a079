package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maximevalette/backups-reporter/internal/domain"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

const (
	webhookTimeout = 10 * time.Second
	userAgent      = "backups-reporter/1.0"
)

// Notifier posts lifecycle events to the configured webhook URLs.
// Every delivery is best-effort: failures are logged and never block
// the remaining URLs or escalate into the run outcome.
type Notifier struct {
	webhooks []string
	client   *http.Client
	logger   *slog.Logger
}

// NewNotifier creates a notifier for the given webhook URLs
func NewNotifier(webhooks []string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client:   &http.Client{Timeout: webhookTimeout},
		logger:   logger,
	}
}

// Ping delivers the event to every configured webhook
func (n *Notifier) Ping(ctx context.Context, event domain.LifecycleEvent) {
	for _, webhook := range n.webhooks {
		if err := n.send(ctx, webhook, event); err != nil {
			n.logger.Error("failed to send webhook notification", "url", webhook, "err", err)
			continue
		}
		n.logger.Info("webhook notification sent", "url", webhook, "status", string(event.Status))
	}
}

type webhookPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (n *Notifier) send(ctx context.Context, webhook string, event domain.LifecycleEvent) error {
	var req *http.Request
	var err error

	if isHealthcheckURL(webhook) {
		target := healthcheckURL(webhook, event.Status)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(event.Message))
	} else {
		payload := webhookPayload{
			Status:    string(event.Status),
			Message:   event.Message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		var body []byte
		body, err = json.Marshal(payload)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
			if req != nil {
				req.Header.Set("Content-Type", "application/json")
			}
		}
	}
	if err != nil {
		return apperrors.NewNotifyError("build webhook request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return apperrors.NewNotifyError("post webhook", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return apperrors.NewNotifyError("post webhook", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// isHealthcheckURL reports whether the URL follows healthchecks.io
// ping conventions and should receive suffix routing instead of a JSON
// payload
func isHealthcheckURL(webhook string) bool {
	return strings.Contains(webhook, "healthchecks.io") ||
		strings.Contains(webhook, "hc-ping.com") ||
		strings.HasSuffix(webhook, "/start") ||
		strings.HasSuffix(webhook, "/fail")
}

// healthcheckURL maps a lifecycle status onto the healthchecks ping
// URL: start and fail get their suffix, success pings the bare check
func healthcheckURL(webhook string, status domain.LifecycleStatus) string {
	base := strings.TrimSuffix(strings.TrimSuffix(webhook, "/start"), "/fail")
	switch status {
	case domain.StatusStart:
		return base + "/start"
	case domain.StatusFail:
		return base + "/fail"
	default:
		return base
	}
}
