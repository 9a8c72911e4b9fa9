package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/ports"
)

// Notifier posts announcements to a Slack-compatible incoming webhook.
type Notifier struct {
	url    string
	client *http.Client
	out    io.Writer
	logger *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook URL. With an empty URL messages are
// printed to out (stdout when nil) instead of being sent.
func NewNotifier(url string, out io.Writer, log *slog.Logger) *Notifier {
	if out == nil {
		out = os.Stdout
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		out:    out,
		logger: log,
	}
}

// Announce sends one message listing every product in the announcement.
func (n *Notifier) Announce(ctx context.Context, a domain.Announcement) error {
	if len(a.Products) == 0 {
		return nil
	}
	text := BuildMessage(a)

	if n.url == "" {
		if n.logger != nil {
			n.logger.Info("webhook url not set, printing message", "products", len(a.Products))
		}
		_, err := fmt.Fprintln(n.out, text)
		return err
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: %s %s", resp.Status, bytes.TrimSpace(body))
	}

	if n.logger != nil {
		n.logger.Info("notification sent", "products", len(a.Products))
	}
	return nil
}
