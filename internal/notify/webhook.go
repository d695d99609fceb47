package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// webhookAttempts is how many delivery tries one message gets.
const webhookAttempts = 3

// webhookBackoff is the base delay between retries, doubled each attempt.
const webhookBackoff = 2 * time.Second

// Webhook posts messages as JSON to a fixed URL, retrying with backoff.
type Webhook struct {
	url     string
	http    *http.Client
	backoff time.Duration
}

// NewWebhook builds a webhook sender.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		backoff: webhookBackoff,
	}
}

type webhookPayload struct {
	Message
	SentAt models.Millis `json:"sentAt"`
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{Message: msg, SentAt: models.Now()})
	if err != nil {
		return models.WrapE(models.KindIO, err, "encode webhook payload")
	}

	var lastErr error
	delay := w.backoff
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return models.WrapE(models.KindDependency, err, "build webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = models.E(models.KindDependency, "webhook returned %d", resp.StatusCode)
	}
	return models.WrapE(models.KindDependency, lastErr, "webhook delivery failed after %d attempts", webhookAttempts)
}
