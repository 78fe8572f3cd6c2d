package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/TryMightyAI/mirage/pkg/httputil"
)

// WebhookTarget posts events to a configured HTTP endpoint. The payload
// shape is {event, session_id, timestamp, dedup_key, data}.
type WebhookTarget struct {
	url    string
	client *http.Client
}

// NewWebhookTarget creates a webhook target for the given endpoint.
func NewWebhookTarget(url string) *WebhookTarget {
	return &WebhookTarget{
		url:    url,
		client: httputil.FastClient(),
	}
}

// Name identifies the target in logs.
func (w *WebhookTarget) Name() string {
	return "webhook:" + w.url
}

// Deliver posts the event as JSON. Any non-2xx status is a retryable error.
func (w *WebhookTarget) Deliver(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mirage-Dedup-Key", evt.DedupKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode >= 400 {
		msg, _ := httputil.ReadErrorBody(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

var _ Target = (*WebhookTarget)(nil)
