package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts a generic JSON body to an arbitrary URL, the fallback
// adapter for integrations with no dedicated kind.
type Webhook struct{ HTTPClient *http.Client }

func NewWebhook() *Webhook {
	return &Webhook{HTTPClient: &http.Client{Timeout: defaultHTTPTimeout * time.Second}}
}

func (w *Webhook) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	url, err := stringField(config, "url")
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"title":    title,
		"body":     body,
		"priority": priority,
	})
	if err != nil {
		return err
	}

	method := http.MethodPost
	if m, ok := config["method"].(string); ok && m != "" {
		method = m
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if header, ok := config["auth_header"].(string); ok && header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
