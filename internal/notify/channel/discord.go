package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord posts an Incoming Webhook message.
type Discord struct{ HTTPClient *http.Client }

func NewDiscord() *Discord {
	return &Discord{HTTPClient: &http.Client{Timeout: defaultHTTPTimeout * time.Second}}
}

func (d *Discord) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	webhookURL, err := stringField(config, "url")
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"content": fmt.Sprintf("**%s**\n%s", title, body),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}
	return nil
}
