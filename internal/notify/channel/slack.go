package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Slack posts an Incoming Webhook message.
type Slack struct{ HTTPClient *http.Client }

func NewSlack() *Slack {
	return &Slack{HTTPClient: &http.Client{Timeout: defaultHTTPTimeout * time.Second}}
}

func (s *Slack) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	webhookURL, err := stringField(config, "url")
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s*\n%s", title, body),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack: unexpected status %d", resp.StatusCode)
	}
	return nil
}
