package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Gotify posts to a self-hosted Gotify server's /message endpoint.
type Gotify struct{ HTTPClient *http.Client }

func NewGotify() *Gotify {
	return &Gotify{HTTPClient: &http.Client{Timeout: defaultHTTPTimeout * time.Second}}
}

func (g *Gotify) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	serverURL, err := stringField(config, "url")
	if err != nil {
		return err
	}
	token, err := stringField(config, "token")
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"title":    title,
		"message":  body,
		"priority": priority,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/message?token=%s", serverURL, token), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gotify: unexpected status %d", resp.StatusCode)
	}
	return nil
}
