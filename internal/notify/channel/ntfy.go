package channel

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Ntfy posts a plain-text message to an ntfy.sh (or self-hosted) topic.
type Ntfy struct{ HTTPClient *http.Client }

func NewNtfy() *Ntfy {
	return &Ntfy{HTTPClient: &http.Client{Timeout: defaultHTTPTimeout * time.Second}}
}

func (n *Ntfy) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	topicURL, err := stringField(config, "url")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, topicURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", strconv.Itoa(priority))

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}
	return nil
}
