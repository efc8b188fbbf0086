// Package channel implements one adapter per NotificationChannel.Kind,
// grounded on internal/client.Client's ExecuteQuery shape (build request,
// set headers, HTTPClient.Do, read body) translated from the teacher's
// single GraphQL endpoint into per-service webhook bodies.
package channel

import (
	"context"
	"fmt"
)

// Adapter delivers one message to a channel given its opaque, per-kind
// config map (decoded from NotificationChannel.Config).
type Adapter interface {
	Send(ctx context.Context, config map[string]any, title, body string, priority int) error
}

func stringField(config map[string]any, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", fmt.Errorf("channel config missing %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("channel config %q must be a non-empty string", key)
	}
	return s, nil
}

// defaultHTTPTimeout is shared by every net/http-based adapter.
const defaultHTTPTimeout = 10
