package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Slack posts to an incoming webhook. WebhookURL is read on every call so settings
// changes apply without a restart.
type Slack struct {
	WebhookURL func() string
	Client     *http.Client
}

func (s Slack) Name() string { return "slack" }

func (s Slack) url() string {
	if s.WebhookURL == nil {
		return ""
	}
	return strings.TrimSpace(s.WebhookURL())
}

// Permission is granted exactly when a webhook is configured.
func (s Slack) Permission(ctx context.Context) Permission {
	if s.url() == "" {
		return Denied
	}
	return Granted
}

func (s Slack) RequestPermission(ctx context.Context) (bool, error) {
	return s.Permission(ctx) == Granted, nil
}

func (s Slack) Send(ctx context.Context, m Message) error {
	url := s.url()
	if url == "" {
		return fmt.Errorf("slack webhook URL not set")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*: %s", m.Title, m.Body)
	if len(m.Tasks) > 1 {
		for _, t := range m.Tasks {
			fmt.Fprintf(&b, "\n• %s", t.Title)
		}
	}
	body, err := json.Marshal(map[string]any{"text": b.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
