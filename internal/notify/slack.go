package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const slackAPIURL = "https://slack.com/api"

// SlackSink posts broadcasts to an incoming webhook and direct
// messages through the chat API. Either half may be left unset.
type SlackSink struct {
	webhookURL string
	token      string
	client     *http.Client
}

// NewSlackSink creates a sink from a webhook URL and an API token.
func NewSlackSink(webhookURL, token string) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		token:      token,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Broadcast posts the text to the configured incoming webhook.
func (s *SlackSink) Broadcast(text string) error {
	if s.webhookURL == "" {
		return fmt.Errorf("no slack webhook configured")
	}
	payload := map[string]interface{}{
		"text":      text,
		"mrkdwn":    true,
		"mrkdwn_in": []string{"text"},
	}
	return s.post(s.webhookURL, "", payload)
}

// DirectMessage sends the text to @username via chat.postMessage.
func (s *SlackSink) DirectMessage(username string, _ int64, text string) error {
	if s.token == "" {
		return fmt.Errorf("no slack token configured")
	}
	payload := map[string]interface{}{
		"username": "Sqdc Trigger Notifications",
		"channel":  "@" + username,
		"text":     text,
	}
	return s.post(slackAPIURL+"/chat.postMessage", s.token, payload)
}

func (s *SlackSink) post(url, token string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack POST %s: status code %d", url, resp.StatusCode)
	}
	return nil
}

// MultiSink fans a notification out to several sinks; the first
// failure is returned after every sink was attempted.
type MultiSink []Sink

func (m MultiSink) Broadcast(text string) error {
	var firstErr error
	for _, s := range m {
		if err := s.Broadcast(text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) DirectMessage(username string, chatID int64, text string) error {
	var firstErr error
	for _, s := range m {
		if err := s.DirectMessage(username, chatID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
