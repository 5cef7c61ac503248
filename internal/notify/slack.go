package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// Slack posts to an incoming webhook. Any endpoint accepting {"text": ...}
// works; alerts add a Slack attachment with the verdict as fields.
type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color    string       `json:"color"`
	Fallback string       `json:"fallback"`
	Fields   []slackField `json:"fields"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityOK:
		return "good"
	case domain.SeverityDegraded:
		return "warning"
	}
	return "danger"
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	return s.post(ctx, slackPayload{Text: "*" + title + "*\n" + text})
}

func (s *Slack) SendAlert(ctx context.Context, a Alert) error {
	fields := []slackField{
		{Title: "severity", Value: string(a.Severity), Short: true},
		{Title: "diagnosis", Value: string(a.Diagnosis), Short: true},
		{Title: "port", Value: strconv.Itoa(a.Port), Short: true},
	}
	if a.Primary != "" {
		fields = append(fields, slackField{Title: "primary", Value: string(a.Primary), Short: true})
	}
	fields = append(fields, slackField{Title: "run", Value: a.RunID})
	return s.post(ctx, slackPayload{
		Text: "*" + a.Title + "*\n" + a.Text,
		Attachments: []slackAttachment{{
			Color:    severityColor(a.Severity),
			Fallback: a.Title,
			Fields:   fields,
		}},
	})
}

func (s *Slack) post(ctx context.Context, p slackPayload) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}
